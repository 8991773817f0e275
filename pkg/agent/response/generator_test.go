package response

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/pkg/agent/state"
	"analytics-chat-be/pkg/llm"
	"analytics-chat-be/pkg/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeRecordsBoundsExamples(t *testing.T) {
	records := make([]any, 8)
	for i := range records {
		records[i] = map[string]any{
			"id": fmt.Sprintf("txn-%d", i), "pkType": "repay:settlement", "pkFilter": float64(20250824),
			"transactionAmount": 10.5, "status": "OPEN", "zzz": "hidden",
		}
	}

	summary := summarizeRecords(records)

	assert.Contains(t, summary, "Found 8 records:")
	assert.Contains(t, summary, "5. ")
	assert.NotContains(t, summary, "6. ")
	assert.Contains(t, summary, "... and 3 more records")
	assert.Contains(t, summary, "1. id: txn-0, pkFilter: 20250824, pkType: repay:settlement, status: OPEN, transactionAmount: 10.5")
	assert.NotContains(t, summary, "zzz")
}

func TestSummarizeScalarRecord(t *testing.T) {
	assert.Equal(t, "Found 1 records:\n1. 1250.5", summarizeRecords([]any{1250.50}))
}

func TestBuildContextEmptyWhenNothingToGroundOn(t *testing.T) {
	assert.Equal(t, "", buildContext(state.QueryAnalysis{GeneratedQuery: "SELECT 1"}, nil, ""))
	assert.Contains(t, buildContext(state.QueryAnalysis{}, nil, "policy text"), "## Relevant Context:\npolicy text")
}

func TestRespondMessagesAndHistoryWindow(t *testing.T) {
	p := llmtest.NewFakeProvider().Default(llmtest.Reply{Text: "Total was 1250.50."})
	g := NewGenerator(p, 0.7, 0, logger.NewNopLogger())

	history := make([]llm.Message, 6)
	for i := range history {
		history[i] = llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("turn %d", i)}
	}

	answer, meta := g.Respond(context.Background(), "total?", state.QueryAnalysis{}, []any{1250.50}, "", 0, history)
	assert.Equal(t, "Total was 1250.50.", answer)
	assert.True(t, meta.ContextUsed)
	assert.Equal(t, 1, meta.RecordsUsed)
	assert.Empty(t, meta.Error)

	calls := p.Calls()
	require.Len(t, calls, 1)
	msgs := calls[0].Messages
	require.Len(t, msgs, 6)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "1250.5")
	assert.Equal(t, "turn 2", msgs[1].Content)
	assert.Equal(t, "turn 5", msgs[4].Content)
	assert.Equal(t, "total?", msgs[5].Content)
	assert.Contains(t, calls[0].Options.SystemPrompt, "If the data is insufficient")
}

func TestRespondFailureReturnsApology(t *testing.T) {
	p := llmtest.NewFakeProvider().Default(llmtest.Reply{Err: errors.New("rate limited")})
	g := NewGenerator(p, 0.7, 0, logger.NewNopLogger())

	s := &state.PipelineState{UserQuery: "q"}
	require.NoError(t, g.Run(context.Background(), s))

	assert.Equal(t, ErrorAnswer, s.Answer)
	assert.Equal(t, "rate limited", s.AnswerMetadata.Error)
}
