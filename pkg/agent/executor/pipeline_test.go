package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/pkg/agent/state"
	"analytics-chat-be/pkg/cosmos"
	"analytics-chat-be/pkg/cosmos/cosmostest"
	"analytics-chat-be/pkg/llm"
	"analytics-chat-be/pkg/llm/llmtest"
	"analytics-chat-be/pkg/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	understandMarker = "QUERY GENERATION RULES"
	respondMarker    = "Cite specific data points"
	recommendMarker  = "query recommendation assistant"
)

const settlementAnalysis = `{"intent":"aggregate_amount","query_type":"aggregation","entities":{"pkType":"repay:settlement","pkFilter":"20250824"},"generated_query":"SELECT VALUE SUM(c.transactionAmount) FROM c WHERE c.pkType=@pkType AND c.pkFilter=@pkFilter","query_parameters":[{"name":"@pkType","value":"repay:settlement"},{"name":"@pkFilter","value":"20250824"}],"reformulated_query":"Total settlement amount for Aug 24 2025"}`

func newTestPipeline(p llm.LLMProvider, c cosmos.Container) *Pipeline {
	return NewPipeline(Config{
		Schemas:     schema.DefaultCatalog(),
		Querier:     c,
		LLM:         p,
		Logger:      logger.NewNopLogger(),
		Temperature: 0,
	})
}

func scenarioProvider() *llmtest.FakeProvider {
	return llmtest.NewFakeProvider().
		On(understandMarker, settlementAnalysis).
		On(respondMarker, "Total settlements on August 24, 2025 were $1250.50.").
		On(recommendMarker, `["How does this compare to August 23?", "Which merchants settled the most?", "What was the average settlement?"]`)
}

func TestRunSettlementTotalScenario(t *testing.T) {
	c := cosmostest.NewFakeContainer("gold").QueryResult(1250.50).RejectUnscopedAggregates()
	p := scenarioProvider()

	res := newTestPipeline(p, c).Run(context.Background(), Request{
		Question: "What were total settlements on August 24, 2025?",
	})

	queries := c.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "SELECT VALUE SUM(c.transactionAmount) FROM c WHERE c.pkType=@pkType AND c.pkFilter=@pkFilter", queries[0].Query)
	assert.Equal(t, []cosmos.QueryParameter{
		{Name: "@pkType", Value: "repay:settlement"},
		{Name: "@pkFilter", Value: "20250824"},
	}, queries[0].Params)
	assert.False(t, queries[0].Opts.CrossPartition)
	assert.True(t, queries[0].Opts.PartitionKey.Equal(cosmos.NewPartitionKey("repay:settlement", "20250824")))

	assert.Contains(t, res.Answer, "1250.50")
	assert.Len(t, res.Suggestions, 3)
	assert.Empty(t, res.Metadata.Error)
	require.NotNil(t, res.Metadata.Retrieval)
	assert.Equal(t, 1, res.Metadata.Retrieval.RecordCount)
	require.NotNil(t, res.Metadata.QueryAnalysis)
	assert.Equal(t, "aggregate_amount", res.Metadata.QueryAnalysis.Intent)

	// the response stage saw the retrieved value
	var respondCall *llmtest.Call
	for _, call := range p.Calls() {
		if strings.Contains(call.Options.SystemPrompt, respondMarker) {
			call := call
			respondCall = &call
		}
	}
	require.NotNil(t, respondCall)
	assert.Contains(t, respondCall.Messages[0].Content, "1250.5")
}

func TestRunIsIdempotentWithCannedCompletions(t *testing.T) {
	c := cosmostest.NewFakeContainer("gold").QueryResult(1250.50)
	pipeline := newTestPipeline(scenarioProvider(), c)
	req := Request{Question: "What were total settlements on August 24, 2025?"}

	first := pipeline.Run(context.Background(), req)
	second := pipeline.Run(context.Background(), req)

	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Suggestions, second.Suggestions)
	assert.Equal(t, first.Metadata.QueryAnalysis, second.Metadata.QueryAnalysis)
}

func TestRunWithUnparseableAnalysisSkipsStore(t *testing.T) {
	c := cosmostest.NewFakeContainer("gold").QueryResult(1.0)
	p := llmtest.NewFakeProvider().
		On(understandMarker, "I'm not sure what you mean.").
		On(respondMarker, "I don't have enough data to answer that.").
		On(recommendMarker, "nope")

	res := newTestPipeline(p, c).Run(context.Background(), Request{Question: "hmm?"})

	assert.Empty(t, c.Queries())
	assert.False(t, res.Metadata.Retrieval.QueryExecuted)
	assert.NotEmpty(t, res.Metadata.QueryAnalysis.ParseError)
	assert.Equal(t, "I don't have enough data to answer that.", res.Answer)
	assert.Len(t, res.Suggestions, 3)
	assert.Empty(t, res.Metadata.Error)
}

func TestRunStoreFailureStillAnswers(t *testing.T) {
	c := cosmostest.NewFakeContainer("gold").QueryError(errors.New("403 forbidden"))
	res := newTestPipeline(scenarioProvider(), c).Run(context.Background(), Request{Question: "q"})

	assert.Equal(t, "403 forbidden", res.Metadata.Retrieval.Error)
	assert.NotEqual(t, DegradedAnswer, res.Answer)
	assert.Empty(t, res.Metadata.Error)
}

type recordingStage struct {
	name  string
	order *[]string
	err   error
	panic bool
}

func (r *recordingStage) Name() string { return r.name }

func (r *recordingStage) Run(_ context.Context, s *state.PipelineState) error {
	*r.order = append(*r.order, r.name)
	if r.panic {
		var m map[string]int
		m["boom"]++
	}
	s.Answer = "answer from " + r.name
	return r.err
}

func TestRunExecutesStagesInOrder(t *testing.T) {
	var order []string
	p := newPipeline("gold", logger.NewNopLogger(),
		&recordingStage{name: "understand", order: &order},
		&recordingStage{name: "retrieve", order: &order},
		&recordingStage{name: "respond", order: &order},
		&recordingStage{name: "recommend", order: &order},
	)

	res := p.Run(context.Background(), Request{Question: "q"})
	assert.Equal(t, []string{"understand", "retrieve", "respond", "recommend"}, order)
	assert.NotNil(t, res.Suggestions)
}

func TestRunDegradesOnStageErrorOrPanic(t *testing.T) {
	tests := []struct {
		name  string
		stage *recordingStage
	}{
		{"error", &recordingStage{name: "retrieve", err: errors.New("unexpected")}},
		{"panic", &recordingStage{name: "retrieve", panic: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var order []string
			tt.stage.order = &order
			p := newPipeline("gold", logger.NewNopLogger(),
				&recordingStage{name: "understand", order: &order},
				tt.stage,
				&recordingStage{name: "respond", order: &order},
			)

			res := p.Run(context.Background(), Request{Question: "q"})

			assert.Equal(t, DegradedAnswer, res.Answer)
			assert.Equal(t, []string{}, res.Suggestions)
			assert.NotEmpty(t, res.Metadata.Error)
			assert.Equal(t, []string{"understand", "retrieve"}, order)
		})
	}
}

func TestRunUnknownContainerDegrades(t *testing.T) {
	c := cosmostest.NewFakeContainer("gold")
	res := newTestPipeline(scenarioProvider(), c).Run(context.Background(), Request{Question: "q", Container: "silver"})
	assert.Equal(t, DegradedAnswer, res.Answer)
	assert.Contains(t, res.Metadata.Error, "schema not found")
}
