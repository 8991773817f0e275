package understanding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/pkg/agent/state"
	"analytics-chat-be/pkg/llm"
	"analytics-chat-be/pkg/utils"
)

const historyTurns = 3

// SchemaDescriber renders the schema of a logical container.
type SchemaDescriber interface {
	Describe(container string) (string, error)
}

type Understander struct {
	llm         llm.LLMProvider
	schemas     SchemaDescriber
	temperature float64
	timeout     time.Duration
	logger      logger.ILogger
}

func NewUnderstander(provider llm.LLMProvider, schemas SchemaDescriber, timeout time.Duration, log logger.ILogger) *Understander {
	return &Understander{
		llm:         provider,
		schemas:     schemas,
		temperature: 0.0,
		timeout:     timeout,
		logger:      log,
	}
}

func (u *Understander) Name() string { return "understand" }

func (u *Understander) Run(ctx context.Context, s *state.PipelineState) error {
	schemaText, err := u.schemas.Describe(s.Container)
	if err != nil {
		return fmt.Errorf("load schema for %s: %w", s.Container, err)
	}

	analysis := u.Understand(ctx, s.UserQuery, s.ConversationHistory, schemaText)

	s.QueryAnalysis = analysis
	s.ReformulatedQuery = analysis.ReformulatedQuery
	s.GeneratedQuery = analysis.GeneratedQuery
	s.QueryParameters = analysis.QueryParameters
	return nil
}

// Understand never fails; unusable model output yields Fallback.
func (u *Understander) Understand(ctx context.Context, question string, history []llm.Message, schemaText string) *state.QueryAnalysis {
	u.logger.Info("Understanding", "Analyzing query", map[string]interface{}{
		"query": utils.Truncate(question, 100),
	})

	var messages []llm.Message
	if historyContext := buildHistoryContext(history); historyContext != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Recent conversation context:\n" + historyContext,
		})
	}
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: "Analyze this query: " + question,
	})

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	response, err := u.llm.Chat(ctx, messages,
		llm.WithSystemPrompt(buildSystemPrompt(schemaText)),
		llm.WithTemperature(u.temperature),
		llm.WithJSONMode(),
	)
	if err != nil {
		u.logger.Error("Understanding", "Completion failed, using fallback analysis", map[string]interface{}{
			"error": err.Error(),
		})
		return Fallback(question, err.Error())
	}

	analysis, err := ParseAnalysis(response)
	if err != nil {
		u.logger.Warn("Understanding", "Could not parse query analysis", map[string]interface{}{
			"error":    err.Error(),
			"response": utils.Truncate(response, 500),
		})
		return Fallback(question, err.Error())
	}

	if analysis.ReformulatedQuery == "" {
		analysis.ReformulatedQuery = question
	}

	u.logger.Info("Understanding", "Query analysis complete", map[string]interface{}{
		"intent":     analysis.Intent,
		"query_type": analysis.QueryType,
		"has_query":  analysis.GeneratedQuery != "",
	})
	return analysis
}

func buildHistoryContext(history []llm.Message) string {
	if len(history) == 0 {
		return ""
	}
	recent := history
	if len(recent) > historyTurns {
		recent = recent[len(recent)-historyTurns:]
	}
	parts := make([]string, 0, len(recent))
	for _, msg := range recent {
		parts = append(parts, fmt.Sprintf("%s: %s", capitalize(msg.Role), msg.Content))
	}
	return strings.Join(parts, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
