package response

import (
	"context"
	"time"

	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/pkg/agent/state"
	"analytics-chat-be/pkg/llm"
)

// ErrorAnswer is returned to the user when the completion call fails.
const ErrorAnswer = "I apologize, but I encountered an error while generating a response. Please try again."

const historyTurns = 4

const systemPrompt = `You are an AI assistant for a financial data analytics platform.
Your role is to:
1. Provide clear, accurate answers based on the available data
2. Cite specific data points (amounts, dates, counts, merchant names) when making claims
3. Acknowledge any limitations or missing information
4. Use a professional but friendly tone
5. Structure your response clearly with sections if needed

If the data is insufficient to answer the question, say so clearly and suggest what additional information might be needed.
Never invent figures that are not in the provided data.`

type Generator struct {
	llm         llm.LLMProvider
	temperature float64
	timeout     time.Duration
	logger      logger.ILogger
}

func NewGenerator(provider llm.LLMProvider, temperature float64, timeout time.Duration, log logger.ILogger) *Generator {
	return &Generator{llm: provider, temperature: temperature, timeout: timeout, logger: log}
}

func (g *Generator) Name() string { return "respond" }

func (g *Generator) Run(ctx context.Context, s *state.PipelineState) error {
	s.Answer, s.AnswerMetadata = g.Respond(ctx, s.UserQuery, s.Analysis(), s.RetrievedRecords, s.RAGContext, len(s.Sources), s.ConversationHistory)
	return nil
}

// Respond produces a grounded answer. Completion failures yield ErrorAnswer.
func (g *Generator) Respond(
	ctx context.Context,
	question string,
	analysis state.QueryAnalysis,
	records []any,
	ragContext string,
	sourcesCount int,
	history []llm.Message,
) (string, state.AnswerMetadata) {
	g.logger.Info("Response", "Generating response", map[string]interface{}{
		"records": len(records),
	})

	dataContext := buildContext(analysis, records, ragContext)

	var messages []llm.Message
	if dataContext != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Available data and context:\n\n" + dataContext,
		})
	}

	recent := history
	if len(recent) > historyTurns {
		recent = recent[len(recent)-historyTurns:]
	}
	messages = append(messages, recent...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	answer, err := g.llm.Chat(ctx, messages,
		llm.WithSystemPrompt(systemPrompt),
		llm.WithTemperature(g.temperature),
	)
	if err != nil {
		g.logger.Error("Response", "Error generating response", map[string]interface{}{
			"error": err.Error(),
		})
		return ErrorAnswer, state.AnswerMetadata{Error: err.Error()}
	}

	g.logger.Info("Response", "Response generated successfully", nil)
	return answer, state.AnswerMetadata{
		ContextUsed:  dataContext != "",
		RecordsUsed:  len(records),
		SourcesCount: sourcesCount,
	}
}
