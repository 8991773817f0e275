package recommendation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/pkg/agent/state"
	"analytics-chat-be/pkg/llm"
	"analytics-chat-be/pkg/utils"
)

const (
	maxSuggestions   = 5
	minSuggestionLen = 10
	answerSummaryLen = 500
	listMarkerCutset = "*-•123456789."
	quoteCutset      = `"'`
	defaultQueryType = "general"
)

const systemPrompt = `You are a query recommendation assistant for a financial data analytics platform.
Your task is to suggest 3-5 relevant follow-up questions that users might want to ask based on:
1. The current query and response
2. Common analytical workflows
3. Natural exploration paths in data analysis

Generate diverse suggestions that help users:
- Drill deeper into specifics
- Compare with other dimensions
- Explore trends over time
- Understand related metrics

Respond with ONLY a JSON array of strings, each being a suggested question.
Example: ["What were the settlement totals for last week?", "How does this compare to the previous month?", "Which merchants contributed most to the total?"]`

var fallbackSuggestions = map[string][]string{
	"analytical": {
		"What are the key trends in this data?",
		"Can you break this down by category?",
		"How does this compare to previous periods?",
	},
	"comparison": {
		"What factors contributed to the differences?",
		"Show me the top performers",
		"What's the trend over time?",
	},
	"trend_analysis": {
		"What caused these changes?",
		"Project the trend for next quarter",
		"Compare this trend with other metrics",
	},
	"general": {
		"Show me a summary of recent data",
		"What are the key insights?",
		"How can I explore this further?",
	},
}

type Recommender struct {
	llm         llm.LLMProvider
	temperature float64
	timeout     time.Duration
	logger      logger.ILogger
}

func NewRecommender(provider llm.LLMProvider, temperature float64, timeout time.Duration, log logger.ILogger) *Recommender {
	return &Recommender{llm: provider, temperature: temperature, timeout: timeout, logger: log}
}

func (r *Recommender) Name() string { return "recommend" }

func (r *Recommender) Run(ctx context.Context, s *state.PipelineState) error {
	s.Suggestions = r.Recommend(ctx, s.UserQuery, s.Analysis(), s.Answer)
	return nil
}

// Recommend returns up to five follow-up questions and never fails.
func (r *Recommender) Recommend(ctx context.Context, question string, analysis state.QueryAnalysis, answer string) []string {
	queryType := analysis.QueryType
	if queryType == "" {
		queryType = defaultQueryType
	}

	contextParts := []string{
		"Current query: " + question,
		"Query type: " + queryType,
	}
	if answer != "" {
		contextParts = append(contextParts, "Response summary: "+utils.Truncate(answer, answerSummaryLen))
	}

	messages := []llm.Message{{
		Role:    llm.RoleUser,
		Content: "Based on this context, suggest 3-5 relevant follow-up questions:\n\n" + strings.Join(contextParts, "\n\n"),
	}}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	response, err := r.llm.Chat(ctx, messages,
		llm.WithSystemPrompt(systemPrompt),
		llm.WithTemperature(r.temperature),
	)
	if err != nil {
		r.logger.Error("Recommendation", "Error generating recommendations", map[string]interface{}{
			"error": err.Error(),
		})
		return Fallback(queryType)
	}

	suggestions := ParseSuggestions(response)
	if len(suggestions) == 0 {
		r.logger.Warn("Recommendation", "No usable suggestions in response, using defaults", map[string]interface{}{
			"response": utils.Truncate(response, 200),
		})
		return Fallback(queryType)
	}

	r.logger.Info("Recommendation", "Generated recommendations", map[string]interface{}{
		"count": len(suggestions),
	})
	return suggestions
}

// ParseSuggestions reads a JSON array of questions out of text, or failing
// that, one question per line with list markers removed.
func ParseSuggestions(text string) []string {
	if raw := utils.ExtractJSONArray(text); raw != "" {
		var items []any
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			var out []string
			for _, item := range items {
				if item == nil {
					continue
				}
				s, ok := item.(string)
				if !ok {
					s = fmt.Sprint(item)
				}
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
				if len(out) == maxSuggestions {
					break
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}

	var out []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		clean := strings.TrimSpace(line)
		clean = strings.TrimLeft(clean, listMarkerCutset)
		clean = strings.Trim(strings.TrimSpace(clean), quoteCutset)
		if utf8.RuneCountInString(clean) > minSuggestionLen {
			out = append(out, clean)
		}
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// Fallback returns the canned suggestions for a query type.
func Fallback(queryType string) []string {
	s, ok := fallbackSuggestions[queryType]
	if !ok {
		s = fallbackSuggestions[defaultQueryType]
	}
	return append([]string(nil), s...)
}
