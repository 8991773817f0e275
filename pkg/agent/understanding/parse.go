package understanding

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"analytics-chat-be/pkg/agent/state"
	"analytics-chat-be/pkg/utils"
)

var (
	ErrNoJSONObject = errors.New("no JSON object in model output")
	ErrMissingKeys  = errors.New("model output is missing required keys")
)

var requiredKeys = []string{"intent", "query_type", "entities", "generated_query"}

// ParseAnalysis decodes model output into a QueryAnalysis. It tries the whole
// text as JSON first and only then scans for an embedded object.
func ParseAnalysis(text string) (*state.QueryAnalysis, error) {
	raw := strings.TrimSpace(text)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		raw = utils.ExtractJSONObject(text)
		if raw == "" {
			return nil, ErrNoJSONObject
		}
		fields = nil
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoJSONObject, err)
		}
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingKeys, strings.Join(missing, ", "))
	}

	var analysis state.QueryAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	if analysis.Entities == nil {
		analysis.Entities = map[string]any{}
	}
	if analysis.QueryParameters == nil {
		analysis.QueryParameters = []state.QueryParameter{}
	}
	analysis.GeneratedQuery = strings.TrimSpace(analysis.GeneratedQuery)
	return &analysis, nil
}

// Fallback is the analysis used when the model output is unusable. Its empty
// GeneratedQuery tells retrieval there is nothing to run.
func Fallback(question, reason string) *state.QueryAnalysis {
	return &state.QueryAnalysis{
		Intent:            "unknown",
		QueryType:         "general",
		Entities:          map[string]any{},
		GeneratedQuery:    "",
		QueryParameters:   []state.QueryParameter{},
		ReformulatedQuery: question,
		ParseError:        reason,
	}
}
