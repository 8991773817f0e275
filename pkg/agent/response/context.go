package response

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"analytics-chat-be/pkg/agent/state"
)

const (
	maxExampleRecords  = 5
	maxFieldsPerRecord = 5
)

// buildContext renders the data the answer must be grounded on. It returns ""
// when there is nothing to ground on.
func buildContext(analysis state.QueryAnalysis, records []any, ragContext string) string {
	var parts []string

	if ragContext != "" {
		parts = append(parts, "## Relevant Context:\n"+ragContext)
	}

	if len(records) > 0 {
		parts = append(parts, "## Financial Data:\n"+summarizeRecords(records))
		if analysis.GeneratedQuery != "" {
			parts = append(parts, fmt.Sprintf("## Query Analysis:\nIntent: %s\nQuery type: %s\nExecuted query: %s",
				analysis.Intent, analysis.QueryType, analysis.GeneratedQuery))
		}
	}

	return strings.Join(parts, "\n\n")
}

func summarizeRecords(records []any) string {
	lines := []string{fmt.Sprintf("Found %d records:", len(records))}

	for i, record := range records {
		if i >= maxExampleRecords {
			break
		}
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, formatRecord(record)))
	}

	if len(records) > maxExampleRecords {
		lines = append(lines, fmt.Sprintf("... and %d more records", len(records)-maxExampleRecords))
	}
	return strings.Join(lines, "\n")
}

// formatRecord shows the first fields of a document in key order, or the value
// itself for scalar projections such as SELECT VALUE SUM(...).
func formatRecord(record any) string {
	doc, ok := record.(map[string]any)
	if !ok {
		return formatValue(record)
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > maxFieldsPerRecord {
		keys = keys[:maxFieldsPerRecord]
	}

	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = fmt.Sprintf("%s: %s", k, formatValue(doc[k]))
	}
	return strings.Join(fields, ", ")
}

func formatValue(v any) string {
	switch tv := v.(type) {
	case nil:
		return "null"
	case string:
		return tv
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case map[string]any, []any:
		b, err := json.Marshal(tv)
		if err != nil {
			return fmt.Sprint(tv)
		}
		return string(b)
	default:
		return fmt.Sprint(tv)
	}
}
