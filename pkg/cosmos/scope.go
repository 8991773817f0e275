package cosmos

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	disjunction = regexp.MustCompile(`(?i)\b(OR|IN|NOT)\b`)
	aggregation = regexp.MustCompile(`(?i)\b(SUM|COUNT|AVG|MIN|MAX)\s*\(|\bGROUP\s+BY\b|\bORDER\s+BY\b|\bDISTINCT\b|\bTOP\b|\bOFFSET\b`)
)

// ScopeQuery reports the partition key a query is pinned to. Every path must
// be compared with "=" exactly once, against a bound parameter or a literal,
// and the filter must not contain OR, IN or NOT. Anything else needs a
// cross-partition query.
func ScopeQuery(query string, params []QueryParameter, paths []string) (PartitionKey, bool) {
	if len(paths) == 0 || disjunction.MatchString(query) {
		return PartitionKey{}, false
	}

	bound := make(map[string]any, len(params))
	for _, p := range params {
		bound[p.Name] = p.Value
	}

	values := make([]any, 0, len(paths))
	for _, path := range paths {
		re := regexp.MustCompile(`\bc\.` + regexp.QuoteMeta(path) + `\s*=\s*(@\w+|'[^']*'|"[^"]*"|-?\d+(?:\.\d+)?)`)
		matches := re.FindAllStringSubmatch(query, -1)
		if len(matches) != 1 {
			return PartitionKey{}, false
		}
		v, ok := operandValue(matches[0][1], bound)
		if !ok {
			return PartitionKey{}, false
		}
		values = append(values, v)
	}
	return NewPartitionKey(values...), true
}

// NeedsQueryPlan reports whether a query uses a construct the gateway cannot
// serve across partitions without a client-side query plan.
func NeedsQueryPlan(query string) bool {
	return aggregation.MatchString(query)
}

func operandValue(operand string, bound map[string]any) (any, bool) {
	switch {
	case strings.HasPrefix(operand, "@"):
		v, ok := bound[operand]
		return v, ok
	case strings.HasPrefix(operand, "'"), strings.HasPrefix(operand, `"`):
		return operand[1 : len(operand)-1], true
	}
	if n, err := strconv.ParseInt(operand, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(operand, 64)
	return f, err == nil
}
