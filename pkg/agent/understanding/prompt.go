package understanding

import (
	"fmt"
	"strings"
)

// queryRules are embedded verbatim in every understanding prompt.
var queryRules = []string{
	"Always filter on `pkType` (and `pkFilter` when a time/category filter is derivable) to keep the query within a single partition scope when possible.",
	"Natural-language dates normalize to an 8-digit `YYYYMMDD` integer-like string; month/year references expand to an inclusive day range.",
	"Cross-partition aggregate queries must wrap the aggregate expression in a scalar-projection marker (`SELECT VALUE`), e.g. `SELECT VALUE COUNT(1) FROM c ...` returns a single count, not a row with a `total` column, because the store rejects unwrapped aggregates under cross-partition fan-out.",
	"Grouped/categorical breakdown queries (GROUP BY) must NOT use the scalar-projection marker; they legitimately return multiple rows.",
	"All literal values are passed as named parameters (`@name`), never inlined, to prevent injection and to enable plan caching.",
}

const responseShape = `{
  "intent": "short label, e.g. aggregate_amount, list_transactions, find_merchant",
  "query_type": "aggregation | filter | summary | comparison | trend_analysis | lookup",
  "entities": {"pkType": "...", "pkFilter": "...", "...": "other extracted slots"},
  "generated_query": "SELECT ... FROM c WHERE c.pkType = @pkType ...",
  "query_parameters": [{"name": "@pkType", "value": "..."}],
  "reformulated_query": "clear standalone restatement of the question",
  "explanation": "one sentence on how the query answers the question"
}`

func buildSystemPrompt(schemaText string) string {
	var sb strings.Builder

	sb.WriteString("You are a query understanding assistant for a financial data analytics system backed by a document database with a SQL-like query language.\n\n")
	sb.WriteString("Analyze the user's question and translate it into a single parameterized query against the container described below.\n\n")

	sb.WriteString("DATABASE SCHEMA:\n")
	sb.WriteString(schemaText)
	sb.WriteString("\n\n")

	sb.WriteString("QUERY GENERATION RULES:\n")
	for i, rule := range queryRules {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, rule))
	}
	sb.WriteString("\n")

	sb.WriteString("Respond with ONLY a JSON object of this shape:\n")
	sb.WriteString(responseShape)
	sb.WriteString("\n\nIf the question cannot be answered from this container, set \"generated_query\" to an empty string and explain why.")

	return sb.String()
}
