// Package state defines the typed state threaded through the analytics pipeline.
//
// Field ownership: the understanding stage writes QueryAnalysis,
// ReformulatedQuery, GeneratedQuery and QueryParameters; retrieval writes
// RetrievedRecords, RetrievalMetadata, RAGContext and Sources; response writes
// Answer and AnswerMetadata; recommendation writes Suggestions. A stage reads
// what earlier stages wrote and never rewrites it.
package state

import (
	"context"

	"analytics-chat-be/pkg/cosmos"
	"analytics-chat-be/pkg/llm"
)

type QueryParameter = cosmos.QueryParameter

// QueryAnalysis is the structured reading of a user question.
type QueryAnalysis struct {
	Intent            string           `json:"intent"`
	QueryType         string           `json:"query_type"`
	Entities          map[string]any   `json:"entities"`
	GeneratedQuery    string           `json:"generated_query"`
	QueryParameters   []QueryParameter `json:"query_parameters"`
	ReformulatedQuery string           `json:"reformulated_query"`
	Explanation       string           `json:"explanation,omitempty"`
	// ParseError is set when the model output could not be parsed and the
	// analysis is a fallback.
	ParseError string `json:"parse_error,omitempty"`
}

// Evidence is one supporting source returned by a context retriever.
type Evidence struct {
	ID      string         `json:"id"`
	Title   string         `json:"title,omitempty"`
	Snippet string         `json:"snippet,omitempty"`
	Score   float64        `json:"score,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type RetrievalMetadata struct {
	QueryExecuted bool   `json:"query_executed"`
	RecordCount   int    `json:"record_count"`
	Truncated     bool   `json:"truncated,omitempty"`
	RAGEnabled    bool   `json:"rag_enabled"`
	SourcesCount  int    `json:"sources_count"`
	Error         string `json:"error,omitempty"`
}

type AnswerMetadata struct {
	ContextUsed  bool   `json:"context_used"`
	RecordsUsed  int    `json:"records_used"`
	SourcesCount int    `json:"sources_count"`
	Error        string `json:"error,omitempty"`
}

type PipelineState struct {
	UserQuery           string
	ConversationHistory []llm.Message
	Container           string

	QueryAnalysis     *QueryAnalysis
	ReformulatedQuery string
	GeneratedQuery    string
	QueryParameters   []QueryParameter

	RetrievedRecords  []any
	RetrievalMetadata RetrievalMetadata
	RAGContext        string
	Sources           []Evidence

	Answer         string
	AnswerMetadata AnswerMetadata

	Suggestions []string
}

// Analysis returns the query analysis, or an empty one when understanding has
// not populated it.
func (s *PipelineState) Analysis() QueryAnalysis {
	if s.QueryAnalysis == nil {
		return QueryAnalysis{}
	}
	return *s.QueryAnalysis
}

// Stage is one step of the pipeline. A stage absorbs its own expected failures
// into its output fields; a returned error means the run cannot continue.
type Stage interface {
	Name() string
	Run(ctx context.Context, s *PipelineState) error
}
