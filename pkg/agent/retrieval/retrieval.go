package retrieval

import (
	"context"
	"errors"
	"time"

	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/pkg/agent/state"
	"analytics-chat-be/pkg/cosmos"
)

// Querier is the part of the store the retrieval stage needs.
type Querier interface {
	Query(ctx context.Context, query string, params []cosmos.QueryParameter, opts cosmos.QueryOptions) ([]any, error)
}

// ContextRetriever supplies supplementary unstructured context (e.g. from a
// vector index) alongside the structured query result.
type ContextRetriever interface {
	RelevantContext(ctx context.Context, query string, maxTokens int) (string, []state.Evidence, error)
}

type Config struct {
	MaxRecords        int
	Timeout           time.Duration
	ContextMaxTokens  int
	// PartitionKeyPaths lists the queried container's key fields in order.
	// Queries that pin all of them with equality run against that partition.
	PartitionKeyPaths []string
}

type Retriever struct {
	querier   Querier
	contexter ContextRetriever
	cfg       Config
	logger    logger.ILogger
}

// NewRetriever builds the retrieval stage. contexter may be nil.
func NewRetriever(querier Querier, contexter ContextRetriever, cfg Config, log logger.ILogger) *Retriever {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 100
	}
	if cfg.ContextMaxTokens <= 0 {
		cfg.ContextMaxTokens = 2000
	}
	return &Retriever{querier: querier, contexter: contexter, cfg: cfg, logger: log}
}

func (r *Retriever) Name() string { return "retrieve" }

func (r *Retriever) Run(ctx context.Context, s *state.PipelineState) error {
	records, meta := r.Retrieve(ctx, s.GeneratedQuery, s.QueryParameters)

	if r.contexter != nil {
		query := s.ReformulatedQuery
		if query == "" {
			query = s.UserQuery
		}
		ragContext, sources, err := r.contexter.RelevantContext(ctx, query, r.cfg.ContextMaxTokens)
		if err != nil {
			r.logger.Warn("Retrieval", "Context retrieval failed", map[string]interface{}{"error": err.Error()})
		} else {
			s.RAGContext = ragContext
			s.Sources = sources
			meta.RAGEnabled = true
			meta.SourcesCount = len(sources)
		}
	}

	s.RetrievedRecords = records
	s.RetrievalMetadata = meta
	return nil
}

// Retrieve runs query against the partition it pins, or across partitions
// otherwise. An empty query and any store error both yield an empty record
// set; errors are reported in the metadata.
func (r *Retriever) Retrieve(ctx context.Context, query string, params []cosmos.QueryParameter) ([]any, state.RetrievalMetadata) {
	if query == "" {
		r.logger.Info("Retrieval", "No query generated, skipping data retrieval", nil)
		return []any{}, state.RetrievalMetadata{QueryExecuted: false}
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	// Read one past the cap so truncation is observable.
	opts := cosmos.QueryOptions{CrossPartition: true, MaxItems: r.cfg.MaxRecords + 1}
	if pk, ok := cosmos.ScopeQuery(query, params, r.cfg.PartitionKeyPaths); ok {
		opts.CrossPartition = false
		opts.PartitionKey = pk
	}
	r.logger.Debug("Retrieval", "Executing query", map[string]interface{}{
		"query":           query,
		"cross_partition": opts.CrossPartition,
		"partition_key":   opts.PartitionKey.String(),
	})

	records, err := r.querier.Query(ctx, query, params, opts)
	if err != nil {
		details := map[string]interface{}{
			"error":      err.Error(),
			"query":      query,
			"parameters": params,
		}
		if errors.Is(err, cosmos.ErrCrossPartitionQuery) {
			details["hint"] = "bind every partition key field with equality"
		}
		r.logger.Error("Retrieval", "Query execution failed", details)
		return []any{}, state.RetrievalMetadata{QueryExecuted: true, Error: err.Error()}
	}

	meta := state.RetrievalMetadata{QueryExecuted: true}
	if len(records) > r.cfg.MaxRecords {
		records = records[:r.cfg.MaxRecords]
		meta.Truncated = true
	}
	if records == nil {
		records = []any{}
	}
	meta.RecordCount = len(records)

	r.logger.Info("Retrieval", "Query executed", map[string]interface{}{
		"record_count": meta.RecordCount,
		"truncated":    meta.Truncated,
	})
	return records, meta
}
