package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/pkg/agent/recommendation"
	"analytics-chat-be/pkg/agent/response"
	"analytics-chat-be/pkg/agent/retrieval"
	"analytics-chat-be/pkg/agent/state"
	"analytics-chat-be/pkg/agent/understanding"
	"analytics-chat-be/pkg/llm"
	"analytics-chat-be/pkg/schema"
	"analytics-chat-be/pkg/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DegradedAnswer is returned when the pipeline cannot complete.
const DegradedAnswer = "I apologize, but I encountered an error processing your query. Please try again."

var tracer = otel.Tracer("analytics-chat-be/pkg/agent/executor")

type Config struct {
	Schemas          understanding.SchemaDescriber
	Querier          retrieval.Querier
	ContextRetriever retrieval.ContextRetriever // optional
	LLM              llm.LLMProvider
	Logger           logger.ILogger

	DefaultContainer  string
	MaxRecords        int
	ContextMaxTokens  int
	Temperature       float64
	// StageTimeout bounds each LLM and store call made by a stage.
	StageTimeout      time.Duration
	// PartitionKeyPaths defaults to the key of DefaultContainer's descriptor.
	PartitionKeyPaths []string
}

// StageCount is the number of stages every run goes through.
const StageCount = 4

// TimeoutBudget is the longest a run can take when every stage uses its
// whole StageTimeout.
func (c Config) TimeoutBudget() time.Duration {
	return StageCount * c.StageTimeout
}

type descriptorSource interface {
	Descriptor(container string) (schema.Descriptor, error)
}

// Pipeline runs the fixed UNDERSTAND → RETRIEVE → RESPOND → RECOMMEND sequence.
type Pipeline struct {
	stages           []state.Stage
	defaultContainer string
	budget           time.Duration
	logger           logger.ILogger
}

// TimeoutBudget is zero when stages run without a timeout.
func (p *Pipeline) TimeoutBudget() time.Duration { return p.budget }

func NewPipeline(cfg Config) *Pipeline {
	container := cfg.DefaultContainer
	if container == "" {
		container = "gold"
	}
	keyPaths := cfg.PartitionKeyPaths
	if src, ok := cfg.Schemas.(descriptorSource); ok && len(keyPaths) == 0 {
		if d, err := src.Descriptor(container); err == nil {
			keyPaths = d.PartitionKey.Paths
		}
	}
	p := newPipeline(container, cfg.Logger,
		understanding.NewUnderstander(cfg.LLM, cfg.Schemas, cfg.StageTimeout, cfg.Logger),
		retrieval.NewRetriever(cfg.Querier, cfg.ContextRetriever, retrieval.Config{
			MaxRecords:        cfg.MaxRecords,
			Timeout:           cfg.StageTimeout,
			ContextMaxTokens:  cfg.ContextMaxTokens,
			PartitionKeyPaths: keyPaths,
		}, cfg.Logger),
		response.NewGenerator(cfg.LLM, cfg.Temperature, cfg.StageTimeout, cfg.Logger),
		recommendation.NewRecommender(cfg.LLM, cfg.Temperature, cfg.StageTimeout, cfg.Logger),
	)
	p.budget = cfg.TimeoutBudget()
	return p
}

func newPipeline(defaultContainer string, log logger.ILogger, stages ...state.Stage) *Pipeline {
	return &Pipeline{stages: stages, defaultContainer: defaultContainer, logger: log}
}

type Request struct {
	Question  string
	History   []llm.Message
	Container string
}

type Metadata struct {
	QueryAnalysis *state.QueryAnalysis     `json:"query_analysis,omitempty"`
	Retrieval     *state.RetrievalMetadata `json:"retrieval,omitempty"`
	Answer        *state.AnswerMetadata    `json:"answer,omitempty"`
	Sources       []state.Evidence         `json:"sources,omitempty"`
	Error         string                   `json:"error,omitempty"`
	Duration      time.Duration            `json:"duration"`
}

type Result struct {
	Answer      string   `json:"answer"`
	Suggestions []string `json:"suggestions"`
	Metadata    Metadata `json:"metadata"`
}

// Run always returns a well-formed result. Stage errors and panics end the run
// with DegradedAnswer and the error in the metadata.
func (p *Pipeline) Run(ctx context.Context, req Request) *Result {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	container := req.Container
	if container == "" {
		container = p.defaultContainer
	}

	s := &state.PipelineState{
		UserQuery:           req.Question,
		ConversationHistory: req.History,
		Container:           container,
	}

	p.logger.Info("Pipeline", "Starting pipeline", map[string]interface{}{
		"query":     utils.Truncate(req.Question, 50),
		"container": container,
	})

	for i, stage := range p.stages {
		p.logger.Debug("Pipeline", fmt.Sprintf("[PHASE %d] %s", i+1, stage.Name()), nil)

		if err := p.runStage(ctx, stage, s); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stage failed")
			p.logger.Error("Pipeline", "Pipeline aborted", map[string]interface{}{
				"stage": stage.Name(),
				"error": err.Error(),
				"query": req.Question,
			})
			return &Result{
				Answer:      DegradedAnswer,
				Suggestions: []string{},
				Metadata:    Metadata{Error: err.Error(), Duration: time.Since(start)},
			}
		}
	}

	suggestions := s.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}

	result := &Result{
		Answer:      s.Answer,
		Suggestions: suggestions,
		Metadata: Metadata{
			QueryAnalysis: s.QueryAnalysis,
			Retrieval:     &s.RetrievalMetadata,
			Answer:        &s.AnswerMetadata,
			Sources:       s.Sources,
			Duration:      time.Since(start),
		},
	}

	span.SetAttributes(
		attribute.Int("pipeline.records", s.RetrievalMetadata.RecordCount),
		attribute.Int("pipeline.suggestions", len(suggestions)),
	)
	p.logger.Info("Pipeline", "Pipeline completed", map[string]interface{}{
		"records":     s.RetrievalMetadata.RecordCount,
		"suggestions": len(suggestions),
		"duration_ms": result.Metadata.Duration.Milliseconds(),
	})
	return result
}

func (p *Pipeline) runStage(ctx context.Context, stage state.Stage, s *state.PipelineState) (err error) {
	ctx, span := tracer.Start(ctx, "pipeline."+stage.Name())
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Pipeline", "Stage panicked", map[string]interface{}{
				"stage": stage.Name(),
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
			err = fmt.Errorf("stage %s panicked: %v", stage.Name(), r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	return stage.Run(ctx, s)
}
