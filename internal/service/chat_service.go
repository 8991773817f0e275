package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"analytics-chat-be/internal/dto"
	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/internal/repository/memory"
	"analytics-chat-be/pkg/agent/executor"
	"analytics-chat-be/pkg/cosmos"
	"analytics-chat-be/pkg/events"
	"analytics-chat-be/pkg/lease"
	"analytics-chat-be/pkg/llm"
	"analytics-chat-be/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type IChatService interface {
	Ask(ctx context.Context, request *dto.AskRequest) (*dto.AskResponse, error)
	History(conversationID string) []llm.Message
	ClearConversation(conversationID string)
}

// PipelineRunner is satisfied by *executor.Pipeline.
type PipelineRunner interface {
	Run(ctx context.Context, req executor.Request) *executor.Result
}

type timeoutBudgeter interface {
	TimeoutBudget() time.Duration
}

// LeaseTTL is the conversation lease ttl used for a pipeline: the configured
// value, raised to the pipeline's timeout budget plus a quarter when shorter.
func LeaseTTL(configured time.Duration, pipeline PipelineRunner) time.Duration {
	if configured <= 0 {
		configured = 2 * time.Minute
	}
	if b, ok := pipeline.(timeoutBudgeter); ok {
		if floor := b.TimeoutBudget() + b.TimeoutBudget()/4; configured < floor {
			return floor
		}
	}
	return configured
}

type chatService struct {
	pipeline  PipelineRunner
	users     cosmos.Container
	memory    *memory.ConversationRepository
	locker    lease.Locker
	publisher events.Publisher
	validate  *validator.Validate
	leaseTTL  time.Duration
	logger    logger.ILogger
}

// NewChatService builds the chat service. users may be nil, in which case
// user ids on requests are not resolved.
func NewChatService(
	pipeline PipelineRunner,
	users cosmos.Container,
	conversations *memory.ConversationRepository,
	locker lease.Locker,
	publisher events.Publisher,
	leaseTTL time.Duration,
	log logger.ILogger,
) IChatService {
	leaseTTL = LeaseTTL(leaseTTL, pipeline)
	return &chatService{
		pipeline:  pipeline,
		users:     users,
		memory:    conversations,
		locker:    locker,
		publisher: publisher,
		validate:  validator.New(),
		leaseTTL:  leaseTTL,
		logger:    log,
	}
}

// Ask runs one question through the pipeline. Runs for the same conversation
// are serialized by a lease; pipeline failures come back as a degraded answer,
// not an error.
func (cs *chatService) Ask(ctx context.Context, request *dto.AskRequest) (*dto.AskResponse, error) {
	if err := cs.validate.Struct(request); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if err := cs.resolveUser(ctx, request.UserID); err != nil {
		return nil, err
	}

	conversationID := request.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	acquireCtx, cancel := context.WithTimeout(ctx, cs.leaseTTL)
	held, err := cs.locker.Acquire(acquireCtx, "conversation:"+conversationID, cs.leaseTTL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("conversation %s is busy: %w", conversationID, err)
	}
	stopKeepAlive := lease.KeepAlive(ctx, held, cs.leaseTTL, func(err error) {
		cs.logger.Warn("ChatService", "Failed to extend lease", map[string]interface{}{
			"conversation_id": conversationID,
			"error":           err.Error(),
		})
	})
	defer func() {
		stopKeepAlive()
		if err := held.Release(context.Background()); err != nil {
			cs.logger.Warn("ChatService", "Failed to release lease", map[string]interface{}{
				"conversation_id": conversationID,
				"error":           err.Error(),
			})
		}
	}()

	history := cs.memory.History(conversationID)

	result := cs.pipeline.Run(ctx, executor.Request{
		Question:  request.Question,
		History:   history,
		Container: request.Container,
	})

	degraded := result.Metadata.Error != ""
	if !degraded {
		cs.memory.Append(conversationID,
			llm.Message{Role: llm.RoleUser, Content: request.Question},
			llm.Message{Role: llm.RoleAssistant, Content: result.Answer},
		)
	}

	cs.publish(ctx, conversationID, request, result, degraded)

	cs.logger.Info("ChatService", "Question answered", map[string]interface{}{
		"conversation_id": conversationID,
		"question":        utils.Truncate(request.Question, 100),
		"degraded":        degraded,
		"history_len":     len(history),
	})

	return &dto.AskResponse{
		ConversationID: conversationID,
		Answer:         result.Answer,
		Suggestions:    result.Suggestions,
		Metadata:       result.Metadata,
	}, nil
}

func (cs *chatService) publish(ctx context.Context, conversationID string, request *dto.AskRequest, result *executor.Result, degraded bool) {
	answered := events.QueryAnswered{
		ConversationID: conversationID,
		UserID:         request.UserID,
		Container:      request.Container,
		Question:       request.Question,
		Suggestions:    len(result.Suggestions),
		Degraded:       degraded,
		Duration:       result.Metadata.Duration,
	}
	if a := result.Metadata.QueryAnalysis; a != nil {
		answered.Query = a.GeneratedQuery
	}
	if r := result.Metadata.Retrieval; r != nil {
		answered.Records = r.RecordCount
	}

	if err := cs.publisher.Publish(ctx, events.NewQueryAnsweredEvent(answered)); err != nil {
		cs.logger.Warn("ChatService", "Failed to publish event", map[string]interface{}{
			"conversation_id": conversationID,
			"error":           err.Error(),
		})
	}
}

// resolveUser checks the user exists. Profiles are sometimes stored under a
// partition key other than their id, so the lookup falls back to a
// cross-partition query.
func (cs *chatService) resolveUser(ctx context.Context, userID string) error {
	if userID == "" || cs.users == nil {
		return nil
	}
	if _, err := cosmos.FindItem(ctx, cs.users, userID, cosmos.NewPartitionKey(userID)); err != nil {
		if errors.Is(err, cosmos.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return fmt.Errorf("lookup user %s: %w", userID, err)
	}
	return nil
}

func (cs *chatService) History(conversationID string) []llm.Message {
	return cs.memory.History(conversationID)
}

func (cs *chatService) ClearConversation(conversationID string) {
	cs.memory.Clear(conversationID)
}
