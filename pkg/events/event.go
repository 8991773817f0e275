package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeQueryAnswered = "query.answered"
	TypeBulkCompleted = "bulk.completed"
)

// Event defines the contract for all system events.
type Event interface {
	// EventID is unique per occurrence and doubles as the broker dedupe key.
	EventID() string

	// EventType returns the routing code for this event (e.g., "query.answered").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Handler processes one delivered event.
type Handler func(ctx context.Context, event Event) error

type BaseEvent struct {
	ID         string
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func NewEvent(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

func (e BaseEvent) EventID() string {
	return e.ID
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// QueryAnswered describes one finished pipeline run.
type QueryAnswered struct {
	ConversationID string
	UserID         string
	Container      string
	Question       string
	Query          string
	Records        int
	Suggestions    int
	Degraded       bool
	Duration       time.Duration
}

func NewQueryAnsweredEvent(q QueryAnswered) BaseEvent {
	return NewEvent(TypeQueryAnswered, map[string]interface{}{
		"conversation_id": q.ConversationID,
		"user_id":         q.UserID,
		"container":       q.Container,
		"question":        q.Question,
		"query":           q.Query,
		"records":         q.Records,
		"suggestions":     q.Suggestions,
		"degraded":        q.Degraded,
		"duration_ms":     q.Duration.Milliseconds(),
	})
}

// BulkCompleted describes one bulk create, upsert or delete.
type BulkCompleted struct {
	Operation string
	Container string
	Requested int
	Succeeded int
	Failed    int
	DryRun    bool
}

func NewBulkCompletedEvent(b BulkCompleted) BaseEvent {
	return NewEvent(TypeBulkCompleted, map[string]interface{}{
		"operation": b.Operation,
		"container": b.Container,
		"requested": b.Requested,
		"succeeded": b.Succeeded,
		"failed":    b.Failed,
		"dry_run":   b.DryRun,
	})
}
