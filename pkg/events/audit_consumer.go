package events

import (
	"context"
	"fmt"
	"sync"

	"analytics-chat-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
)

// AuditConsumer writes every event it receives to the audit log.
type AuditConsumer struct {
	sub    message.Subscriber
	topics []string
	handle Handler
	logger logger.ILogger
	wg     sync.WaitGroup
}

func NewAuditConsumer(sub message.Subscriber, audit, log logger.ILogger, eventTypes ...string) *AuditConsumer {
	if len(eventTypes) == 0 {
		eventTypes = []string{TypeQueryAnswered, TypeBulkCompleted}
	}
	topics := make([]string, len(eventTypes))
	for i, t := range eventTypes {
		topics[i] = Topic(t)
	}
	return &AuditConsumer{sub: sub, topics: topics, handle: AuditHandler(audit), logger: log}
}

// AuditHandler returns a handler that writes each event to audit.
func AuditHandler(audit logger.ILogger) Handler {
	return func(_ context.Context, event Event) error {
		details := map[string]interface{}{
			"event_id":    event.EventID(),
			"occurred_at": event.Timestamp(),
		}
		for k, v := range event.Payload() {
			details[k] = v
		}
		audit.Info("Audit", event.EventType(), details)
		return nil
	}
}

// Consume subscribes to every topic and returns once the subscriptions are
// in place. Processing stops when ctx is cancelled or the subscriber closes.
func (c *AuditConsumer) Consume(ctx context.Context) error {
	for _, topic := range c.topics {
		messages, err := c.sub.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for msg := range messages {
				c.processMessage(msg)
			}
		}()
	}
	return nil
}

// Wait blocks until all consume loops have exited.
func (c *AuditConsumer) Wait() {
	c.wg.Wait()
}

func (c *AuditConsumer) processMessage(msg *message.Message) {
	event, err := FromMessage(msg)
	if err != nil {
		c.logger.Error("Events", "Dropping malformed event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack()
		return
	}

	_ = c.handle(msg.Context(), event)
	msg.Ack()
}
