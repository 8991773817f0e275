package bootstrap

import (
	"context"
	"fmt"
	"time"

	"analytics-chat-be/internal/config"
	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/internal/repository/memory"
	"analytics-chat-be/internal/service"
	"analytics-chat-be/internal/tracer"
	"analytics-chat-be/pkg/agent/executor"
	"analytics-chat-be/pkg/cosmos"
	"analytics-chat-be/pkg/events"
	"analytics-chat-be/pkg/lease"
	"analytics-chat-be/pkg/llm"
	"analytics-chat-be/pkg/llm/factory"
	"analytics-chat-be/pkg/schema"

	pktNats "analytics-chat-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

const bulkConcurrency = 10

type Container struct {
	Logger      logger.ILogger
	AuditLogger logger.ILogger

	ChatService    service.IChatService
	SeederService  service.ISeederService
	DeleterService service.IDeleterService

	gateway   *cosmos.Gateway
	publisher events.Publisher
	closers   []func()
}

// NewToolsContainer wires the store, event bus and the seeding and deletion
// services. It never touches the LLM, so a bad provider setup cannot block
// data maintenance. ChatService stays nil.
func NewToolsContainer(cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	auditLogger := logger.NewIsolatedLogger(cfg.App.AuditLogFilePath)
	shutdownTracer := tracer.InitTracer(cfg.Tracing)

	c := &Container{Logger: sysLogger, AuditLogger: auditLogger}
	c.closers = append(c.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(ctx)
	})

	// 2. Store
	gateway, err := cosmos.NewGateway(cosmos.GatewayConfig{
		Endpoint:   cfg.Cosmos.Endpoint,
		Key:        cfg.Cosmos.Key,
		Database:   cfg.Cosmos.Database,
		Containers: cfg.Cosmos.Containers(),
		MaxRetries: cfg.Cosmos.MaxRetries,
	}, sysLogger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init cosmos gateway: %w", err)
	}
	c.gateway = gateway
	bulk := cosmos.NewBulkExecutor(bulkConcurrency, sysLogger)
	c.closers = append(c.closers, bulk.Stop)

	// 3. Event Bus
	c.publisher = c.initEvents(cfg, sysLogger, auditLogger)

	// 4. Maintenance services
	c.SeederService = service.NewSeederService(gateway, bulk, c.publisher, sysLogger)
	c.DeleterService = service.NewDeleterService(gateway, bulk, c.publisher, sysLogger)

	return c, nil
}

// NewContainer wires every component once. Optional infrastructure (Redis,
// NATS) falls back to in-process implementations when unreachable.
func NewContainer(cfg *config.Config) (*Container, error) {
	c, err := NewToolsContainer(cfg)
	if err != nil {
		return nil, err
	}
	sysLogger := c.Logger

	// 5. Conversation infrastructure
	conversations := memory.NewConversationRepository(cfg.Pipeline.MaxConversationHistory)
	locker := c.initLocker(cfg, sysLogger)

	// 6. Pipeline
	llmProvider, err := factory.NewLLMProvider(cfg.Ai)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init LLM provider: %w", err)
	}
	sysLogger.Info("Bootstrap", "Using LLM provider", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	pipeline, err := newPipeline(cfg, c.gateway, llmProvider, sysLogger)
	if err != nil {
		c.Close()
		return nil, err
	}

	// 7. Chat
	users, err := c.gateway.Container("users")
	if err != nil {
		sysLogger.Warn("Bootstrap", "Users container unavailable, user ids will not be resolved", map[string]interface{}{
			"error": err.Error(),
		})
		users = nil
	}
	leaseTTL := service.LeaseTTL(cfg.Pipeline.LeaseTTL, pipeline)
	if leaseTTL != cfg.Pipeline.LeaseTTL {
		sysLogger.Info("Bootstrap", "Conversation lease ttl raised to cover pipeline timeouts", map[string]interface{}{
			"configured": cfg.Pipeline.LeaseTTL.String(),
			"effective":  leaseTTL.String(),
		})
	}
	c.ChatService = service.NewChatService(pipeline, users, conversations, locker, c.publisher, leaseTTL, sysLogger)

	return c, nil
}

func newPipeline(cfg *config.Config, gateway *cosmos.Gateway, provider llm.LLMProvider, log logger.ILogger) (*executor.Pipeline, error) {
	gold, err := gateway.Container(cfg.Pipeline.DefaultContainer)
	if err != nil {
		return nil, fmt.Errorf("open %s container: %w", cfg.Pipeline.DefaultContainer, err)
	}
	return executor.NewPipeline(executor.Config{
		Schemas:          schema.DefaultCatalog(),
		Querier:          gold,
		LLM:              provider,
		Logger:           log,
		DefaultContainer: cfg.Pipeline.DefaultContainer,
		MaxRecords:       cfg.Pipeline.MaxRecords,
		ContextMaxTokens: cfg.Pipeline.ContextWindowSize,
		Temperature:      cfg.Ai.Temperature,
		StageTimeout:     cfg.Ai.RequestTimeout,
	}), nil
}

func (c *Container) initEvents(cfg *config.Config, log, audit logger.ILogger) events.Publisher {
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, log)
		if err == nil {
			c.closers = append(c.closers, natsPub.Close)

			natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL, log)
			if err == nil {
				c.closers = append(c.closers, natsSub.Close)
				if err := natsSub.Subscribe(context.Background(), events.Topic(">"), "audit", events.AuditHandler(audit)); err != nil {
					log.Warn("Bootstrap", "Failed to subscribe audit consumer", map[string]interface{}{"error": err.Error()})
				}
			} else {
				log.Warn("Bootstrap", "Failed to connect NATS subscriber", map[string]interface{}{"error": err.Error()})
			}
			return natsPub
		}
		log.Warn("Bootstrap", "Failed to connect to NATS, using in-process bus", map[string]interface{}{"error": err.Error()})
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	consumer := events.NewAuditConsumer(pubSub, audit, log)
	if err := consumer.Consume(context.Background()); err != nil {
		log.Warn("Bootstrap", "Failed to start audit consumer", map[string]interface{}{"error": err.Error()})
	}
	c.closers = append(c.closers, func() {
		_ = pubSub.Close()
		consumer.Wait()
	})
	return events.NewChannelPublisher(pubSub)
}

func (c *Container) initLocker(cfg *config.Config, log logger.ILogger) lease.Locker {
	if cfg.App.RedisURL == "" {
		return lease.NewLocalLocker()
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Warn("Bootstrap", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Bootstrap", "Failed to connect to Redis, using local leases", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		return lease.NewLocalLocker()
	}

	c.closers = append(c.closers, func() { _ = rdb.Close() })
	return lease.NewRedisLocker(rdb, log)
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
	_ = c.AuditLogger.Sync()
	_ = c.Logger.Sync()
}
