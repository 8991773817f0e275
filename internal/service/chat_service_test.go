package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"analytics-chat-be/internal/dto"
	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/internal/repository/memory"
	"analytics-chat-be/pkg/agent/executor"
	"analytics-chat-be/pkg/agent/state"
	"analytics-chat-be/pkg/cosmos"
	"analytics-chat-be/pkg/cosmos/cosmostest"
	"analytics-chat-be/pkg/events"
	"analytics-chat-be/pkg/lease"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPipeline struct {
	mu       sync.Mutex
	requests []executor.Request
	result   *executor.Result
	delay    time.Duration
	active   int
	peak     int
}

func (s *stubPipeline) Run(_ context.Context, req executor.Request) *executor.Result {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	s.mu.Unlock()

	time.Sleep(s.delay)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return s.result
}

func answered(answer string) *executor.Result {
	return &executor.Result{
		Answer:      answer,
		Suggestions: []string{"next?"},
		Metadata: executor.Metadata{
			QueryAnalysis: &state.QueryAnalysis{GeneratedQuery: "SELECT * FROM c"},
			Retrieval:     &state.RetrievalMetadata{QueryExecuted: true, RecordCount: 2},
		},
	}
}

func newChat(p PipelineRunner, pub events.Publisher) (IChatService, *memory.ConversationRepository) {
	return newChatWithUsers(p, pub, nil)
}

func newChatWithUsers(p PipelineRunner, pub events.Publisher, users cosmos.Container) (IChatService, *memory.ConversationRepository) {
	repo := memory.NewConversationRepository(10)
	return NewChatService(p, users, repo, lease.NewLocalLocker(), pub, time.Second, logger.NewNopLogger()), repo
}

func TestAskRecordsHistoryAndPublishes(t *testing.T) {
	p := &stubPipeline{result: answered("It was $1250.50.")}
	pub := &recordingPublisher{}
	chat, _ := newChat(p, pub)

	first, err := chat.Ask(context.Background(), &dto.AskRequest{ConversationID: "c1", Question: "total?"})
	require.NoError(t, err)
	assert.Equal(t, "c1", first.ConversationID)
	assert.Equal(t, "It was $1250.50.", first.Answer)

	_, err = chat.Ask(context.Background(), &dto.AskRequest{ConversationID: "c1", Question: "and yesterday?"})
	require.NoError(t, err)

	require.Len(t, p.requests, 2)
	assert.Empty(t, p.requests[0].History)
	require.Len(t, p.requests[1].History, 2)
	assert.Equal(t, "total?", p.requests[1].History[0].Content)
	assert.Len(t, chat.History("c1"), 4)

	published := pub.published()
	require.Len(t, published, 2)
	assert.Equal(t, events.TypeQueryAnswered, published[0].EventType())
	assert.Equal(t, 2, published[0].Payload()["records"])
	assert.Equal(t, "SELECT * FROM c", published[0].Payload()["query"])
}

func TestAskGeneratesConversationID(t *testing.T) {
	chat, _ := newChat(&stubPipeline{result: answered("ok")}, events.NopPublisher{})
	res, err := chat.Ask(context.Background(), &dto.AskRequest{Question: "hi"})
	require.NoError(t, err)
	assert.Len(t, res.ConversationID, 36)
}

func TestAskDegradedResultIsNotRemembered(t *testing.T) {
	p := &stubPipeline{result: &executor.Result{
		Answer:      executor.DegradedAnswer,
		Suggestions: []string{},
		Metadata:    executor.Metadata{Error: "boom"},
	}}
	pub := &recordingPublisher{}
	chat, _ := newChat(p, pub)

	res, err := chat.Ask(context.Background(), &dto.AskRequest{ConversationID: "c1", Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, executor.DegradedAnswer, res.Answer)
	assert.Empty(t, chat.History("c1"))
	assert.Equal(t, true, pub.published()[0].Payload()["degraded"])
}

func TestAskSerializesSameConversation(t *testing.T) {
	p := &stubPipeline{result: answered("ok"), delay: 10 * time.Millisecond}
	chat, _ := newChat(p, events.NopPublisher{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := chat.Ask(context.Background(), &dto.AskRequest{ConversationID: "same", Question: "q"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, p.peak)
	assert.Len(t, chat.History("same"), 8)
}

func TestAskValidationAndPublishFailure(t *testing.T) {
	chat, _ := newChat(&stubPipeline{result: answered("ok")}, &recordingPublisher{err: errors.New("bus down")})

	_, err := chat.Ask(context.Background(), &dto.AskRequest{ConversationID: "c1"})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	res, err := chat.Ask(context.Background(), &dto.AskRequest{ConversationID: "c1", Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Answer)

	chat.ClearConversation("c1")
	assert.Empty(t, chat.History("c1"))
}

func TestAskResolvesUserAcrossPartitions(t *testing.T) {
	users := cosmostest.NewFakeContainer("users")
	// stored under a tenant key rather than its own id
	users.Put(cosmos.NewPartitionKey("tenant-1"), cosmos.Record{"id": "u1", "partitionKey": "tenant-1"})
	users.QueryResult(map[string]any{"id": "u1", "partitionKey": "tenant-1"})

	p := &stubPipeline{result: answered("ok")}
	pub := &recordingPublisher{}
	chat, _ := newChatWithUsers(p, pub, users)

	_, err := chat.Ask(context.Background(), &dto.AskRequest{UserID: "u1", Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "u1", pub.published()[0].Payload()["user_id"])
	require.Len(t, users.Queries(), 1)
	assert.True(t, users.Queries()[0].Opts.CrossPartition)

	users.QueryResult()
	_, err = chat.Ask(context.Background(), &dto.AskRequest{UserID: "ghost", Question: "q"})
	assert.True(t, errors.Is(err, ErrUserNotFound))
	assert.Len(t, p.requests, 1)
}

type trackingLocker struct {
	lease.Locker
	mu      sync.Mutex
	ttls    []time.Duration
	extends int
}

func (l *trackingLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (lease.Lease, error) {
	held, err := l.Locker.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.ttls = append(l.ttls, ttl)
	l.mu.Unlock()
	return &trackedLease{Lease: held, locker: l}, nil
}

func (l *trackingLocker) extendCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extends
}

type trackedLease struct {
	lease.Lease
	locker *trackingLocker
}

func (t *trackedLease) Extend(ctx context.Context, ttl time.Duration) error {
	t.locker.mu.Lock()
	t.locker.extends++
	t.locker.mu.Unlock()
	return t.Lease.Extend(ctx, ttl)
}

type budgetedPipeline struct {
	*stubPipeline
	budget time.Duration
}

func (b budgetedPipeline) TimeoutBudget() time.Duration { return b.budget }

func TestLeaseTTLCoversPipelineTimeoutBudget(t *testing.T) {
	pipeline := executor.NewPipeline(executor.Config{StageTimeout: 60 * time.Second, Logger: logger.NewNopLogger()})
	require.Equal(t, 4*time.Minute, pipeline.TimeoutBudget())
	assert.GreaterOrEqual(t, LeaseTTL(2*time.Minute, pipeline), pipeline.TimeoutBudget())
	assert.Equal(t, 10*time.Minute, LeaseTTL(10*time.Minute, pipeline))
	assert.Equal(t, 2*time.Minute, LeaseTTL(0, &stubPipeline{}))

	locker := &trackingLocker{Locker: lease.NewLocalLocker()}
	p := budgetedPipeline{stubPipeline: &stubPipeline{result: answered("ok")}, budget: 4 * time.Minute}
	chat := NewChatService(p, nil, memory.NewConversationRepository(10), locker, events.NopPublisher{}, 2*time.Minute, logger.NewNopLogger())

	_, err := chat.Ask(context.Background(), &dto.AskRequest{ConversationID: "c1", Question: "q"})
	require.NoError(t, err)
	require.Len(t, locker.ttls, 1)
	assert.GreaterOrEqual(t, locker.ttls[0], 4*time.Minute)
}

func TestAskKeepsLeaseAliveDuringLongRuns(t *testing.T) {
	locker := &trackingLocker{Locker: lease.NewLocalLocker()}
	p := &stubPipeline{result: answered("ok"), delay: 150 * time.Millisecond}
	chat := NewChatService(p, nil, memory.NewConversationRepository(10), locker, events.NopPublisher{}, 30*time.Millisecond, logger.NewNopLogger())

	_, err := chat.Ask(context.Background(), &dto.AskRequest{ConversationID: "c1", Question: "q"})
	require.NoError(t, err)
	assert.Positive(t, locker.extendCount())

	n := locker.extendCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, locker.extendCount())
}
