// Package cosmostest provides an in-memory cosmos.Container for tests.
package cosmostest

import (
	"context"
	"fmt"
	"sync"

	"analytics-chat-be/pkg/cosmos"
)

// QueryCall records one Query invocation.
type QueryCall struct {
	Query  string
	Params []cosmos.QueryParameter
	Opts   cosmos.QueryOptions
}

// BatchCall records one ExecuteBatch invocation.
type BatchCall struct {
	PartitionKey cosmos.PartitionKey
	Ops          []cosmos.BatchOperation
}

// FakeContainer keeps documents in memory keyed by partition key and id.
// Query results are scripted with QueryResult/QueryError.
type FakeContainer struct {
	name string

	mu          sync.Mutex
	items       map[string]map[string]cosmos.Record
	queryResult []any
	queryErr    error
	planless    bool
	batchErrs   map[string]error
	statusFn    func(pk cosmos.PartitionKey, op cosmos.BatchOperation) int
	queries     []QueryCall
	batches     []BatchCall
	deletes     int
	inFlight    int
	maxInFlight int
	batchGate   chan struct{}
}

var _ cosmos.Container = &FakeContainer{}

func NewFakeContainer(name string) *FakeContainer {
	return &FakeContainer{
		name:      name,
		items:     map[string]map[string]cosmos.Record{},
		batchErrs: map[string]error{},
	}
}

func (f *FakeContainer) Name() string { return f.name }

// QueryResult scripts what every subsequent Query returns.
func (f *FakeContainer) QueryResult(results ...any) *FakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryResult = results
	f.queryErr = nil
	return f
}

func (f *FakeContainer) QueryError(err error) *FakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr = err
	return f
}

// RejectUnscopedAggregates makes Query fail the way the store does for
// cross-partition queries that need a query plan.
func (f *FakeContainer) RejectUnscopedAggregates() *FakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.planless = true
	return f
}

// FailBatch makes every ExecuteBatch against pk return err.
func (f *FakeContainer) FailBatch(pk cosmos.PartitionKey, err error) *FakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchErrs[pk.String()] = err
	return f
}

// StatusFunc overrides the per-operation status reported by ExecuteBatch.
func (f *FakeContainer) StatusFunc(fn func(pk cosmos.PartitionKey, op cosmos.BatchOperation) int) *FakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusFn = fn
	return f
}

// HoldBatches blocks ExecuteBatch until the returned release func is called,
// so tests can observe how many batches run at once.
func (f *FakeContainer) HoldBatches() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.batchGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Put stores a document directly.
func (f *FakeContainer) Put(pk cosmos.PartitionKey, item cosmos.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(pk, item)
}

func (f *FakeContainer) put(pk cosmos.PartitionKey, item cosmos.Record) {
	k := pk.String()
	if f.items[k] == nil {
		f.items[k] = map[string]cosmos.Record{}
	}
	f.items[k][fmt.Sprint(item["id"])] = item
}

func (f *FakeContainer) Query(_ context.Context, query string, params []cosmos.QueryParameter, opts cosmos.QueryOptions) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, QueryCall{Query: query, Params: append([]cosmos.QueryParameter(nil), params...), Opts: opts})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.planless && opts.CrossPartition && cosmos.NeedsQueryPlan(query) {
		return nil, fmt.Errorf("%w: 400 Bad Request", cosmos.ErrCrossPartitionQuery)
	}
	out := append([]any{}, f.queryResult...)
	if opts.MaxItems > 0 && len(out) > opts.MaxItems {
		out = out[:opts.MaxItems]
	}
	return out, nil
}

func (f *FakeContainer) ReadItem(_ context.Context, pk cosmos.PartitionKey, id string) (cosmos.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[pk.String()][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cosmos.ErrNotFound, id)
	}
	return item, nil
}

func (f *FakeContainer) CreateItem(_ context.Context, pk cosmos.PartitionKey, item cosmos.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.items[pk.String()][fmt.Sprint(item["id"])]; exists {
		return fmt.Errorf("conflict: %v", item["id"])
	}
	f.put(pk, item)
	return nil
}

func (f *FakeContainer) UpsertItem(_ context.Context, pk cosmos.PartitionKey, item cosmos.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(pk, item)
	return nil
}

func (f *FakeContainer) DeleteItem(_ context.Context, pk cosmos.PartitionKey, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if _, ok := f.items[pk.String()][id]; !ok {
		return fmt.Errorf("%w: %s", cosmos.ErrNotFound, id)
	}
	delete(f.items[pk.String()], id)
	return nil
}

func (f *FakeContainer) ExecuteBatch(_ context.Context, pk cosmos.PartitionKey, ops []cosmos.BatchOperation) ([]int, error) {
	f.mu.Lock()
	f.batches = append(f.batches, BatchCall{PartitionKey: pk, Ops: append([]cosmos.BatchOperation(nil), ops...)})
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	gate := f.batchGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--

	if len(ops) > cosmos.MaxBatchSize {
		return nil, cosmos.ErrBatchTooLarge
	}
	if err := f.batchErrs[pk.String()]; err != nil {
		return nil, err
	}

	statuses := make([]int, len(ops))
	for i, op := range ops {
		if f.statusFn != nil {
			statuses[i] = f.statusFn(pk, op)
			continue
		}
		switch op.Kind {
		case cosmos.OpCreate:
			f.put(pk, op.Item)
			statuses[i] = 201
		case cosmos.OpUpsert:
			f.put(pk, op.Item)
			statuses[i] = 200
		case cosmos.OpDelete:
			f.deletes++
			delete(f.items[pk.String()], op.ID)
			statuses[i] = 204
		}
	}
	return statuses, nil
}

func (f *FakeContainer) Queries() []QueryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]QueryCall(nil), f.queries...)
}

func (f *FakeContainer) Batches() []BatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]BatchCall(nil), f.batches...)
}

// DeleteCalls counts single-item and batched delete operations.
func (f *FakeContainer) DeleteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes
}

// MaxConcurrentBatches reports the peak number of overlapping ExecuteBatch calls.
func (f *FakeContainer) MaxConcurrentBatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// Len counts stored documents.
func (f *FakeContainer) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.items {
		n += len(p)
	}
	return n
}
