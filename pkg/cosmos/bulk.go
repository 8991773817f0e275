package cosmos

import (
	"context"
	"fmt"

	"analytics-chat-be/internal/pkg/logger"

	"github.com/alitto/pond/v2"
	"go.opentelemetry.io/otel/attribute"
)

// MaxBatchSize is the store's ceiling on operations per transactional batch.
const MaxBatchSize = 100

// BulkResult accounts for one bulk call. Partial failures never surface as an
// error; they show up as Requested-Count and in Errors.
type BulkResult struct {
	Operation OperationKind
	Requested int
	Count     int
	// Succeeded holds the created or upserted documents. Empty for deletes.
	Succeeded []Record
	// Dropped counts items skipped before any I/O because their partition key
	// could not be computed.
	Dropped int
	Errors  []string
}

func (r *BulkResult) Failed() int {
	return r.Requested - r.Count
}

// ItemRef addresses one document for deletion.
type ItemRef struct {
	ID           string
	PartitionKey PartitionKey
}

type partitionGroup struct {
	key   PartitionKey
	items []Record
	refs  []ItemRef
}

type partitionOutcome struct {
	key       PartitionKey
	succeeded []Record
	count     int
	errors    []string
}

// BulkExecutor fans per-partition batches out over a bounded worker pool.
type BulkExecutor struct {
	pool   pond.ResultPool[partitionOutcome]
	logger logger.ILogger
}

func NewBulkExecutor(concurrency int, log logger.ILogger) *BulkExecutor {
	if concurrency <= 0 {
		concurrency = 10
	}
	return &BulkExecutor{
		pool:   pond.NewResultPool[partitionOutcome](concurrency),
		logger: log,
	}
}

func (b *BulkExecutor) Stop() {
	b.pool.StopAndWait()
}

// BulkCreate inserts items grouped by partition key. A single partition runs
// its chunks in sequence; several partitions run concurrently.
func (b *BulkExecutor) BulkCreate(ctx context.Context, c Container, items []Record, spec KeySpec) (*BulkResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	ctx, span := tracer.Start(ctx, "cosmos.bulk.create")
	defer span.End()

	groups, dropped := b.groupItems(c, items, spec)
	result := &BulkResult{Operation: OpCreate, Requested: len(items), Dropped: dropped}
	span.SetAttributes(attribute.Int("cosmos.partitions", len(groups)), attribute.Int("cosmos.items", len(items)))

	if len(groups) == 1 {
		merge(result, b.writePartition(ctx, c, OpCreate, groups[0]))
	} else {
		for _, outcome := range b.fanOut(groups, func(g partitionGroup) partitionOutcome {
			return b.writePartition(ctx, c, OpCreate, g)
		}) {
			merge(result, outcome)
		}
	}

	b.logSummary(c, result, len(groups))
	return result, nil
}

// BulkUpsert always fans out per partition.
func (b *BulkExecutor) BulkUpsert(ctx context.Context, c Container, items []Record, spec KeySpec) (*BulkResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	ctx, span := tracer.Start(ctx, "cosmos.bulk.upsert")
	defer span.End()

	groups, dropped := b.groupItems(c, items, spec)
	result := &BulkResult{Operation: OpUpsert, Requested: len(items), Dropped: dropped}
	span.SetAttributes(attribute.Int("cosmos.partitions", len(groups)), attribute.Int("cosmos.items", len(items)))

	for _, outcome := range b.fanOut(groups, func(g partitionGroup) partitionOutcome {
		return b.writePartition(ctx, c, OpUpsert, g)
	}) {
		merge(result, outcome)
	}

	b.logSummary(c, result, len(groups))
	return result, nil
}

// BulkDelete removes documents grouped by partition key, concurrently per partition.
func (b *BulkExecutor) BulkDelete(ctx context.Context, c Container, refs []ItemRef) (*BulkResult, error) {
	if len(refs) == 0 {
		return nil, ErrEmptyItems
	}
	ctx, span := tracer.Start(ctx, "cosmos.bulk.delete")
	defer span.End()

	index := map[string]int{}
	var groups []partitionGroup
	for _, ref := range refs {
		k := ref.PartitionKey.String()
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, partitionGroup{key: ref.PartitionKey})
		}
		groups[i].refs = append(groups[i].refs, ref)
	}

	result := &BulkResult{Operation: OpDelete, Requested: len(refs)}
	span.SetAttributes(attribute.Int("cosmos.partitions", len(groups)), attribute.Int("cosmos.items", len(refs)))

	for _, outcome := range b.fanOut(groups, func(g partitionGroup) partitionOutcome {
		return b.deletePartition(ctx, c, g)
	}) {
		merge(result, outcome)
	}

	b.logSummary(c, result, len(groups))
	return result, nil
}

// groupItems buckets items by partition key in first-seen order.
func (b *BulkExecutor) groupItems(c Container, items []Record, spec KeySpec) ([]partitionGroup, int) {
	index := map[string]int{}
	var groups []partitionGroup
	dropped := 0
	for _, item := range items {
		key, err := spec.KeyFor(item)
		if err != nil {
			dropped++
			b.logger.Warn("BulkOps", "Skipping item without partition key", map[string]interface{}{
				"container": c.Name(),
				"id":        item["id"],
				"error":     err.Error(),
			})
			continue
		}
		k := key.String()
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, partitionGroup{key: key})
		}
		groups[i].items = append(groups[i].items, item)
	}
	return groups, dropped
}

// fanOut runs fn for every group and waits for all of them. Tasks report their
// own failures in the outcome so one partition never cancels another.
func (b *BulkExecutor) fanOut(groups []partitionGroup, fn func(partitionGroup) partitionOutcome) []partitionOutcome {
	if len(groups) == 0 {
		return nil
	}
	group := b.pool.NewGroup()
	for _, g := range groups {
		g := g
		group.Submit(func() (outcome partitionOutcome) {
			defer func() {
				if r := recover(); r != nil {
					outcome = partitionOutcome{key: g.key, errors: []string{fmt.Sprintf("partition %s: panic: %v", g.key, r)}}
				}
			}()
			return fn(g)
		})
	}
	outcomes, _ := group.Wait()
	return outcomes
}

func (b *BulkExecutor) writePartition(ctx context.Context, c Container, kind OperationKind, g partitionGroup) partitionOutcome {
	outcome := partitionOutcome{key: g.key}
	for start := 0; start < len(g.items); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(g.items))
		chunk := g.items[start:end]

		ops := make([]BatchOperation, len(chunk))
		for i, item := range chunk {
			ops[i] = BatchOperation{Kind: kind, Item: item}
		}

		statuses, err := c.ExecuteBatch(ctx, g.key, ops)
		if err != nil {
			msg := fmt.Sprintf("partition %s: %s batch of %d failed: %v", g.key, kind, len(chunk), err)
			outcome.errors = append(outcome.errors, msg)
			b.logger.Error("BulkOps", "Batch failed", map[string]interface{}{
				"container":     c.Name(),
				"partition_key": g.key.String(),
				"operation":     string(kind),
				"items":         len(chunk),
				"error":         err.Error(),
			})
			continue
		}

		for i, status := range statuses {
			if i >= len(chunk) {
				break
			}
			if status == 200 || status == 201 {
				outcome.succeeded = append(outcome.succeeded, chunk[i])
				outcome.count++
			}
		}
	}
	return outcome
}

func (b *BulkExecutor) deletePartition(ctx context.Context, c Container, g partitionGroup) partitionOutcome {
	outcome := partitionOutcome{key: g.key}
	for start := 0; start < len(g.refs); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(g.refs))
		chunk := g.refs[start:end]

		ops := make([]BatchOperation, len(chunk))
		for i, ref := range chunk {
			ops[i] = BatchOperation{Kind: OpDelete, ID: ref.ID}
		}

		statuses, err := c.ExecuteBatch(ctx, g.key, ops)
		if err != nil {
			outcome.errors = append(outcome.errors, fmt.Sprintf("partition %s: delete batch of %d failed: %v", g.key, len(chunk), err))
			b.logger.Error("BulkOps", "Delete batch failed", map[string]interface{}{
				"container":     c.Name(),
				"partition_key": g.key.String(),
				"items":         len(chunk),
				"error":         err.Error(),
			})
			continue
		}
		for _, status := range statuses {
			if status == 204 {
				outcome.count++
			}
		}
	}
	return outcome
}

func merge(result *BulkResult, outcome partitionOutcome) {
	result.Count += outcome.count
	result.Succeeded = append(result.Succeeded, outcome.succeeded...)
	result.Errors = append(result.Errors, outcome.errors...)
}

func (b *BulkExecutor) logSummary(c Container, result *BulkResult, partitions int) {
	b.logger.Info("BulkOps", "Bulk operation completed", map[string]interface{}{
		"container":  c.Name(),
		"operation":  string(result.Operation),
		"requested":  result.Requested,
		"succeeded":  result.Count,
		"dropped":    result.Dropped,
		"partitions": partitions,
		"errors":     len(result.Errors),
	})
}
