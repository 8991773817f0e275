package cosmos_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/pkg/cosmos"
	"analytics-chat-be/pkg/cosmos/cosmostest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settlements(n int, pkFilter int) []cosmos.Record {
	items := make([]cosmos.Record, n)
	for i := range items {
		items[i] = cosmos.Record{
			"id":                fmt.Sprintf("txn-%d-%d", pkFilter, i),
			"pkType":            "repay:settlement",
			"pkFilter":          pkFilter,
			"transactionAmount": float64(i),
		}
	}
	return items
}

func newExecutor(t *testing.T) *cosmos.BulkExecutor {
	b := cosmos.NewBulkExecutor(8, logger.NewNopLogger())
	t.Cleanup(b.Stop)
	return b
}

var goldKey = cosmos.KeySpec{"pkType", "pkFilter"}

func TestBulkCreateSinglePartitionChunks(t *testing.T) {
	for _, n := range []int{1, 99, 100, 101, 250} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			c := cosmostest.NewFakeContainer("gold")
			res, err := newExecutor(t).BulkCreate(context.Background(), c, settlements(n, 20250824), goldKey)
			require.NoError(t, err)

			batches := c.Batches()
			assert.Len(t, batches, (n+cosmos.MaxBatchSize-1)/cosmos.MaxBatchSize)
			want := cosmos.NewPartitionKey("repay:settlement", 20250824)
			for _, b := range batches {
				assert.True(t, want.Equal(b.PartitionKey))
				assert.LessOrEqual(t, len(b.Ops), cosmos.MaxBatchSize)
			}
			assert.Equal(t, n, res.Count)
			assert.Len(t, res.Succeeded, n)
			assert.Equal(t, 0, res.Failed())
		})
	}
}

func TestBulkCreateMultiplePartitionsRunConcurrently(t *testing.T) {
	c := cosmostest.NewFakeContainer("gold")
	var items []cosmos.Record
	for day := 20250821; day <= 20250824; day++ {
		items = append(items, settlements(3, day)...)
	}

	release := c.HoldBatches()
	done := make(chan *cosmos.BulkResult)
	go func() {
		res, err := newExecutor(t).BulkCreate(context.Background(), c, items, goldKey)
		assert.NoError(t, err)
		done <- res
	}()

	assert.Eventually(t, func() bool { return c.MaxConcurrentBatches() == 4 }, 2*time.Second, 5*time.Millisecond)
	release()

	res := <-done
	assert.Len(t, c.Batches(), 4)
	assert.Equal(t, 12, res.Count)
}

func TestBulkCreateCountsOnlySuccessStatuses(t *testing.T) {
	c := cosmostest.NewFakeContainer("gold").StatusFunc(func(pk cosmos.PartitionKey, op cosmos.BatchOperation) int {
		if pk.Values()[1] == 20250822 {
			return 409
		}
		return 201
	})
	items := append(settlements(5, 20250821), settlements(7, 20250822)...)

	res, err := newExecutor(t).BulkCreate(context.Background(), c, items, goldKey)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Count)
	assert.Equal(t, 7, res.Failed())
}

func TestBulkCreateDropsItemsWithoutPartitionKey(t *testing.T) {
	c := cosmostest.NewFakeContainer("gold")
	items := settlements(3, 20250824)
	items = append(items, cosmos.Record{"id": "orphan", "pkType": "repay:settlement"})

	res, err := newExecutor(t).BulkCreate(context.Background(), c, items, goldKey)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 1, res.Failed())
}

func TestBulkOperationsRejectEmptyInput(t *testing.T) {
	c := cosmostest.NewFakeContainer("gold")
	b := newExecutor(t)

	_, err := b.BulkCreate(context.Background(), c, nil, goldKey)
	assert.ErrorIs(t, err, cosmos.ErrEmptyItems)
	_, err = b.BulkUpsert(context.Background(), c, []cosmos.Record{}, goldKey)
	assert.ErrorIs(t, err, cosmos.ErrEmptyItems)
	_, err = b.BulkDelete(context.Background(), c, nil)
	assert.ErrorIs(t, err, cosmos.ErrEmptyItems)

	assert.Empty(t, c.Batches())
}

func TestBulkUpsertFailingPartitionDoesNotAffectSiblings(t *testing.T) {
	bad := cosmos.NewPartitionKey("repay:settlement", 20250822)
	c := cosmostest.NewFakeContainer("gold").FailBatch(bad, errors.New("service unavailable"))

	items := append(settlements(4, 20250821), settlements(6, 20250822)...)
	items = append(items, settlements(2, 20250823)...)

	res, err := newExecutor(t).BulkUpsert(context.Background(), c, items, goldKey)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Count)
	assert.Equal(t, 6, res.Failed())
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "service unavailable")
	assert.Len(t, c.Batches(), 3)
}

func TestBulkUpsertSinglePartitionStillUsesBatches(t *testing.T) {
	c := cosmostest.NewFakeContainer("gold")
	res, err := newExecutor(t).BulkUpsert(context.Background(), c, settlements(150, 20250824), goldKey)
	require.NoError(t, err)
	assert.Len(t, c.Batches(), 2)
	assert.Equal(t, 150, res.Count)
}

func TestBulkDeleteFailingPartitionDoesNotAffectSiblings(t *testing.T) {
	bad := cosmos.NewPartitionKey("repay:settlement", 20251119)
	c := cosmostest.NewFakeContainer("gold").FailBatch(bad, errors.New("timeout"))

	refs := []cosmos.ItemRef{
		{ID: "a", PartitionKey: cosmos.NewPartitionKey("repay:settlement", 20251118)},
		{ID: "b", PartitionKey: cosmos.NewPartitionKey("repay:settlement", 20251118)},
		{ID: "c", PartitionKey: bad},
		{ID: "d", PartitionKey: cosmos.NewPartitionKey("repay:settlement", 20251120)},
	}

	res, err := newExecutor(t).BulkDelete(context.Background(), c, refs)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 1, res.Failed())
	assert.Len(t, res.Errors, 1)
	assert.Empty(t, res.Succeeded)
}
