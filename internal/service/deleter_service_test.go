package service

import (
	"context"
	"errors"
	"testing"

	"analytics-chat-be/internal/dto"
	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/pkg/cosmos"
	"analytics-chat-be/pkg/cosmos/cosmostest"
	"analytics-chat-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settlement = "repay:settlement"

func settlementRows() []any {
	return []any{
		map[string]any{"id": "a", "pkType": settlement, "pkFilter": float64(20251119)},
		map[string]any{"id": "b", "pkType": settlement, "pkFilter": float64(20251119)},
		map[string]any{"id": "c", "pkType": settlement, "pkFilter": float64(20251120)},
	}
}

func newDeleter(t *testing.T, gold *cosmostest.FakeContainer) (IDeleterService, *recordingPublisher) {
	t.Helper()
	bulk := cosmos.NewBulkExecutor(4, logger.NewNopLogger())
	t.Cleanup(bulk.Stop)
	pub := &recordingPublisher{}
	return NewDeleterService(fakeContainers{"gold": gold}, bulk, pub, logger.NewNopLogger()), pub
}

func TestDeleteDryRunCountsWithoutDeleting(t *testing.T) {
	gold := cosmostest.NewFakeContainer("gold").QueryResult(settlementRows()...)
	deleter, pub := newDeleter(t, gold)

	res, err := deleter.DeleteByPartitionKey(context.Background(), &dto.DeleteRequest{
		Container: "gold",
		PKType:    settlement,
		PKFilter:  "20251120",
		Criteria:  "<=",
		DryRun:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.WouldDelete)
	assert.Equal(t, 3, res.Matched)
	assert.Equal(t, 0, res.Deleted)
	assert.True(t, res.DryRun)
	assert.Equal(t, 0, gold.DeleteCalls())
	assert.Empty(t, gold.Batches())

	queries := gold.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "SELECT c.id, c.pkType, c.pkFilter FROM c WHERE c.pkType = @pkType AND c.pkFilter <= @pkFilter", queries[0].Query)
	assert.Equal(t, []cosmos.QueryParameter{
		{Name: "@pkType", Value: settlement},
		{Name: "@pkFilter", Value: int64(20251120)},
	}, queries[0].Params)
	assert.True(t, queries[0].Opts.CrossPartition)

	published := pub.published()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeBulkCompleted, published[0].EventType())
	assert.Equal(t, true, published[0].Payload()["dry_run"])
}

func TestDeleteUsesEachItemsOwnPartitionKey(t *testing.T) {
	gold := cosmostest.NewFakeContainer("gold").QueryResult(settlementRows()...)
	deleter, _ := newDeleter(t, gold)

	res, err := deleter.DeleteByPartitionKey(context.Background(), &dto.DeleteRequest{
		Container: "gold",
		PKType:    settlement,
		PKFilter:  "20251120",
		Criteria:  "<=",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Deleted)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 3, gold.DeleteCalls())

	byKey := map[string]int{}
	for _, b := range gold.Batches() {
		byKey[b.PartitionKey.String()] += len(b.Ops)
	}
	assert.Equal(t, map[string]int{
		cosmos.NewPartitionKey(settlement, 20251119).String(): 2,
		cosmos.NewPartitionKey(settlement, 20251120).String(): 1,
	}, byKey)
}

func TestDeleteExactMatchIsSinglePartition(t *testing.T) {
	gold := cosmostest.NewFakeContainer("gold").QueryResult(
		map[string]any{"id": "m1", "pkType": settlement, "pkFilter": "merchant123"},
	)
	deleter, _ := newDeleter(t, gold)

	res, err := deleter.DeleteByPartitionKey(context.Background(), &dto.DeleteRequest{
		Container: "gold",
		PKType:    settlement,
		PKFilter:  "merchant123",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	q := gold.Queries()[0]
	assert.Contains(t, q.Query, "c.pkFilter = @pkFilter")
	assert.False(t, q.Opts.CrossPartition)
	assert.True(t, q.Opts.PartitionKey.Equal(cosmos.NewPartitionKey(settlement, "merchant123")))
	assert.Equal(t, "merchant123", q.Params[1].Value)
}

func TestDeleteMapsDoubleEqualsOperator(t *testing.T) {
	gold := cosmostest.NewFakeContainer("gold")
	deleter, _ := newDeleter(t, gold)

	res, err := deleter.DeleteByPartitionKey(context.Background(), &dto.DeleteRequest{
		Container: "gold", PKType: settlement, PKFilter: "20251120", Criteria: "==",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched)
	assert.Contains(t, gold.Queries()[0].Query, "c.pkFilter = @pkFilter")
}

func TestDeleteRejectsBadInput(t *testing.T) {
	gold := cosmostest.NewFakeContainer("gold")
	deleter, _ := newDeleter(t, gold)

	tests := []struct {
		name    string
		request dto.DeleteRequest
		want    error
	}{
		{"operator", dto.DeleteRequest{Container: "gold", PKType: settlement, PKFilter: "1", Criteria: "=~"}, ErrInvalidOperator},
		{"container", dto.DeleteRequest{Container: "silver", PKType: settlement, PKFilter: "1"}, ErrUnsupportedContainer},
		{"missing pk type", dto.DeleteRequest{Container: "gold", PKFilter: "1"}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := deleter.DeleteByPartitionKey(context.Background(), &tt.request)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	assert.Empty(t, gold.Queries())
}

func TestDeleteReportsPartitionFailures(t *testing.T) {
	gold := cosmostest.NewFakeContainer("gold").
		QueryResult(settlementRows()...).
		FailBatch(cosmos.NewPartitionKey(settlement, 20251119), errors.New("503 service unavailable"))
	deleter, _ := newDeleter(t, gold)

	res, err := deleter.DeleteByPartitionKey(context.Background(), &dto.DeleteRequest{
		Container: "gold", PKType: settlement, PKFilter: "20251120", Criteria: "<=",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "503")
}
