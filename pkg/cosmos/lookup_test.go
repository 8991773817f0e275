package cosmos_test

import (
	"context"
	"errors"
	"testing"

	"analytics-chat-be/pkg/cosmos"
	"analytics-chat-be/pkg/cosmos/cosmostest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindItemPointReadHit(t *testing.T) {
	c := cosmostest.NewFakeContainer("users")
	pk := cosmos.NewPartitionKey("user-1")
	c.Put(pk, cosmos.Record{"id": "user-1", "name": "Ana"})

	item, err := cosmos.FindItem(context.Background(), c, "user-1", pk)
	require.NoError(t, err)
	assert.Equal(t, "Ana", item["name"])
	assert.Empty(t, c.Queries())
}

func TestFindItemFallsBackToCrossPartitionQuery(t *testing.T) {
	c := cosmostest.NewFakeContainer("users").
		QueryResult(map[string]any{"id": "user-1", "userId": "legacy"})

	item, err := cosmos.FindItem(context.Background(), c, "user-1", cosmos.NewPartitionKey("user-1"))
	require.NoError(t, err)
	assert.Equal(t, "legacy", item["userId"])

	queries := c.Queries()
	require.Len(t, queries, 1)
	assert.True(t, queries[0].Opts.CrossPartition)
	assert.Equal(t, []cosmos.QueryParameter{{Name: "@id", Value: "user-1"}}, queries[0].Params)
}

func TestFindItemNotFoundAnywhere(t *testing.T) {
	c := cosmostest.NewFakeContainer("users").QueryResult()
	_, err := cosmos.FindItem(context.Background(), c, "ghost", cosmos.NewPartitionKey("ghost"))
	assert.ErrorIs(t, err, cosmos.ErrNotFound)

	c.QueryError(errors.New("unreachable"))
	_, err = cosmos.FindItem(context.Background(), c, "ghost", cosmos.NewPartitionKey("ghost"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, cosmos.ErrNotFound)
}
