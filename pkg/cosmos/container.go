// Package cosmos is the gateway to the partitioned document store: parameterized
// queries, point operations, transactional batches and bulk fan-out.
package cosmos

import (
	"context"
	"errors"
)

var (
	ErrNotFound            = errors.New("item not found")
	ErrUnknownContainer    = errors.New("unknown container")
	ErrEmptyItems          = errors.New("no items provided")
	ErrMissingPartitionKey = errors.New("item is missing partition key field")
	ErrBatchTooLarge       = errors.New("batch exceeds maximum size")
	// ErrCrossPartitionQuery marks an aggregate, GROUP BY, ORDER BY, DISTINCT
	// or TOP query the store refused to run across partitions.
	ErrCrossPartitionQuery = errors.New("query needs a query plan to run across partitions; pin it to one partition key")
)

// Record is an opaque document as stored in a container.
type Record map[string]any

// QueryParameter is a named query argument, e.g. {"@pkType", "repay:settlement"}.
type QueryParameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type QueryOptions struct {
	// CrossPartition fans the query out to every partition. When false the
	// query is scoped to PartitionKey.
	CrossPartition bool
	PartitionKey   PartitionKey
	// MaxItems stops paging once this many results were read. Zero means no limit.
	MaxItems int
}

type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpUpsert OperationKind = "upsert"
	OpDelete OperationKind = "delete"
)

// BatchOperation is one entry of a transactional batch.
type BatchOperation struct {
	Kind OperationKind
	ID   string // delete only
	Item Record // create and upsert
}

// Container is the store surface the pipeline and tools depend on.
type Container interface {
	Name() string
	Query(ctx context.Context, query string, params []QueryParameter, opts QueryOptions) ([]any, error)
	ReadItem(ctx context.Context, pk PartitionKey, id string) (Record, error)
	CreateItem(ctx context.Context, pk PartitionKey, item Record) error
	UpsertItem(ctx context.Context, pk PartitionKey, item Record) error
	DeleteItem(ctx context.Context, pk PartitionKey, id string) error
	// ExecuteBatch runs up to MaxBatchSize operations atomically against one
	// partition and returns the per-operation status codes.
	ExecuteBatch(ctx context.Context, pk PartitionKey, ops []BatchOperation) ([]int, error)
}
