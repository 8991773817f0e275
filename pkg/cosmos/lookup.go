package cosmos

import (
	"context"
	"errors"
	"fmt"
)

// FindItem reads a document by id, first as a point read against pk and, when
// that misses, with a cross-partition query on id. Documents written under a
// different partition key value than the caller expects are found this way.
func FindItem(ctx context.Context, c Container, id string, pk PartitionKey) (Record, error) {
	item, err := c.ReadItem(ctx, pk, id)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	results, err := c.Query(ctx, "SELECT * FROM c WHERE c.id = @id",
		[]QueryParameter{{Name: "@id", Value: id}},
		QueryOptions{CrossPartition: true, MaxItems: 1})
	if err != nil {
		return nil, fmt.Errorf("cross-partition lookup of %s: %w", id, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	doc, ok := results[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T for %s", results[0], id)
	}
	return Record(doc), nil
}
