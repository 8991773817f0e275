package cosmos

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

// PartitionKey is an ordered tuple of partition key values. A single-element
// key targets a plain partition; two elements address a hierarchical one.
type PartitionKey struct {
	values []any
}

func NewPartitionKey(values ...any) PartitionKey {
	return PartitionKey{values: append([]any(nil), values...)}
}

func (pk PartitionKey) Values() []any {
	return append([]any(nil), pk.values...)
}

func (pk PartitionKey) IsEmpty() bool {
	return len(pk.values) == 0
}

// String is stable across numeric representations (20250824 and 20250824.0
// render the same) and is used as the grouping key.
func (pk PartitionKey) String() string {
	normalized := make([]any, len(pk.values))
	for i, v := range pk.values {
		if f, ok := toFloat(v); ok {
			normalized[i] = f
			continue
		}
		normalized[i] = v
	}
	b, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Sprint(pk.values)
	}
	return string(b)
}

func (pk PartitionKey) Equal(other PartitionKey) bool {
	return pk.String() == other.String()
}

func (pk PartitionKey) azure() (azcosmos.PartitionKey, error) {
	key := azcosmos.NewPartitionKey()
	for _, v := range pk.values {
		switch tv := v.(type) {
		case nil:
			key = key.AppendNull()
		case string:
			key = key.AppendString(tv)
		case bool:
			key = key.AppendBool(tv)
		default:
			f, ok := toFloat(v)
			if !ok {
				return key, fmt.Errorf("unsupported partition key value %T", v)
			}
			key = key.AppendNumber(f)
		}
	}
	return key, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// KeySpec names the fields that make up a container's partition key, in order.
type KeySpec []string

// ParseKeySpec accepts "pkType" or "pkType,pkFilter".
func ParseKeySpec(s string) KeySpec {
	var spec KeySpec
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			spec = append(spec, p)
		}
	}
	return spec
}

func (s KeySpec) IsHierarchical() bool {
	return len(s) > 1
}

func (s KeySpec) String() string {
	return strings.Join(s, ",")
}

// KeyFor extracts the partition key of item. A single-field spec falls back to
// the item id when the field is absent.
func (s KeySpec) KeyFor(item Record) (PartitionKey, error) {
	if len(s) == 0 {
		return PartitionKey{}, fmt.Errorf("%w: empty key spec", ErrMissingPartitionKey)
	}
	values := make([]any, 0, len(s))
	for _, field := range s {
		v, ok := item[field]
		if !ok || v == nil {
			if !s.IsHierarchical() {
				if id, ok := item["id"]; ok && id != nil {
					return NewPartitionKey(id), nil
				}
			}
			return PartitionKey{}, fmt.Errorf("%w: %s", ErrMissingPartitionKey, field)
		}
		values = append(values, v)
	}
	return NewPartitionKey(values...), nil
}
