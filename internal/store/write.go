package store

import (
	"encoding/json"
	"fmt"
	"math"
)

// IncrementOp is a field value resolved by the store at write time: the
// stored number becomes its previous value plus Delta. It lets a single Set
// bump a counter and write other fields atomically.
type IncrementOp struct {
	Delta int64
}

// IncrementBy returns a field value that adds delta to the stored number.
func IncrementBy(delta int64) IncrementOp {
	return IncrementOp{Delta: delta}
}

// ApplyWrite computes the document that results from writing incoming over
// existing. Increment sentinels are resolved against existing values. The
// returned body shares no memory with either argument.
func ApplyWrite(existing, incoming Data, merge bool) (Data, error) {
	result := Data{}
	if merge {
		for k, v := range existing {
			result[k] = v
		}
	}
	for k, v := range incoming {
		if op, ok := v.(IncrementOp); ok {
			base, err := ToInt64(existing[k])
			if err != nil {
				return nil, fmt.Errorf("increment %q: %w", k, err)
			}
			result[k] = base + op.Delta
			continue
		}
		result[k] = v
	}
	return Clone(result)
}

// ToInt64 reads a stored number. Missing values count as zero.
func ToInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("value %v is not an integer", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("value of type %T is not a number", v)
	}
}
