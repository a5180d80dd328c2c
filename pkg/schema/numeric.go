// ABOUTME: Numeric coercion helpers so Encode accepts any Go integer/float kind
// ABOUTME: for a field, not just its canonical int32/uint32/int64/float64 type

package schema

import (
	"bytes"
	"fmt"
)

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float32:
		// JSON-decoded wire values arrive as float64; float32 is accepted
		// for symmetry with asFloat64's own case list.
		return int64(n), nil
	case float64:
		// encoding/json decodes every bare number into a map[string]any
		// as float64 (the socket protocol's Request.Record is exactly
		// such a map), so integer fields must accept it too.
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func asUint64(v any) (uint64, error) {
	i, err := asInt64(v)
	if err != nil {
		return 0, err
	}
	return uint64(i), nil
}

func asFloat64(v any) (float64, error) {
	if f, ok := asNumber(v); ok {
		return f, nil
	}
	return 0, fmt.Errorf("expected a float, got %T", v)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// EqualValues reports whether two field values are equal once numeric
// kinds are coerced to a common representation, so a JSON-decoded
// float64 predicate compares equal to the natively typed value Decode
// produces for the same field.
func EqualValues(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok2 := b.([]byte)
		return ok2 && bytes.Equal(ab, bb)
	}
	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if aok || bok {
		return aok && bok && af == bf
	}
	return a == b
}
