package chronicle

import (
	"reflect"
	"time"
)

// tombstoneType is the type of the tombstone sentinel.
type tombstoneType struct{}

// tombstone is the sentinel value stored in a delta map for fields
// that were removed from the payload between two saves, distinguishing
// "set to nil" from "remove this field entirely" when a delta is applied.
var tombstone = tombstoneType{}

// computeDelta returns the field-level difference needed to turn prev into
// next: fields present in next with a changed or new value are copied in,
// fields present in prev but absent from next are recorded as tombstones.
// computeDelta never mutates prev or next.
//
// isEmpty(computeDelta(a, a)) is always true.
func computeDelta(prev, next map[string]any) map[string]any {
	set := make(map[string]any)
	for k, nv := range next {
		pv, ok := prev[k]
		if !ok || !deepEqual(pv, nv) {
			set[k] = nv
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			set[k] = tombstone
		}
	}
	return set
}

// applyDelta folds a delta produced by computeDelta onto base, returning a
// new map. base is not mutated.
func applyDelta(base map[string]any, delta map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(delta))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range delta {
		if v == tombstone {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// isEmpty reports whether a delta changes nothing, i.e. applying it to any
// state would return an equal state. A save whose delta isEmpty appends
// no chunk and does not advance the serial; Save reports it as a no-op.
func isEmpty(delta map[string]any) bool {
	return len(delta) == 0
}

// deepEqual compares two payload values for equality, treating maps,
// slices, and time.Time specially since reflect.DeepEqual alone is too
// strict for values that round-tripped through a Collection's own
// encoding (e.g. time.Time with differing monotonic readings, or int64 vs
// float64 for the same number coming back from different backends).
func deepEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !deepEqual(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	if an, ok := numericValue(a); ok {
		if bn, ok := numericValue(b); ok {
			return an == bn
		}
	}
	return reflect.DeepEqual(a, b)
}

// numericValue normalizes Go's numeric kinds to float64 so that, e.g., an
// int64(3) and a float64(3) compare equal after a round trip through a
// Collection backend that doesn't preserve exact numeric types.
func numericValue(v any) (float64, bool) {
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
	default:
		return 0, false
	}
}

// cloneMap returns a shallow copy of m, or nil if m is nil.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
