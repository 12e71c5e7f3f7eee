package chronicle

import (
	"strconv"
	"time"
)

// nowFunc returns the current time. It is a package variable, not a
// function literal bound at init, so tests can override it to pin cTime
// values deterministically.
var nowFunc = time.Now

// asString coerces a document field to string, returning "" for nil or an
// unexpected type. Collection implementations are expected to round-trip
// the exact types chronicle writes, but defensive coercion keeps the
// engine from panicking against a host-supplied Collection.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt64 coerces a document field to int64, tolerating the numeric kinds
// common to JSON/BSON decoders.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	default:
		return 0
	}
}

// asBool coerces a document field to bool.
func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// asTime coerces a document field to time.Time.
func asTime(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}

// itoa renders an int64 in base 10.
func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
