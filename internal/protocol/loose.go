// Loose accessors for decoded JSON values.
//
// DESIGN: every accessor is total: wrong types coerce to the zero shape
// (empty record, empty slice, empty string) instead of failing. Pick walks
// an ordered alias list and returns the first key that is present, including
// keys holding explicit falsy values such as 0 or "".
package protocol

import (
	"encoding/json"
	"strconv"
)

// AsRecord returns v as a JSON object, or an empty one.
func AsRecord(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// AsArray returns v as a JSON array, or an empty one.
func AsArray(v any) []any {
	if a, ok := v.([]any); ok {
		return a
	}
	return nil
}

// AsString returns v as a string. Nil becomes ""; scalar values are
// stringified; objects and arrays normalize to "".
func AsString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// AsBool returns v as a bool, defaulting to false.
func AsBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// asNumber parses a numeric JSON value or numeric string.
func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// AsNumber parses a numeric JSON value or numeric string, reporting whether
// v was numeric at all. Use it where "missing" and "zero" must stay apart.
func AsNumber(v any) (float64, bool) {
	return asNumber(v)
}

// AsInt returns v as an int, defaulting to 0 for counts that fail to parse.
func AsInt(v any) int {
	n, ok := asNumber(v)
	if !ok {
		return 0
	}
	return int(n)
}

// Pick returns the value of the first alias present on obj. Presence is
// what matters, not truthiness: an explicit null, 0 or "" still wins over
// a later alias.
func Pick(obj any, keys ...string) (any, bool) {
	r, ok := obj.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, k := range keys {
		if v, present := r[k]; present {
			return v, true
		}
	}
	return nil, false
}

// PickAny is Pick without the presence flag.
func PickAny(obj any, keys ...string) any {
	v, _ := Pick(obj, keys...)
	return v
}

// PickString returns the first present alias coerced to a string.
func PickString(obj any, keys ...string) string {
	return AsString(PickAny(obj, keys...))
}

// PickArray returns the first present alias coerced to an array.
func PickArray(obj any, keys ...string) []any {
	return AsArray(PickAny(obj, keys...))
}

// PickRecord returns the first present alias coerced to a record.
func PickRecord(obj any, keys ...string) map[string]any {
	return AsRecord(PickAny(obj, keys...))
}
