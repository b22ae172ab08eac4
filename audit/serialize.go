package audit

import (
	"fmt"
	"reflect"
)

// Capture limits. Oversized collections are summarized rather than copied so
// a careless call site cannot bloat an event.
const (
	captureMaxDepth     = 5
	captureMaxString    = 1000
	captureMaxListItems = 10
	captureMaxMapKeys   = 20
)

// CaptureValue converts an arbitrary caller-supplied value into a wire-safe
// representation for event parameters. Primitives pass through (long strings
// truncated), slices and maps are walked up to a bounded depth, and anything
// beyond the limits collapses to a short summary string. Call sites pass
// explicit name-to-value maps; there is no struct reflection beyond kind
// dispatch.
func CaptureValue(v any) any {
	return captureValue(v, 0)
}

// CaptureParams applies CaptureValue to every entry of a parameter map.
func CaptureParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = captureValue(v, 1)
	}
	return out
}

func captureValue(v any, depth int) any {
	if depth > captureMaxDepth {
		return fmt.Sprintf("<max depth %d exceeded>", captureMaxDepth)
	}
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case string:
		if len(val) > captureMaxString {
			return val[:captureMaxString] + "... (truncated)"
		}
		return val
	case error:
		return captureValue(val.Error(), depth)
	case fmt.Stringer:
		return captureValue(val.String(), depth)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		if n > captureMaxListItems {
			return fmt.Sprintf("<slice with %d items>", n)
		}
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, captureValue(rv.Index(i).Interface(), depth+1))
		}
		return out
	case reflect.Map:
		n := rv.Len()
		if n > captureMaxMapKeys {
			return fmt.Sprintf("<map with %d keys>", n)
		}
		out := make(map[string]any, n)
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			out[key] = captureValue(iter.Value().Interface(), depth+1)
		}
		return out
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return captureValue(rv.Elem().Interface(), depth)
	default:
		return fmt.Sprintf("<%T>", v)
	}
}
