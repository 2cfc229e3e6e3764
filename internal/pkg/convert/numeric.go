// Package convert provides type coercion for wire-level numerics.
package convert

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ToFloat64 converts common wire representations to float64.
// Malformed input, NaN and infinities coerce to 0 rather than error:
// exchange snapshots routinely carry numeric strings and nulls, and the
// risk layer treats anything unparsable as a zero contribution.
func ToFloat64(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return sanitize(t)
	case float32:
		return sanitize(float64(t))
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return sanitize(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return sanitize(f)
	default:
		return 0
	}
}

// ParseSize parses a signed decimal size string. Unlike ToFloat64 it
// reports whether the input was parsable, which the order layer uses to
// distinguish "size 0" from "size missing".
func ParseSize(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func sanitize(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
