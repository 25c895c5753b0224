// Package maths holds small numeric helpers for values decoded from tool output.
package maths

import (
	"math"
)

// Integer is any signed integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Round rounds a count or duration to the nearest T. NaN, infinities and negative values become 0.
func Round[T Integer](v float64) T {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}

	return T(math.Round(v))
}

// InRange reports whether lo <= v <= hi.
func InRange[T Integer](v, lo, hi T) bool {
	return v >= lo && v <= hi
}
