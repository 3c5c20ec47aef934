package plugin

import "math"

// GetFixedValue coerces a candidate value into the parameter's value space:
// boolean parameters snap to min or max around the midpoint, integer
// parameters round before clamping, everything clamps to [min,max].
// The coercion is idempotent.
func (r *ParamRanges) GetFixedValue(hints ParamHints, value float32) float32 {
	if hints&ParamHintBoolean != 0 {
		mid := (r.Min + r.Max) / 2
		if value >= mid {
			return r.Max
		}
		return r.Min
	}
	if hints&ParamHintInteger != 0 {
		value = float32(math.Round(float64(value)))
	}
	if value < r.Min {
		return r.Min
	}
	if value > r.Max {
		return r.Max
	}
	return value
}

// NormalizedValue maps value into [0,1] across the range.
func (r *ParamRanges) NormalizedValue(value float32) float32 {
	if r.Max <= r.Min {
		return 0
	}
	n := (value - r.Min) / (r.Max - r.Min)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// UnnormalizedValue maps a [0,1] value back into the range.
func (r *ParamRanges) UnnormalizedValue(normalized float32) float32 {
	if normalized < 0 {
		normalized = 0
	} else if normalized > 1 {
		normalized = 1
	}
	return r.Min + normalized*(r.Max-r.Min)
}

// FixDefault clamps the default into the range.
func (r *ParamRanges) FixDefault() {
	r.Def = r.GetFixedValue(0, r.Def)
}

// balanceSplit derives the (left,right) pair from a single balance value in
// [-1,+1]: negative values keep left full and fold right in, positive
// values the mirror, zero is the neutral (-1,+1) spread.
func balanceSplit(v float32) (left, right float32) {
	switch {
	case v < 0:
		return -1, 2*v + 1
	case v > 0:
		return 2*v - 1, 1
	default:
		return -1, 1
	}
}
