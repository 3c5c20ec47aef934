package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestGetFixedValueBooleanSnapping(t *testing.T) {
	r := ParamRanges{Min: 0, Max: 1}

	assert.Equal(t, float32(0), r.GetFixedValue(ParamHintBoolean, 0.49))
	assert.Equal(t, float32(1), r.GetFixedValue(ParamHintBoolean, 0.5))
	assert.Equal(t, float32(1), r.GetFixedValue(ParamHintBoolean, 2.0))
	assert.Equal(t, float32(0), r.GetFixedValue(ParamHintBoolean, -3.0))
}

func TestGetFixedValueInteger(t *testing.T) {
	r := ParamRanges{Min: -5, Max: 5}

	assert.Equal(t, float32(2), r.GetFixedValue(ParamHintInteger, 1.6))
	assert.Equal(t, float32(-2), r.GetFixedValue(ParamHintInteger, -1.6))
	assert.Equal(t, float32(5), r.GetFixedValue(ParamHintInteger, 7.2))
	assert.Equal(t, float32(-5), r.GetFixedValue(ParamHintInteger, -9.9))
}

func TestGetFixedValueClamp(t *testing.T) {
	r := ParamRanges{Min: 0.25, Max: 0.75}

	assert.Equal(t, float32(0.25), r.GetFixedValue(0, 0.1))
	assert.Equal(t, float32(0.75), r.GetFixedValue(0, 0.9))
	assert.Equal(t, float32(0.5), r.GetFixedValue(0, 0.5))
}

func TestGetFixedValueIdempotentProperty(t *testing.T) {
	hintChoices := []ParamHints{0, ParamHintBoolean, ParamHintInteger, ParamHintLogarithmic}
	rapid.Check(t, func(t *rapid.T) {
		lo := rapid.Float32Range(-100, 100).Draw(t, "lo")
		hi := rapid.Float32Range(-100, 100).Draw(t, "hi")
		if hi < lo {
			lo, hi = hi, lo
		}
		r := ParamRanges{Min: lo, Max: hi}
		hints := rapid.SampledFrom(hintChoices).Draw(t, "hints")
		v := rapid.Float32Range(-200, 200).Draw(t, "v")

		once := r.GetFixedValue(hints, v)
		twice := r.GetFixedValue(hints, once)
		if once != twice {
			t.Fatalf("not idempotent: %v -> %v -> %v", v, once, twice)
		}
		if hints&ParamHintBoolean != 0 && once != r.Min && once != r.Max {
			t.Fatalf("boolean snap escaped the range ends: %v", once)
		}
		if once < r.Min || once > r.Max {
			t.Fatalf("fixed value %v outside [%v,%v]", once, r.Min, r.Max)
		}
	})
}

func TestBalanceSplitLaw(t *testing.T) {
	l, r := balanceSplit(0)
	assert.Equal(t, float32(-1), l)
	assert.Equal(t, float32(1), r)

	l, r = balanceSplit(-1)
	assert.Equal(t, float32(-1), l)
	assert.Equal(t, float32(-1), r)

	l, r = balanceSplit(1)
	assert.Equal(t, float32(1), l)
	assert.Equal(t, float32(1), r)

	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Float32Range(-1, 1).Draw(t, "v")
		left, right := balanceSplit(v)
		switch {
		case v < 0:
			if left != -1 || right != 2*v+1 {
				t.Fatalf("v=%v gave (%v,%v)", v, left, right)
			}
		case v > 0:
			if left != 2*v-1 || right != 1 {
				t.Fatalf("v=%v gave (%v,%v)", v, left, right)
			}
		default:
			if left != -1 || right != 1 {
				t.Fatalf("v=0 gave (%v,%v)", left, right)
			}
		}
	})
}

func TestCanRunRackCharacterization(t *testing.T) {
	cases := []struct {
		in, out uint32
		want    bool
	}{
		{0, 0, true},
		{1, 1, true},
		{2, 2, true},
		{0, 2, true},
		{2, 0, true},
		{0, 1, true},
		{1, 2, false},
		{2, 1, false},
		{3, 3, false},
		{3, 0, false},
		{0, 3, false},
	}
	for _, c := range cases {
		got := PortCounts{AudioIn: c.in, AudioOut: c.out}.CanRunRack()
		assert.Equalf(t, c.want, got, "in=%d out=%d", c.in, c.out)
	}
}

func TestNormalizedRoundTrip(t *testing.T) {
	r := ParamRanges{Min: -10, Max: 30}
	assert.InDelta(t, 0.25, r.NormalizedValue(0), 1e-6)
	assert.InDelta(t, 0.0, r.UnnormalizedValue(0.25), 1e-4)
}
