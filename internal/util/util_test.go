package util

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-1, 0, 1))
	assert.Equal(t, 1.0, Clamp(2, 0, 1))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
}

func TestSHA256Hex(t *testing.T) {
	got := SHA256Hex("abc")
	assert.Len(t, got, 64)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)
}

func TestISOUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	ts := time.Date(2026, 1, 1, 1, 0, 0, 500, loc)
	assert.Equal(t, "2026-01-01T00:00:00+00:00", ISOUTC(ts))
}

func TestRoundDownToStep(t *testing.T) {
	tests := []struct {
		x, step, want float64
	}{
		{0.057, 0.01, 0.05},
		{0.05, 0.01, 0.05}, // exact multiple survives float noise
		{0.3, 0.1, 0.3},    // 0.3/0.1 lands just below 3 in floats
		{0.019999999, 0.01, 0.01}, // a real shortfall still floors down
		{1.0, 0, 1.0},
		{0.009, 0.01, 0.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, RoundDownToStep(tt.x, tt.step), 1e-12, "x=%v step=%v", tt.x, tt.step)
	}
}

func TestRoundDownToStepIsExactMultiple(t *testing.T) {
	v := RoundDownToStep(0.05, 0.01)
	rem := math.Mod(v, 0.01)
	assert.True(t, rem < 1e-9 || 0.01-rem < 1e-9)
}

func TestRoundToTick(t *testing.T) {
	assert.InDelta(t, 1.23, RoundToTick(1.2345, 0.01), 1e-12)
	assert.Equal(t, 1.2345, RoundToTick(1.2345, 0))
}

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite(1.5))
	assert.False(t, IsFinite(math.NaN()))
	assert.False(t, IsFinite(math.Inf(1)))
}
