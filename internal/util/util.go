// Package util provides small shared helpers: clamping, hashing,
// timestamp formatting, and step rounding.
package util

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"time"
)

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Clamp01 bounds x to [0, 1].
func Clamp01(x float64) float64 {
	return Clamp(x, 0, 1)
}

// SHA256Hex returns the lowercase hex digest of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ISOUTC formats t in UTC with an explicit +00:00 offset, e.g.
// "2026-01-01T00:00:00+00:00". Sub-second precision is dropped so the
// same instant always renders identically regardless of source clock.
func ISOUTC(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05") + "+00:00"
}

// RoundDownToStep rounds x down to the nearest multiple of step.
// A non-positive step returns x unchanged.
func RoundDownToStep(x, step float64) float64 {
	if step <= 0 {
		return x
	}
	// Nudge the quotient by an epsilon so exact multiples whose float
	// quotient lands just below an integer do not drop a whole step.
	n := math.Floor(x/step + 1e-9)
	return n * step
}

// RoundToTick rounds x to the nearest tick increment.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// IsFinite reports whether x is neither NaN nor infinite.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
