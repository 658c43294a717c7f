// Package timeframe maps candle timeframe codes to durations.
package timeframe

import (
	"fmt"
	"time"
)

// Code identifies a candle timeframe, e.g. "H1".
type Code string

const (
	M1  Code = "M1"
	M5  Code = "M5"
	M15 Code = "M15"
	M30 Code = "M30"
	H1  Code = "H1"
	H4  Code = "H4"
	D1  Code = "D1"
)

var seconds = map[Code]int64{
	M1:  60,
	M5:  300,
	M15: 900,
	M30: 1800,
	H1:  3600,
	H4:  14400,
	D1:  86400,
}

// Seconds returns the timeframe length in seconds.
func (c Code) Seconds() int64 {
	return seconds[c]
}

// Duration returns the timeframe length as a time.Duration.
func (c Code) Duration() time.Duration {
	return time.Duration(c.Seconds()) * time.Second
}

// Valid reports whether c is a supported timeframe code.
func (c Code) Valid() bool {
	_, ok := seconds[c]
	return ok
}

// Parse validates s and returns it as a Code.
func Parse(s string) (Code, error) {
	c := Code(s)
	if !c.Valid() {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return c, nil
}
