// Package strategy defines the trading signal contract, the two
// concrete strategies, and the manual/rule-based selector.
package strategy

import (
	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/market"
)

// TagExit on a flat signal means "close my current position if any".
const TagExit = "exit"

// Signal is a strategy's verdict for one symbol on one closed candle.
type Signal struct {
	Side       broker.Side `json:"side"`
	Confidence float64     `json:"confidence"`
	Reason     string      `json:"reason"`
	Tags       []string    `json:"tags,omitempty"`
}

// HasTag reports whether the signal carries tag.
func (s Signal) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Flat is the neutral no-action signal.
func Flat(reason string) Signal {
	return Signal{Side: broker.SideFlat, Reason: reason}
}

// Exit is a flat signal requesting position close.
func Exit(confidence float64, reason string) Signal {
	return Signal{Side: broker.SideFlat, Confidence: confidence, Reason: reason, Tags: []string{TagExit}}
}

// Context carries per-symbol state into a strategy evaluation.
type Context struct {
	Symbol   string
	Position *broker.Position // open bot position on this symbol, if any
}

// Strategy evaluates one symbol on candle close.
type Strategy interface {
	Name() string
	Evaluate(candles []market.Candle, feats market.Features, ctx Context) Signal
}

// Registry returns the available strategies keyed by name.
func Registry() map[string]Strategy {
	tp := NewTwoPoleMomentum()
	mr := NewRangeMeanReversion()
	return map[string]Strategy{
		tp.Name(): tp,
		mr.Name(): mr,
	}
}
