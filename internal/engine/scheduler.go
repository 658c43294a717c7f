package engine

import (
	"fmt"
	"time"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/timeframe"
)

// Scheduler detects candle closes on the broker's own clock. It polls
// the anchor symbol's most recent bars and fires when the second-to-last
// bar (the last fully closed one) advances. Detected closes are strictly
// monotonic, so a restart or an anchor change never re-fires an old
// candle.
type Scheduler struct {
	broker    broker.Broker
	tf        timeframe.Code
	lastClose time.Time
}

// NewScheduler builds a scheduler for one timeframe.
func NewScheduler(b broker.Broker, tf timeframe.Code) *Scheduler {
	return &Scheduler{broker: b, tf: tf}
}

// Poll checks the anchor symbol for a freshly closed candle. It returns
// the close time and true exactly once per new close.
func (s *Scheduler) Poll(anchor string) (time.Time, bool, error) {
	if anchor == "" {
		return time.Time{}, false, fmt.Errorf("scheduler: no anchor symbol")
	}
	candles, err := s.broker.Candles(anchor, s.tf, 3)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("scheduler: poll %s: %w", anchor, err)
	}
	if len(candles) < 3 {
		return time.Time{}, false, nil
	}
	// The last bar is still forming; the one before it is closed.
	closed := candles[len(candles)-2]
	closeTime := closed.Time.Add(s.tf.Duration())
	if !closeTime.After(s.lastClose) {
		return time.Time{}, false, nil
	}
	s.lastClose = closeTime
	return closeTime, true, nil
}

// LastClose reports the most recent close the scheduler fired on.
func (s *Scheduler) LastClose() time.Time { return s.lastClose }
