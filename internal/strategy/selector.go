package strategy

import (
	"fmt"

	"github.com/calebmo/candlebot/internal/market"
)

// Config is the strategy slice of the bot configuration.
type Config struct {
	Mode         string `yaml:"mode"` // manual | rule_based
	ManualActive string `yaml:"manual_active"`
	RuleBased    struct {
		ADXTrending float64 `yaml:"adx_trending"`
		ADXRanging  float64 `yaml:"adx_ranging"`
	} `yaml:"rule_based"`
}

// Selection is the selector verdict for one symbol. Strategy is nil in
// the rule-based ADX mid-zone; the decision is still persisted with the
// literal strategy token "none".
type Selection struct {
	Strategy Strategy
	Name     string
	Reason   string
}

// NoStrategy is the strategy token persisted when the selector abstains.
const NoStrategy = "none"

// Selector picks the strategy per symbol and cycle.
type Selector struct {
	cfg      Config
	registry map[string]Strategy
}

// NewSelector builds a selector over the default registry.
func NewSelector(cfg Config) *Selector {
	return &Selector{cfg: cfg, registry: Registry()}
}

// Select resolves the strategy for the given feature bundle.
func (s *Selector) Select(f market.Features) Selection {
	if s.cfg.Mode == "manual" {
		st, ok := s.registry[s.cfg.ManualActive]
		if !ok {
			return Selection{Name: NoStrategy, Reason: fmt.Sprintf("unknown manual strategy %q", s.cfg.ManualActive)}
		}
		return Selection{Strategy: st, Name: st.Name(), Reason: "manual selection"}
	}

	switch {
	case f.ADX14 >= s.cfg.RuleBased.ADXTrending:
		st := s.registry["two_pole_momentum"]
		return Selection{Strategy: st, Name: st.Name(), Reason: fmt.Sprintf("ADX %.1f trending", f.ADX14)}
	case f.ADX14 <= s.cfg.RuleBased.ADXRanging:
		st := s.registry["range_mean_reversion"]
		return Selection{Strategy: st, Name: st.Name(), Reason: fmt.Sprintf("ADX %.1f ranging", f.ADX14)}
	}
	return Selection{Name: NoStrategy, Reason: fmt.Sprintf("ADX %.1f in mid-zone", f.ADX14)}
}
