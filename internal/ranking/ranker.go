package ranking

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/market"
	"github.com/calebmo/candlebot/internal/timeframe"
	"github.com/calebmo/candlebot/internal/util"
)

// Config is the ranking slice of the bot configuration.
type Config struct {
	TopN            int `yaml:"top_n"`
	MinBarsRequired int `yaml:"min_bars_required"`
	Filters         struct {
		MaxSpreadPoints     float64 `yaml:"max_spread_points"`
		MaxSpreadToATRRatio float64 `yaml:"max_spread_to_atr_ratio"`
		MarketOpenRequired  bool    `yaml:"market_open_required"`
	} `yaml:"filters"`
	Weights struct {
		Volatility float64 `yaml:"volatility"`
		Trend      float64 `yaml:"trend"`
		Momentum   float64 `yaml:"momentum"`
		Cost       float64 `yaml:"cost"`
	} `yaml:"weights"`
	Correlation struct {
		Enabled    bool    `yaml:"enabled"`
		WindowBars int     `yaml:"window_bars"`
		MaxAbsCorr float64 `yaml:"max_abs_corr"`
	} `yaml:"correlation"`
}

// Components are the four normalised sub-scores of a ranked symbol.
type Components struct {
	Volatility float64 `json:"volatility"`
	Trend      float64 `json:"trend"`
	Momentum   float64 `json:"momentum"`
	Cost       float64 `json:"cost"`
}

// RankedSymbol is one scored entry of the board.
type RankedSymbol struct {
	Symbol     string          `json:"symbol"`
	Score      float64         `json:"score"`
	Components Components      `json:"components"`
	Features   market.Features `json:"features"`
	Reasons    []string        `json:"reasons,omitempty"`
}

// Bundle carries the per-symbol fetch results downstream so strategies
// do not refetch candles.
type Bundle struct {
	Symbol   string
	Meta     broker.SymbolMeta
	Quote    *broker.Quote
	Candles  []market.Candle
	Features market.Features
}

// Output is the full result of one ranking pass.
type Output struct {
	Ranked   []RankedSymbol
	Selected []RankedSymbol
	Excluded map[string]string
	Bundles  map[string]*Bundle
}

// Ranker scores a symbol set against a broker feed.
type Ranker struct {
	broker     broker.Broker
	cfg        Config
	tf         timeframe.Code
	warmupBars int
	log        *logrus.Logger
	now        func() time.Time
}

// New builds a Ranker.
func New(b broker.Broker, cfg Config, tf timeframe.Code, warmupBars int, log *logrus.Logger) *Ranker {
	return &Ranker{broker: b, cfg: cfg, tf: tf, warmupBars: warmupBars, log: log, now: time.Now}
}

// SetClock overrides the staleness clock, for tests.
func (r *Ranker) SetClock(now func() time.Time) { r.now = now }

// maxTickAge is the hard ceiling on quote staleness.
const maxTickAge = 10 * time.Minute

// Rank runs the full pipeline over symbols.
func (r *Ranker) Rank(symbols []string, meta map[string]broker.SymbolMeta) Output {
	out := Output{
		Excluded: make(map[string]string),
		Bundles:  make(map[string]*Bundle),
	}

	type candidate struct {
		bundle *Bundle
		vol    float64
		trend  float64
		mom    float64
		cost   float64
	}
	var candidates []candidate

	staleCutoff := maxTickAge
	if d := r.tf.Duration(); d < staleCutoff {
		staleCutoff = d
	}

	for _, sym := range symbols {
		m, ok := meta[sym]
		if !ok || !m.TradeAllowed {
			out.Excluded[sym] = "trading disabled"
			continue
		}
		candles, err := r.broker.Candles(sym, r.tf, r.warmupBars)
		if err != nil {
			out.Excluded[sym] = fmt.Sprintf("candle fetch failed: %v", err)
			continue
		}
		if len(candles) < r.cfg.MinBarsRequired {
			out.Excluded[sym] = fmt.Sprintf("insufficient bars: %d < %d", len(candles), r.cfg.MinBarsRequired)
			continue
		}
		quote, err := r.broker.Quote(sym)
		if err != nil {
			out.Excluded[sym] = fmt.Sprintf("quote fetch failed: %v", err)
			continue
		}
		if r.cfg.Filters.MarketOpenRequired {
			// Tick age is the market-open proxy: a closed market stops
			// ticking well before the staleness ceiling.
			if age := r.now().UTC().Sub(quote.Time.UTC()); age > staleCutoff {
				out.Excluded[sym] = fmt.Sprintf("stale quote: tick age %s", age.Round(time.Second))
				continue
			}
		}

		// Drop the open bar; features evaluate on closed bars only.
		closed := candles[:len(candles)-1]
		feats, ok := market.ComputeFeatures(closed)
		if !ok {
			out.Excluded[sym] = "insufficient bars for features"
			continue
		}
		if !util.IsFinite(feats.ATR14) || feats.ATR14 <= 0 || feats.Close <= 0 {
			out.Excluded[sym] = "invalid ATR or close"
			continue
		}

		spread := quote.Ask - quote.Bid
		if r.cfg.Filters.MaxSpreadPoints > 0 && quote.SpreadPoints > r.cfg.Filters.MaxSpreadPoints {
			out.Excluded[sym] = fmt.Sprintf("spread %.1f points above limit %.1f", quote.SpreadPoints, r.cfg.Filters.MaxSpreadPoints)
			continue
		}
		if r.cfg.Filters.MaxSpreadToATRRatio > 0 && spread/feats.ATR14 > r.cfg.Filters.MaxSpreadToATRRatio {
			out.Excluded[sym] = fmt.Sprintf("spread/ATR %.3f above limit %.3f", spread/feats.ATR14, r.cfg.Filters.MaxSpreadToATRRatio)
			continue
		}

		mom := momentumScore(feats)
		b := &Bundle{Symbol: sym, Meta: m, Quote: quote, Candles: closed, Features: feats}
		out.Bundles[sym] = b
		candidates = append(candidates, candidate{
			bundle: b,
			vol:    feats.ATR14Pct,
			trend:  feats.ADX14,
			mom:    mom,
			cost:   spread / feats.ATR14,
		})
	}

	if len(candidates) == 0 {
		return out
	}

	col := func(get func(candidate) float64) []float64 {
		vals := make([]float64, len(candidates))
		for i, c := range candidates {
			vals[i] = get(c)
		}
		return RobustMinMax(vals)
	}
	volN := col(func(c candidate) float64 { return c.vol })
	trendN := col(func(c candidate) float64 { return c.trend })
	momN := col(func(c candidate) float64 { return c.mom })
	costN := col(func(c candidate) float64 { return c.cost })

	w := r.cfg.Weights
	sumW := w.Volatility + w.Trend + w.Momentum + w.Cost
	for i, c := range candidates {
		comp := Components{
			Volatility: nanToHalf(volN[i]),
			Trend:      nanToHalf(trendN[i]),
			Momentum:   nanToHalf(momN[i]),
			Cost:       nanToHalf(costN[i]),
		}
		score := 0.5
		if sumW > 0 {
			score = (w.Volatility*comp.Volatility + w.Trend*comp.Trend +
				w.Momentum*comp.Momentum + w.Cost*(1-comp.Cost)) / sumW
		}
		out.Ranked = append(out.Ranked, RankedSymbol{
			Symbol:     c.bundle.Symbol,
			Score:      util.Clamp01(score),
			Components: comp,
			Features:   c.bundle.Features,
			Reasons:    entryReasons(c.vol, c.trend, c.mom, c.cost),
		})
	}
	sort.SliceStable(out.Ranked, func(i, j int) bool {
		return out.Ranked[i].Score > out.Ranked[j].Score
	})

	out.Selected = r.selectTop(out)
	return out
}

func (r *Ranker) selectTop(out Output) []RankedSymbol {
	topN := r.cfg.TopN
	if topN <= 0 || topN > len(out.Ranked) {
		topN = len(out.Ranked)
	}

	if !r.cfg.Correlation.Enabled {
		return out.Ranked[:topN]
	}

	order := make([]string, len(out.Ranked))
	byName := make(map[string]RankedSymbol, len(out.Ranked))
	returns := make(map[string][]float64, len(out.Ranked))
	for i, rs := range out.Ranked {
		order[i] = rs.Symbol
		byName[rs.Symbol] = rs
		if b := out.Bundles[rs.Symbol]; b != nil {
			returns[rs.Symbol] = market.TailReturns(b.Candles, r.cfg.Correlation.WindowBars)
		}
	}
	names, excluded := GreedyFilter(order, returns, r.cfg.Correlation.MaxAbsCorr, topN)
	for sym, reason := range excluded {
		out.Excluded[sym] = reason
	}
	selected := make([]RankedSymbol, 0, len(names))
	for _, n := range names {
		selected = append(selected, byName[n])
	}
	return selected
}

// momentumScore prefers the oscillator histogram magnitude relative to
// ATR; Ret20 is the fallback when ATR is unusable. A legitimately zero
// histogram scores zero momentum.
func momentumScore(f market.Features) float64 {
	if f.ATR14 > 0 {
		return math.Abs(f.TPHist) / f.ATR14
	}
	return math.Abs(f.Ret20)
}

// entryReasons tags a ranked entry with the raw-feature qualities it
// clears, in board order.
func entryReasons(vol, trend, mom, cost float64) []string {
	var out []string
	if trend >= 25 {
		out = append(out, "strong trend (ADX)")
	}
	if cost <= 0.10 {
		out = append(out, "low cost (spread/ATR)")
	}
	if vol >= 0.004 {
		out = append(out, "good volatility (ATR%)")
	}
	if mom >= 0.5 {
		out = append(out, "good momentum")
	}
	if len(out) == 0 {
		out = []string{"meets filters"}
	}
	return out
}

func nanToHalf(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return v
}
