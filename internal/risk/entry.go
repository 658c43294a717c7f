package risk

import (
	"fmt"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/util"
)

// EntryRequest is a candidate order submitted to the entry check.
type EntryRequest struct {
	Symbol       string
	Side         broker.Side
	EntryPrice   float64
	ATR          float64
	Meta         broker.SymbolMeta
	OpenTotal    int // open bot positions across all symbols
	OpenOnSymbol int // open bot positions on this symbol
}

// Decision is the outcome of an entry check. A rejection is a normal
// result, not an error.
type Decision struct {
	Allowed bool               `json:"allowed"`
	Reason  string             `json:"reason"`
	Volume  float64            `json:"volume,omitempty"`
	SL      float64            `json:"sl,omitempty"`
	TP      float64            `json:"tp,omitempty"`
	Details map[string]float64 `json:"details,omitempty"`
}

func reject(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// CheckEntry gates and sizes a candidate LONG/SHORT entry.
func (m *Manager) CheckEntry(req EntryRequest) Decision {
	if m.state.Paused {
		return reject("risk paused: %s", m.state.PauseReason)
	}
	if m.cfg.MaxOpenPositionsTotal > 0 && req.OpenTotal >= m.cfg.MaxOpenPositionsTotal {
		return reject("open positions %d at limit %d", req.OpenTotal, m.cfg.MaxOpenPositionsTotal)
	}
	if m.cfg.MaxOpenPositionsPerSymbol > 0 && req.OpenOnSymbol >= m.cfg.MaxOpenPositionsPerSymbol {
		return reject("open positions on %s at per-symbol limit %d", req.Symbol, m.cfg.MaxOpenPositionsPerSymbol)
	}

	sl, tp, stopPoints, err := m.stopsFor(req)
	if err != nil {
		return reject("%v", err)
	}

	volume, details, err := m.sizeVolume(req, stopPoints)
	if err != nil {
		return reject("%v", err)
	}
	details["stop_points"] = stopPoints

	return Decision{
		Allowed: true,
		Reason:  "entry allowed",
		Volume:  volume,
		SL:      sl,
		TP:      tp,
		Details: details,
	}
}

// stopsFor computes SL/TP for the request side and the stop distance in
// points used by sizing.
func (m *Manager) stopsFor(req EntryRequest) (sl, tp, stopPoints float64, err error) {
	point := req.Meta.Point
	if point <= 0 {
		return 0, 0, 0, fmt.Errorf("symbol %s has no point size", req.Symbol)
	}
	dir := 1.0
	if req.Side == broker.SideShort {
		dir = -1.0
	}

	switch m.cfg.SLTPMode {
	case "atr":
		if req.ATR <= 0 {
			return 0, 0, 0, fmt.Errorf("ATR unavailable for %s", req.Symbol)
		}
		sl = req.EntryPrice - dir*req.ATR*m.cfg.ATR.SLMult
		tp = req.EntryPrice + dir*req.ATR*m.cfg.ATR.TPMult
		stopPoints = req.ATR * m.cfg.ATR.SLMult / point
	default: // rr
		stopPoints = m.cfg.RR.StopPoints
		sl = req.EntryPrice - dir*stopPoints*point
		tp = req.EntryPrice + dir*m.cfg.RR.TakePoints*point
	}
	if stopPoints <= 0 {
		return 0, 0, 0, fmt.Errorf("non-positive stop distance for %s", req.Symbol)
	}
	return sl, tp, stopPoints, nil
}

// sizeVolume converts the per-trade risk budget into lots:
// money_per_point_per_lot = tick_value * point / tick_size, then
// volume = equity*risk / (stop_points * mppl), clamped to the symbol's
// volume band and rounded down to its step.
func (m *Manager) sizeVolume(req EntryRequest, stopPoints float64) (float64, map[string]float64, error) {
	meta := req.Meta
	if meta.TickValue <= 0 || meta.TickSize <= 0 || meta.Point <= 0 {
		return 0, nil, fmt.Errorf("symbol %s missing tick metadata", req.Symbol)
	}
	mppl := meta.TickValue * meta.Point / meta.TickSize
	if mppl <= 0 {
		return 0, nil, fmt.Errorf("symbol %s has non-positive point value", req.Symbol)
	}
	riskMoney := m.state.Equity * m.cfg.RiskPerTrade
	if riskMoney <= 0 {
		return 0, nil, fmt.Errorf("risk budget is zero (equity %.2f)", m.state.Equity)
	}

	raw := riskMoney / (stopPoints * mppl)
	vol := util.Clamp(raw, meta.VolumeMin, meta.VolumeMax)
	vol = util.RoundDownToStep(vol, meta.VolumeStep)
	if vol < meta.VolumeMin && raw > 0 {
		vol = meta.VolumeMin
	}
	if vol <= 0 {
		return 0, nil, fmt.Errorf("sized volume %.4f is not tradable", vol)
	}
	return vol, map[string]float64{
		"money_per_point_per_lot": mppl,
		"risk_money":              riskMoney,
		"raw_volume":              raw,
	}, nil
}

// CountPositions tallies bot-magic positions total and per symbol.
func CountPositions(positions []broker.Position, magic int64, symbol string) (total, onSymbol int) {
	for _, p := range positions {
		if p.Magic != magic {
			continue
		}
		total++
		if p.Symbol == symbol {
			onSymbol++
		}
	}
	return total, onSymbol
}

// FindPosition returns the first open bot-magic position on symbol.
func FindPosition(positions []broker.Position, magic int64, symbol string) *broker.Position {
	for i := range positions {
		if positions[i].Magic == magic && positions[i].Symbol == symbol {
			return &positions[i]
		}
	}
	return nil
}
