package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/executor"
	"github.com/calebmo/candlebot/internal/monitor"
	"github.com/calebmo/candlebot/internal/notify"
	"github.com/calebmo/candlebot/internal/ranking"
	"github.com/calebmo/candlebot/internal/risk"
	"github.com/calebmo/candlebot/internal/storage"
	"github.com/calebmo/candlebot/internal/strategy"
	"github.com/calebmo/candlebot/internal/util"
)

// runCycle executes one full pipeline pass for a freshly closed candle.
func (e *Engine) runCycle(closeTime time.Time) error {
	start := e.now()
	cycleID := uuid.NewString()
	closeISO := util.ISOUTC(closeTime)
	stageMS := make(map[string]int64)
	clog := e.log.WithFields(logrus.Fields{"cycle": cycleID[:8], "close": closeISO})
	clog.Info("cycle start")

	acct, err := e.broker.AccountInfo()
	if err != nil {
		return fmt.Errorf("account info: %w", err)
	}
	positions, err := e.broker.ListPositions()
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	localDate := e.now().In(e.loc).Format("2006-01-02")
	riskState := e.risk.UpdateEquityState(acct.Equity, acct.Balance, localDate)
	e.notifyPauseTransition(riskState)

	t0 := e.now()
	out := e.ranker.Rank(e.uni.Symbols, e.uni.Meta)
	stageMS["rank"] = e.sinceMS(t0)
	clog.WithFields(logrus.Fields{
		"ranked":   len(out.Ranked),
		"selected": len(out.Selected),
		"excluded": len(out.Excluded),
	}).Info("ranking complete")

	t0 = e.now()
	for _, rs := range out.Selected {
		e.processSymbol(cycleID, closeISO, rs, out, positions)
	}
	stageMS["trade"] = e.sinceMS(t0)

	// Deals reconcile after execution; a loss streak completed here
	// pauses entries from the next equity update on.
	t0 = e.now()
	if _, err := e.recon.Run(); err != nil {
		clog.WithError(err).Warn("deal reconciliation failed")
	}
	stageMS["reconcile"] = e.sinceMS(t0)

	stats, err := e.store.TodayTradeStats(localDate, e.cfg.Execution.MagicNumber)
	if err != nil {
		clog.WithError(err).Warn("today stats query failed")
	}
	e.maybeSendDailySummary(localDate, stats, acct.Equity, riskState.DrawdownPct)

	gauges := e.monitor.Sample()
	latencyMS := e.sinceMS(start)
	botOpen, _ := risk.CountPositions(positions, e.cfg.Execution.MagicNumber, "")

	e.metrics.CyclesTotal.Inc()
	e.metrics.CycleLatency.Observe(float64(latencyMS) / 1000)
	e.metrics.Equity.Set(acct.Equity)
	e.metrics.DrawdownPct.Set(riskState.DrawdownPct)
	e.metrics.OpenPositions.Set(float64(botOpen))

	e.persistHeartbeat(cycleID, latencyMS, acct, riskState, stats, gauges, botOpen)

	selected := make([]string, 0, len(out.Selected))
	for _, rs := range out.Selected {
		selected = append(selected, rs.Symbol)
	}
	e.snapshot.set(Snapshot{
		UpdatedAt:      e.now().UTC(),
		Connected:      true,
		TradingEnabled: e.cfg.Execution.TradingEnabled,
		ManuallyPaused: e.manualPaused,
		CycleID:        cycleID,
		CandleClose:    closeTime.UTC(),
		CycleLatencyMS: latencyMS,
		StageMS:        stageMS,
		Universe:       e.uni.Symbols,
		Ranked:         out.Ranked,
		Selected:       selected,
		Excluded:       out.Excluded,
		Account:        acct,
		Positions:      positions,
		Risk:           riskState,
		Today:          stats,
		Gauges:         gauges,
		Events:         e.events.list(),
	})

	clog.WithField("latency_ms", latencyMS).Info("cycle complete")
	return nil
}

// processSymbol runs selection, evaluation, risk, and dispatch for one
// ranked symbol.
func (e *Engine) processSymbol(cycleID, closeISO string, rs ranking.RankedSymbol, out ranking.Output, positions []broker.Position) {
	sym := rs.Symbol
	b := out.Bundles[sym]
	if b == nil {
		return
	}
	magic := e.cfg.Execution.MagicNumber
	pos := risk.FindPosition(positions, magic, sym)

	dctx := executor.DecisionContext{
		CycleID:            cycleID,
		Symbol:             sym,
		CandleCloseISO:     closeISO,
		RankScore:          rs.Score,
		RankComponentsJSON: mustJSON(rs.Components),
		FeaturesJSON:       mustJSON(b.Features),
	}

	sel := e.selector.Select(b.Features)
	if sel.Strategy == nil {
		_, inserted := e.exec.RecordDecision(dctx, broker.SideFlat, nil, storage.StatusNoSignal, sel.Reason)
		if inserted {
			e.metrics.DecisionsTotal.WithLabelValues(storage.StatusNoSignal).Inc()
		}
		return
	}
	dctx.Strategy = sel.Name

	sig := sel.Strategy.Evaluate(b.Candles, b.Features, strategy.Context{Symbol: sym, Position: pos})
	dctx.SignalJSON = mustJSON(sig)

	if sig.Side == broker.SideFlat {
		if sig.HasTag(strategy.TagExit) && pos != nil && e.cfg.Execution.CloseOnExitSignal {
			e.dispatchClose(dctx, pos, sig.Reason)
			return
		}
		name := sel.Name
		_, inserted := e.exec.RecordDecision(dctx, broker.SideFlat, &name, storage.StatusNoSignal, sig.Reason)
		if inserted {
			e.metrics.DecisionsTotal.WithLabelValues(storage.StatusNoSignal).Inc()
		}
		return
	}

	openTotal, openOnSym := risk.CountPositions(positions, magic, sym)

	if pos != nil {
		if pos.Side == sig.Side {
			name := sel.Name
			reason := fmt.Sprintf("already positioned %s on %s", pos.Side, sym)
			_, inserted := e.exec.RecordDecision(dctx, broker.SideFlat, &name, storage.StatusSkipped, reason)
			if inserted {
				e.metrics.DecisionsTotal.WithLabelValues(storage.StatusSkipped).Inc()
			}
			return
		}
		// Opposite signal: close first, then size the new entry with
		// the closed position out of the caps.
		if !e.dispatchClose(dctx, pos, "reversal") {
			return
		}
		openTotal--
		openOnSym--
	}

	if e.manualPaused {
		name := sel.Name
		_, inserted := e.exec.RecordDecision(dctx, sig.Side, &name, storage.StatusRiskBlocked, "manually paused")
		if inserted {
			e.metrics.DecisionsTotal.WithLabelValues(storage.StatusRiskBlocked).Inc()
		}
		return
	}

	entryPrice := b.Quote.Ask
	if sig.Side == broker.SideShort {
		entryPrice = b.Quote.Bid
	}
	decision := e.risk.CheckEntry(risk.EntryRequest{
		Symbol:       sym,
		Side:         sig.Side,
		EntryPrice:   entryPrice,
		ATR:          b.Features.ATR14,
		Meta:         b.Meta,
		OpenTotal:    openTotal,
		OpenOnSymbol: openOnSym,
	})
	dctx.RiskJSON = mustJSON(decision)
	if !decision.Allowed {
		name := sel.Name
		_, inserted := e.exec.RecordDecision(dctx, sig.Side, &name, storage.StatusRiskBlocked, decision.Reason)
		if inserted {
			e.metrics.DecisionsTotal.WithLabelValues(storage.StatusRiskBlocked).Inc()
		}
		e.log.WithFields(logrus.Fields{"symbol": sym, "reason": decision.Reason}).Info("entry blocked")
		return
	}

	report := e.exec.OpenTrade(dctx, sig.Side, decision.Volume, decision.SL, decision.TP)
	e.countReport(report)
	if report.Success {
		price := entryPrice
		if report.Result != nil && report.Result.Price > 0 {
			price = report.Result.Price
		}
		e.events.add("info", fmt.Sprintf("opened %s %s %.2f @ %.5f", sig.Side, sym, decision.Volume, price))
		key, msg := notify.TradeOpened(sym, string(sig.Side), decision.Volume, price, decision.SL, decision.TP, sel.Name)
		e.notifier.Send(key, msg)
	}
}

// dispatchClose closes pos and reports whether the position is gone.
func (e *Engine) dispatchClose(dctx executor.DecisionContext, pos *broker.Position, reason string) bool {
	report := e.exec.CloseTrade(dctx, pos, reason)
	e.countReport(report)
	if report.Success {
		price := 0.0
		if report.Result != nil {
			price = report.Result.Price
		}
		e.events.add("info", fmt.Sprintf("closed %s %s %.2f (%s)", pos.Side, pos.Symbol, pos.Volume, reason))
		key, msg := notify.TradeClosed(pos.Symbol, string(pos.Side), pos.Volume, price, pos.Profit)
		e.notifier.Send(key, msg)
	}
	return report.Success
}

func (e *Engine) countReport(report executor.Report) {
	outcome := "success"
	if !report.Success {
		outcome = "failure"
	}
	e.metrics.OrdersTotal.WithLabelValues(report.Action, outcome).Inc()
	e.metrics.DecisionsTotal.WithLabelValues(report.Status).Inc()
	if !report.Success && report.Reason != "" {
		e.events.add("warn", fmt.Sprintf("%s %s: %s", report.Action, report.Status, report.Reason))
	}
}

// notifyPauseTransition announces risk pause edges exactly once.
func (e *Engine) notifyPauseTransition(state risk.State) {
	if state.Paused && !e.wasRiskPaused {
		e.events.add("warn", "risk pause: "+state.PauseReason)
		key, msg := notify.RiskPaused(state.PauseReason)
		e.notifier.Send(key, msg)
	}
	if !state.Paused && e.wasRiskPaused {
		e.events.add("info", "risk pause released")
		key, msg := notify.RiskResumed()
		e.notifier.Send(key, msg)
	}
	e.wasRiskPaused = state.Paused
}

// maybeSendDailySummary fires once per local date after the configured
// time of day.
func (e *Engine) maybeSendDailySummary(localDate string, stats storage.TodayStats, equity, drawdownPct float64) {
	at := e.cfg.Notifications.DailySummaryTime
	if at == "" || e.lastSummaryDate == localDate {
		return
	}
	if e.now().In(e.loc).Format("15:04") < at {
		return
	}
	e.lastSummaryDate = localDate
	key, msg := notify.DailySummary(localDate, stats.PnL, stats.Wins, stats.Losses, equity, drawdownPct)
	e.notifier.Send(key, msg)
}

func (e *Engine) persistHeartbeat(cycleID string, latencyMS int64, acct *broker.AccountInfo, state risk.State, stats storage.TodayStats, gauges monitor.Gauges, openPositions int) {
	status := "ok"
	if state.Paused {
		status = "paused"
	}
	hb := &storage.HeartbeatRow{
		CycleID:        cycleID,
		Status:         status,
		CycleLatencyMS: latencyMS,
		Connected:      true,
		Equity:         acct.Equity,
		Balance:        acct.Balance,
		DailyStart:     state.DailyStartEquity,
		DailyPnL:       stats.PnL,
		PeakEquity:     state.PeakEquity,
		DrawdownPct:    state.DrawdownPct,
		OpenPositions:  openPositions,
		CPUPct:         gauges.CPUPct,
		RAMPct:         gauges.RAMPct,
		DiskPct:        gauges.DiskPct,
		NetRxBps:       gauges.NetRxBps,
		NetTxBps:       gauges.NetTxBps,
		TempC:          gauges.TempC,
	}
	if err := e.store.InsertHeartbeat(hb); err != nil {
		e.log.WithError(err).Warn("heartbeat insert failed")
	}
}

func (e *Engine) sinceMS(t time.Time) int64 {
	return e.now().Sub(t).Milliseconds()
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
