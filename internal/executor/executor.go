// Package executor dispatches idempotent open/close orders: decision
// insert-first so the unique idempotency key guarantees at-most-once
// broker calls, config-driven retries, a paper-only account gate, and
// post-trade verification.
package executor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/storage"
	"github.com/calebmo/candlebot/internal/timeframe"
	"github.com/calebmo/candlebot/internal/util"
)

// Config is the execution slice of the bot configuration.
type Config struct {
	TradingEnabled    bool  `yaml:"trading_enabled"`
	CloseOnExitSignal bool  `yaml:"close_on_exit_signal"`
	SlippagePoints    int   `yaml:"slippage_points"`
	MagicNumber       int64 `yaml:"magic_number"`
	Retries           struct {
		MaxAttempts    int       `yaml:"max_attempts"`
		BackoffSeconds []float64 `yaml:"backoff_seconds"`
	} `yaml:"retries"`
}

// verifyDelay is the post-trade settle before position verification.
// A heuristic detector only; it never changes the report.
const verifyDelay = 300 * time.Millisecond

// CommentPrefix marks bot-dispatched orders; the reconciler uses it to
// suppress duplicate close notifications.
const CommentPrefix = "tb:"

// DecisionContext carries the audit payload persisted with a decision.
type DecisionContext struct {
	CycleID            string
	Symbol             string
	CandleCloseISO     string
	Strategy           string
	RankScore          float64
	RankComponentsJSON string
	FeaturesJSON       string
	SignalJSON         string
	RiskJSON           string
}

// Report is the outcome of one dispatch attempt.
type Report struct {
	Action  string              `json:"action"` // open | close
	Success bool                `json:"success"`
	Status  string              `json:"status"`
	Reason  string              `json:"reason"`
	Key     string              `json:"idempotency_key"`
	Result  *broker.OrderResult `json:"result,omitempty"`
}

// Executor owns order dispatch for one broker connection.
type Executor struct {
	broker broker.Broker
	store  storage.Interface
	cfg    Config
	tf     timeframe.Code
	log    *logrus.Logger
	sleep  func(time.Duration)
}

// New builds an executor.
func New(b broker.Broker, store storage.Interface, cfg Config, tf timeframe.Code, log *logrus.Logger) *Executor {
	return &Executor{broker: b, store: store, cfg: cfg, tf: tf, log: log, sleep: time.Sleep}
}

// SetSleep overrides retry/verification sleeps, for tests.
func (e *Executor) SetSleep(fn func(time.Duration)) { e.sleep = fn }

// ApplyConfig swaps the execution configuration.
func (e *Executor) ApplyConfig(cfg Config) { e.cfg = cfg }

// MakeKey computes the idempotency key: SHA-256 of the five decision
// coordinates joined by "|". Side "flat" is used for closes and skips.
func MakeKey(symbol string, tf timeframe.Code, candleCloseISO, strategy string, side broker.Side) string {
	return util.SHA256Hex(strings.Join([]string{
		symbol, string(tf), candleCloseISO, strategy, string(side),
	}, "|"))
}

// RecordDecision persists a terminal decision (no-signal, risk-blocked,
// same-side skip) without touching the broker. Returns the key and
// whether the row was new. strategy may be nil for no-signal rows; the
// key then uses the literal token "none".
func (e *Executor) RecordDecision(ctx DecisionContext, side broker.Side, strategy *string, status, reason string) (string, bool) {
	keyStrategy := "none"
	if strategy != nil {
		keyStrategy = *strategy
	}
	key := MakeKey(ctx.Symbol, e.tf, ctx.CandleCloseISO, keyStrategy, side)
	rec := e.baseRecord(ctx, key, status)
	rec.Strategy = strategy
	rec.ResultJSON = jsonField(map[string]string{"reason": reason})
	inserted, err := e.store.TryInsertDecision(rec)
	if err != nil {
		e.log.WithError(err).WithField("key", shortKey(key)).Error("decision insert failed")
		return key, false
	}
	return key, inserted
}

// OpenTrade dispatches a market entry.
func (e *Executor) OpenTrade(ctx DecisionContext, side broker.Side, volume, sl, tp float64) Report {
	key := MakeKey(ctx.Symbol, e.tf, ctx.CandleCloseISO, ctx.Strategy, side)
	req := broker.OrderRequest{
		Symbol:          ctx.Symbol,
		Side:            side,
		Volume:          volume,
		SL:              sl,
		TP:              tp,
		DeviationPoints: e.cfg.SlippagePoints,
		Magic:           e.cfg.MagicNumber,
		Comment:         CommentPrefix + shortKey(key),
	}
	return e.dispatch(ctx, key, "open", storage.StatusOpened, req)
}

// CloseTrade dispatches a market close of position. The key uses side
// "flat" so a close and a subsequent open on the same candle get
// distinct decisions.
func (e *Executor) CloseTrade(ctx DecisionContext, position *broker.Position, reason string) Report {
	key := MakeKey(ctx.Symbol, e.tf, ctx.CandleCloseISO, ctx.Strategy, broker.SideFlat)
	req := broker.OrderRequest{
		Symbol:          ctx.Symbol,
		Side:            position.Side.Opposite(),
		Volume:          position.Volume,
		DeviationPoints: e.cfg.SlippagePoints,
		Magic:           e.cfg.MagicNumber,
		Comment:         CommentPrefix + shortKey(key),
		PositionID:      position.ID,
	}
	e.log.WithFields(logrus.Fields{
		"symbol": ctx.Symbol, "position": position.ID, "reason": reason,
	}).Info("closing position")
	return e.dispatch(ctx, key, "close", storage.StatusClosed, req)
}

// dispatch runs the shared gate/insert/call/verify sequence.
func (e *Executor) dispatch(ctx DecisionContext, key, action, doneStatus string, req broker.OrderRequest) Report {
	report := Report{Action: action, Key: key}

	if !e.cfg.TradingEnabled {
		report.Reason = "trading disabled"
		report.Status = storage.StatusSkipped
		e.persistGated(ctx, key, req, report.Reason)
		return report
	}

	acct, err := e.broker.AccountInfo()
	if err != nil {
		report.Reason = fmt.Sprintf("account info unavailable: %v", err)
		report.Status = storage.StatusError
		return report
	}
	if acct.TradeMode != broker.ModeDemo && acct.TradeMode != broker.ModeContest {
		report.Reason = fmt.Sprintf("refusing %s account: paper trading only", acct.TradeMode)
		report.Status = storage.StatusSkipped
		e.persistGated(ctx, key, req, report.Reason)
		return report
	}

	rec := e.baseRecord(ctx, key, storage.StatusSkipped)
	strat := ctx.Strategy
	rec.Strategy = &strat
	rec.OrderJSON = jsonField(req)
	inserted, err := e.store.TryInsertDecision(rec)
	if err != nil {
		report.Reason = fmt.Sprintf("decision insert failed: %v", err)
		report.Status = storage.StatusError
		return report
	}
	if !inserted {
		report.Reason = "duplicate decision: already dispatched for this candle"
		report.Status = storage.StatusSkipped
		e.log.WithField("key", shortKey(key)).Info("skipping duplicate dispatch")
		return report
	}

	res, err := e.callWithRetries(func() (*broker.OrderResult, error) {
		return e.broker.PlaceOrder(req)
	})
	if err != nil {
		report.Reason = fmt.Sprintf("order failed: %v", err)
		report.Status = storage.StatusError
		e.finalize(key, storage.StatusError, map[string]string{"error": err.Error()})
		return report
	}
	report.Result = res
	if !res.Success {
		report.Reason = fmt.Sprintf("broker rejected order: retcode %d %s", res.Retcode, res.Comment)
		report.Status = storage.StatusError
		e.finalize(key, storage.StatusError, res)
		return report
	}

	report.Success = true
	report.Status = doneStatus
	report.Reason = fmt.Sprintf("%s confirmed: deal %d", action, res.DealTicket)
	e.finalize(key, doneStatus, res)
	e.verify(action, req, res)
	return report
}

// persistGated records a gate refusal under the idempotency key so the
// tuple stays decided.
func (e *Executor) persistGated(ctx DecisionContext, key string, req broker.OrderRequest, reason string) {
	rec := e.baseRecord(ctx, key, storage.StatusSkipped)
	strat := ctx.Strategy
	rec.Strategy = &strat
	rec.OrderJSON = jsonField(req)
	rec.ResultJSON = jsonField(map[string]string{"reason": reason})
	if _, err := e.store.TryInsertDecision(rec); err != nil {
		e.log.WithError(err).Error("gated decision insert failed")
	}
}

func (e *Executor) baseRecord(ctx DecisionContext, key, status string) *storage.DecisionRecord {
	return &storage.DecisionRecord{
		CycleID:            ctx.CycleID,
		Symbol:             ctx.Symbol,
		Timeframe:          string(e.tf),
		CandleCloseTime:    ctx.CandleCloseISO,
		RankScore:          ctx.RankScore,
		RankComponentsJSON: ctx.RankComponentsJSON,
		FeaturesJSON:       ctx.FeaturesJSON,
		SignalJSON:         ctx.SignalJSON,
		RiskJSON:           ctx.RiskJSON,
		Status:             status,
		IdempotencyKey:     key,
	}
}

func (e *Executor) finalize(key, status string, result any) {
	if err := e.store.UpdateDecision(key, status, jsonField(result)); err != nil {
		e.log.WithError(err).WithField("key", shortKey(key)).Error("decision update failed")
	}
}

// callWithRetries retries only on retryable/disconnected broker errors,
// sleeping the configured backoff schedule and saturating at its last
// element.
func (e *Executor) callWithRetries(fn func() (*broker.OrderResult, error)) (*broker.OrderResult, error) {
	attempts := e.cfg.Retries.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !broker.IsRetryable(err) {
			return nil, err
		}
		if i < attempts-1 {
			e.log.WithError(err).WithField("attempt", i+1).Warn("retrying broker call")
			e.sleep(e.backoffFor(i))
		}
	}
	return nil, lastErr
}

func (e *Executor) backoffFor(attempt int) time.Duration {
	schedule := e.cfg.Retries.BackoffSeconds
	if len(schedule) == 0 {
		return time.Second
	}
	if attempt >= len(schedule) {
		attempt = len(schedule) - 1
	}
	return time.Duration(schedule[attempt] * float64(time.Second))
}

// verify lists positions after a settle and logs a warning when the
// broker state disagrees with the report. Detector only.
func (e *Executor) verify(action string, req broker.OrderRequest, res *broker.OrderResult) {
	e.sleep(verifyDelay)
	positions, err := e.broker.ListPositions()
	if err != nil {
		e.log.WithError(err).Warn("post-trade verification fetch failed")
		return
	}
	switch action {
	case "open":
		for _, p := range positions {
			if p.Symbol == req.Symbol && p.Magic == req.Magic {
				return
			}
		}
		e.log.WithField("symbol", req.Symbol).Warn("verification: opened position not visible yet")
	case "close":
		for _, p := range positions {
			if p.ID == req.PositionID {
				e.log.WithField("position", req.PositionID).Warn("verification: closed position still visible")
				return
			}
		}
	}
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func jsonField(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"marshal_error":%q}`, err.Error())
	}
	return string(b)
}
