// Package engine owns the control loop: candle-close scheduling, the
// per-cycle pipeline (universe, ranking, strategy, risk, execution),
// deal reconciliation, and the published status snapshot.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/config"
	"github.com/calebmo/candlebot/internal/executor"
	"github.com/calebmo/candlebot/internal/metrics"
	"github.com/calebmo/candlebot/internal/monitor"
	"github.com/calebmo/candlebot/internal/notify"
	"github.com/calebmo/candlebot/internal/ranking"
	"github.com/calebmo/candlebot/internal/risk"
	"github.com/calebmo/candlebot/internal/storage"
	"github.com/calebmo/candlebot/internal/strategy"
	"github.com/calebmo/candlebot/internal/timeframe"
	"github.com/calebmo/candlebot/internal/universe"
)

// reconnectWait is the backoff between broker connection probes.
const reconnectWait = 3 * time.Second

// commandKind enumerates the runtime commands.
type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdRefreshUniverse
	cmdApplyConfig
	cmdQuit
)

type command struct {
	kind commandKind
	doc  string // JSON override for cmdApplyConfig
}

// Engine is the single-goroutine control loop. All trading state lives
// on the loop goroutine; only the snapshot and the command channel are
// shared.
type Engine struct {
	cfg      *config.Config
	broker   broker.Broker
	store    storage.Interface
	notifier notify.Notifier
	metrics  *metrics.Metrics
	monitor  *monitor.Monitor
	log      *logrus.Logger

	tf       timeframe.Code
	loc      *time.Location
	aliases  universe.Aliases
	uni      universe.Universe
	lastDisc time.Time

	sched    *Scheduler
	ranker   *ranking.Ranker
	selector *strategy.Selector
	risk     *risk.Manager
	exec     *executor.Executor
	recon    *Reconciler

	commands chan command
	snapshot snapshotHolder
	events   *eventRing

	manualPaused    bool
	wasRiskPaused   bool
	lastSummaryDate string
	connected       bool
	quitting        bool

	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

// New wires the engine from its collaborators.
func New(cfg *config.Config, b broker.Broker, store storage.Interface, n notify.Notifier, m *metrics.Metrics, log *logrus.Logger) (*Engine, error) {
	tf, err := timeframe.Parse(cfg.Runtime.Timeframe)
	if err != nil {
		return nil, err
	}
	aliases, err := universe.LoadAliases(cfg.Universe.SymbolsFile)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		broker:   b,
		store:    store,
		notifier: n,
		metrics:  m,
		monitor:  monitor.New(),
		log:      log,
		tf:       tf,
		loc:      cfg.Location(),
		aliases:  aliases,
		commands: make(chan command, 16),
		now:      time.Now,
	}
	e.sleep = func(ctx context.Context, d time.Duration) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
	e.events = newEventRing(func() time.Time { return e.now() })

	e.sched = NewScheduler(b, tf)
	e.ranker = ranking.New(b, cfg.Ranking, tf, cfg.Runtime.WarmupBars, log)
	e.selector = strategy.NewSelector(cfg.Strategy)
	e.risk = risk.NewManager(cfg.Risk, log)
	e.exec = executor.New(b, store, cfg.Execution, tf, log)
	e.recon = NewReconciler(b, store, e.risk, n, cfg.Execution.MagicNumber, log)
	return e, nil
}

// SetClock overrides the engine clock, for tests. Propagates to the
// collaborators the engine owns.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.ranker.SetClock(now)
	e.risk.SetClock(now)
	e.recon.SetClock(now)
}

// SetSleep overrides loop sleeps, for tests.
func (e *Engine) SetSleep(fn func(context.Context, time.Duration)) { e.sleep = fn }

// Snapshot returns the latest published state.
func (e *Engine) Snapshot() Snapshot { return e.snapshot.get() }

// Pause suspends new entries until Resume. Exits still run.
func (e *Engine) Pause() { e.post(command{kind: cmdPause}) }

// Resume lifts a manual pause.
func (e *Engine) Resume() { e.post(command{kind: cmdResume}) }

// RefreshUniverse forces symbol rediscovery on the next loop turn.
func (e *Engine) RefreshUniverse() { e.post(command{kind: cmdRefreshUniverse}) }

// ApplyConfig queues a JSON override document to be merged over the
// running configuration. Validation happens on the loop goroutine; a
// rejected override is logged and dropped.
func (e *Engine) ApplyConfig(doc string) { e.post(command{kind: cmdApplyConfig, doc: doc}) }

// Quit asks the loop to exit after the current turn.
func (e *Engine) Quit() { e.post(command{kind: cmdQuit}) }

func (e *Engine) post(c command) {
	select {
	case e.commands <- c:
	default:
		e.log.Warn("command queue full, dropping command")
	}
}

// Run drives the control loop until ctx is cancelled or Quit is called.
func (e *Engine) Run(ctx context.Context) error {
	e.log.WithFields(logrus.Fields{
		"timeframe": string(e.tf),
		"provider":  e.cfg.Broker.Provider,
	}).Info("engine started")
	defer e.log.Info("engine stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		e.drainCommands()
		if e.quitting {
			return nil
		}

		if err := e.ensureUniverse(); err != nil {
			e.noteDisconnected(err)
			e.sleep(ctx, reconnectWait)
			continue
		}

		closeTime, fired, err := e.sched.Poll(e.uni.Anchor)
		if err != nil {
			e.noteDisconnected(err)
			e.sleep(ctx, reconnectWait)
			continue
		}
		e.setConnected(true)

		if fired {
			if err := e.safeCycle(closeTime); err != nil {
				e.onCycleError(err)
			}
		}
		e.sleep(ctx, time.Duration(e.cfg.Runtime.LoopSleepSeconds*float64(time.Second)))
	}
}

func (e *Engine) drainCommands() {
	for {
		select {
		case c := <-e.commands:
			e.handleCommand(c)
		default:
			return
		}
	}
}

func (e *Engine) handleCommand(c command) {
	switch c.kind {
	case cmdPause:
		if !e.manualPaused {
			e.manualPaused = true
			e.events.add("warn", "manual pause engaged")
			e.log.Warn("manual pause engaged")
		}
	case cmdResume:
		if e.manualPaused {
			e.manualPaused = false
			e.events.add("info", "manual pause released")
			e.log.Info("manual pause released")
		}
	case cmdRefreshUniverse:
		e.lastDisc = time.Time{}
		e.events.add("info", "universe refresh requested")
	case cmdApplyConfig:
		merged, err := config.MergeJSON(e.cfg, c.doc)
		if err != nil {
			e.events.add("error", "config rejected: "+err.Error())
			e.log.WithError(err).Warn("config override rejected")
			return
		}
		e.applyConfig(merged)
	case cmdQuit:
		e.quitting = true
	}
}

// applyConfig swaps the slices that are safe to change between cycles.
// Timeframe, broker provider, and persistence stay fixed for the
// process lifetime.
func (e *Engine) applyConfig(cfg *config.Config) {
	e.cfg.Ranking = cfg.Ranking
	e.cfg.Strategy = cfg.Strategy
	e.cfg.Risk = cfg.Risk
	e.cfg.Execution = cfg.Execution
	e.cfg.Universe = cfg.Universe

	e.ranker = ranking.New(e.broker, cfg.Ranking, e.tf, e.cfg.Runtime.WarmupBars, e.log)
	e.ranker.SetClock(e.now)
	e.selector = strategy.NewSelector(cfg.Strategy)
	e.risk.ApplyConfig(cfg.Risk)
	e.exec.ApplyConfig(cfg.Execution)
	e.lastDisc = time.Time{}

	if doc, err := e.cfg.JSON(); err == nil {
		if err := e.store.InsertSettingsSnapshot("runtime", doc); err != nil {
			e.log.WithError(err).Warn("settings snapshot insert failed")
		}
	}
	e.events.add("info", "configuration applied")
	e.log.Info("configuration applied")
}

// ensureUniverse rediscovers symbols when the universe is empty or the
// discovery interval has elapsed.
func (e *Engine) ensureUniverse() error {
	interval := time.Duration(e.cfg.Universe.DiscoveryIntervalMinutes) * time.Minute
	if len(e.uni.Symbols) > 0 && interval > 0 && e.now().Sub(e.lastDisc) < interval {
		return nil
	}
	discovered, err := e.broker.DiscoverSymbols()
	if err != nil {
		return err
	}
	e.uni = universe.Build(discovered, e.cfg.Universe, e.aliases, e.log)
	e.lastDisc = e.now()
	e.log.WithFields(logrus.Fields{
		"symbols": len(e.uni.Symbols),
		"anchor":  e.uni.Anchor,
	}).Info("universe resolved")
	return nil
}

func (e *Engine) noteDisconnected(err error) {
	if e.connected {
		e.events.add("error", "broker connection lost: "+err.Error())
	}
	e.connected = false
	e.log.WithError(err).Warn("broker unavailable, waiting")
	s := e.snapshot.get()
	s.Connected = false
	s.UpdatedAt = e.now().UTC()
	s.Events = e.events.list()
	e.snapshot.set(s)
}

func (e *Engine) setConnected(ok bool) {
	if ok && !e.connected {
		e.events.add("info", "broker connected")
	}
	e.connected = ok
}

// safeCycle contains a panicking cycle so one bad candle cannot take
// the loop down.
func (e *Engine) safeCycle(closeTime time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v\n%s", r, debug.Stack())
		}
	}()
	return e.runCycle(closeTime)
}

func (e *Engine) onCycleError(err error) {
	e.log.WithError(err).Error("cycle failed")
	e.metrics.ErrorsTotal.Inc()
	e.events.add("error", err.Error())
	if ierr := e.store.InsertError("", "error", err.Error(), "", ""); ierr != nil {
		e.log.WithError(ierr).Warn("error insert failed")
	}
	key, msg := notify.CycleError(e.sched.LastClose().Format("2006-01-02 15:04"), err)
	e.notifier.Send(key, msg)
}
