// Command bot runs the paper-trading loop: broker adapter, control
// engine, status dashboard, and SQLite audit trail.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/config"
	"github.com/calebmo/candlebot/internal/dashboard"
	"github.com/calebmo/candlebot/internal/engine"
	"github.com/calebmo/candlebot/internal/metrics"
	"github.com/calebmo/candlebot/internal/notify"
	"github.com/calebmo/candlebot/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config YAML (required)")
	noUI := flag.Bool("no-ui", false, "disable the status dashboard")
	logLevel := flag.String("log-level", "info", "log level: debug|info|warn|error")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: bot --config config.yaml [--no-ui] [--log-level info]")
		os.Exit(1)
	}
	if err := run(*configPath, *noUI, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "bot: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, noUI bool, logLevel string) error {
	// First pass: file only, enough to locate the database.
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg.Logging.Dir, logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := storage.Open(cfg.Persistence.DBPath, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("storage close failed")
		}
	}()

	// Second pass: the last persisted settings snapshot wins over the
	// file, so runtime-applied config survives a restart.
	if snapshot, err := store.LatestSettingsJSON(); err != nil {
		log.WithError(err).Warn("settings snapshot read failed, using file config")
	} else if snapshot != "" {
		merged, err := config.LoadWithOverride(configPath, snapshot)
		if err != nil {
			log.WithError(err).Warn("persisted settings no longer valid, using file config")
		} else {
			cfg = merged
		}
	}
	if doc, err := cfg.JSON(); err == nil {
		if err := store.InsertSettingsSnapshot("startup", doc); err != nil {
			log.WithError(err).Warn("startup settings snapshot failed")
		}
	}

	b, err := newBroker(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Shutdown(); err != nil {
			log.WithError(err).Warn("broker shutdown failed")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	notifier := notify.NewFromEnv(cfg.Notifications, log)

	eng, err := engine.New(cfg, b, store, notifier, m, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(ctx)
	})

	if cfg.UI.Enabled && !noUI {
		srv := dashboard.NewServer(dashboard.Config{
			ListenAddr: cfg.UI.ListenAddr,
			RefreshHz:  cfg.UI.RefreshHz,
		}, eng, store, registry, log)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.WithFields(logrus.Fields{
		"config":   configPath,
		"provider": cfg.Broker.Provider,
		"db":       cfg.Persistence.DBPath,
	}).Info("candlebot starting")
	return g.Wait()
}

// newBroker builds the configured adapter behind a circuit breaker.
func newBroker(cfg *config.Config) (broker.Broker, error) {
	switch cfg.Broker.Provider {
	case "paper":
		paper := broker.NewPaperBroker(broker.PaperConfig{
			Seed:          cfg.Broker.Paper.Seed,
			InitialEquity: cfg.Broker.Paper.InitialEquity,
			SpreadPoints:  cfg.Broker.Paper.SpreadPoints,
		})
		return broker.NewCircuitBreakerBroker(paper), nil
	case "mt5":
		return nil, errors.New("broker.provider mt5 requires an external gateway; run cmd/doctor to check the environment")
	default:
		return nil, fmt.Errorf("unknown broker provider %q", cfg.Broker.Provider)
	}
}

// newLogger tees to stdout and, when dir is set, a rotated file.
func newLogger(dir, level string) (*logrus.Logger, func(), error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q", level)
	}
	log.SetLevel(lvl)

	closeLog := func() {}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "candlebot.log"),
			MaxSize:    20, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stdout, rotator))
		closeLog = func() { _ = rotator.Close() }
	}
	return log, closeLog, nil
}
