// Package app wires the hearth components together for a running process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bdobrica/hearth/internal/hearth/approvals"
	"github.com/bdobrica/hearth/internal/hearth/calendar"
	"github.com/bdobrica/hearth/internal/hearth/config"
	"github.com/bdobrica/hearth/internal/hearth/executor"
	"github.com/bdobrica/hearth/internal/hearth/fallback"
	"github.com/bdobrica/hearth/internal/hearth/intent"
	"github.com/bdobrica/hearth/internal/hearth/metrics"
	"github.com/bdobrica/hearth/internal/hearth/nlp"
	"github.com/bdobrica/hearth/internal/hearth/store"
	"github.com/bdobrica/hearth/internal/hearth/tools"
)

// App owns every long-lived component.  It is constructed once at startup;
// the pending-action store in particular is never a package global.
type App struct {
	cfg config.Config

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	db       *store.Store
	Pending  approvals.Store
	Calendar *calendar.Executor
	Tools    tools.Executor
	Parser   *intent.Chain
	Executor *executor.Executor

	health *HealthServer
	cancel context.CancelFunc
}

// New builds the application from cfg.  With no database path the calendar
// lives in an in-memory SQLite database and confirmations in process memory.
func New(cfg config.Config) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNew(reg)

	dbPath := cfg.DatabasePath
	if dbPath == "" {
		dbPath = ":memory:"
	}
	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	var pending approvals.Store
	if cfg.DatabasePath != "" {
		pending = approvals.NewSQLiteStore(db.DB(), approvals.WithTTL(cfg.Confirm.PendingTTL))
	} else {
		pending = approvals.NewMemoryStore(approvals.WithTTL(cfg.Confirm.PendingTTL))
	}

	cal := calendar.New(db.DB())
	chain := &intent.Chain{
		Primary:  primaryParser(cfg, m),
		Fallback: fallback.New(),
		Recorder: m,
	}

	a := &App{
		cfg:      cfg,
		Registry: reg,
		Metrics:  m,
		db:       db,
		Pending:  pending,
		Calendar: cal,
		Tools:    tools.NewPrefsCache(cal, 256, cfg.Events.PrefsCacheTTL),
		Parser:   chain,
		Executor: executor.New(chain, pending,
			executor.WithRecorder(m),
			executor.WithPendingTTL(cfg.Confirm.PendingTTL),
			executor.WithDefaultDuration(cfg.Events.DefaultDuration),
		),
	}
	if cfg.HTTPAddr != "" {
		a.health = NewHealthServer(cfg.HTTPAddr, a)
	}

	slog.Info("hearth initialised",
		"model_enabled", chain.Primary != nil,
		"persistent", cfg.DatabasePath != "",
		"http_addr", cfg.HTTPAddr,
	)
	return a, nil
}

// primaryParser returns the model-backed parser, or nil when no API key is
// configured so every message goes to the deterministic parser.
func primaryParser(cfg config.Config, m *metrics.Metrics) intent.Parser {
	key := cfg.APIKey()
	if key == "" {
		return nil
	}
	completer := nlp.NewOpenAI(nlp.Config{
		APIKey:  key,
		BaseURL: cfg.Model.BaseURL,
		Model:   cfg.Model.Model,
	})
	return nlp.NewParser(completer,
		nlp.WithTimeout(cfg.Model.Timeout),
		nlp.WithLimiter(nlp.NewUserLimiter(cfg.Model.CallsPerMinute, cfg.Model.Burst)),
		nlp.WithLatencyObserver(m),
	)
}

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// ModelEnabled reports whether the model-backed parser is active.
func (a *App) ModelEnabled() bool {
	return a.Parser.Primary != nil
}

// Persistent reports whether confirmations and events survive a restart.
func (a *App) Persistent() bool {
	return a.cfg.DatabasePath != ""
}

// Start launches the health server when one is configured and, with a
// persistent store, the expired-token sweeper.  Both stop when ctx is
// cancelled.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	if s, ok := a.Pending.(*approvals.SQLiteStore); ok {
		go sweep(ctx, s, sweepInterval)
	}
	if a.health == nil {
		return nil
	}
	return a.health.Start(ctx)
}

const sweepInterval = time.Minute

// sweep removes expired pending actions so abandoned tokens do not pile up.
func sweep(ctx context.Context, s *approvals.SQLiteStore, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("purge expired pending actions", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("purged expired pending actions", "count", n)
			}
		}
	}
}

// Stop cancels background work and closes the database.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.health != nil {
		a.health.Stop()
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("close database", "err", err)
	}
}
