package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nethalo/indexadvisor/internal/abtest"
	"github.com/nethalo/indexadvisor/internal/audit"
	"github.com/nethalo/indexadvisor/internal/candidate"
	"github.com/nethalo/indexadvisor/internal/catalog"
	"github.com/nethalo/indexadvisor/internal/config"
	"github.com/nethalo/indexadvisor/internal/dbx"
	"github.com/nethalo/indexadvisor/internal/executor"
	"github.com/nethalo/indexadvisor/internal/interceptor"
	"github.com/nethalo/indexadvisor/internal/maintenance"
	"github.com/nethalo/indexadvisor/internal/optimizer"
	"github.com/nethalo/indexadvisor/internal/runtimeswitch"
	"github.com/nethalo/indexadvisor/internal/safety"
	"github.com/nethalo/indexadvisor/internal/schema"
	"github.com/nethalo/indexadvisor/internal/scoring"
	"github.com/nethalo/indexadvisor/internal/telemetry"
	"github.com/nethalo/indexadvisor/internal/version"
)

// app bundles every wired component a command might need, assembled once
// per invocation from the resolved config. Commands reach into the
// fields they use and ignore the rest, the same way the teacher's cmd
// package built one mysql.Connect + topology.Detect per command but
// shared the connection config construction.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	pool      *dbx.Pool
	catalog   *catalog.Catalog
	audit     *audit.Log
	switches  *runtimeswitch.Registry
	telemetry *telemetry.Collector
	versions  *version.Store
	abtest    *abtest.Store
	gate      *safety.Gate
	optimizer *optimizer.Optimizer
	executor  *executor.Executor
	evolver   *schema.Evolver
	scorers   *scoring.Registry
	limiter   *safety.Limiter
	intercept *interceptor.Interceptor
	maint     *maintenance.Checker

	schemaName string
}

// newApp opens the database pool and wires every internal component from
// cfg. Callers must call (*app).Close when done.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, schemaName string) (*app, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("no DSN configured: pass --dsn or set it in the config file")
	}

	pool, err := dbx.Open(ctx, cfg.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	cat := catalog.New(pool)
	switches := runtimeswitch.NewRegistry(cfg.Bypass)
	auditLog := audit.New(pool, logger, switches)
	versions := version.New(pool)
	abtestStore := abtest.New(pool)
	telem := telemetry.New(pool, logger, switches, cfg.AutoIndexer.WindowDuration, 10000)
	gate := safety.NewGate(logger, auditLog, cat, cfg)
	opt := optimizer.New(true, 0.5)
	queryLimiter := safety.NewLimiter(cfg.RateLimiter.Query.MaxRequests, time.Duration(cfg.RateLimiter.Query.TimeWindowSeconds*float64(time.Second)))
	intercept := interceptor.New(pool, auditLog, switches, queryLimiter, logger, cfg.Interceptor)
	exec := executor.New(pool, cat, auditLog, versions, gate, switches, logger, cfg.IndexRetry, intercept)
	evolver := schema.New(pool, cat, auditLog, switches, logger, schemaName, 256, intercept)
	maint := maintenance.New(pool, cat, switches, logger, schemaName, 5*time.Minute, 7*24*time.Hour, 50.0)

	var historical scoring.HistoricalSource = auditLog
	scorers := scoring.NewRegistry(
		scoring.NewHeuristicScorer(cfg.AutoIndexer),
		scoring.NewCERTScorer(cat, cfg.CERT),
		scoring.NewQPGScorer(pool, cfg.QPG),
		scoring.NewCortexScorer(pool, cfg.Cortex),
		scoring.NewPredictiveScorer(nil, historical, cfg.Predictive),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		catalog:    cat,
		audit:      auditLog,
		switches:   switches,
		telemetry:  telem,
		versions:   versions,
		abtest:     abtestStore,
		gate:       gate,
		optimizer:  opt,
		executor:   exec,
		evolver:    evolver,
		scorers:    scorers,
		limiter:    queryLimiter,
		intercept:  intercept,
		maint:      maint,
		schemaName: schemaName,
	}, nil
}

// ensureSchema creates every table the advisor's components persist to,
// called once at startup by any command that touches the database.
func (a *app) ensureSchema(ctx context.Context) error {
	if err := a.audit.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("audit schema: %w", err)
	}
	if err := a.telemetry.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("telemetry schema: %w", err)
	}
	if err := a.versions.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("version schema: %w", err)
	}
	if err := a.abtest.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("abtest schema: %w", err)
	}
	if err := a.evolver.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("schema-evolution tracking: %w", err)
	}
	return nil
}

func (a *app) Close() {
	a.pool.Close()
}

// candidatesFromTelemetry converts the persisted telemetry rows into the
// shape the candidate generator consumes. Kept as a plain loop rather
// than a cast since telemetry.Stat and candidate.Column are
// intentionally distinct types (see internal/telemetry's doc comment on
// Stat) to avoid an import cycle between the two packages.
func candidatesFromTelemetry(stats []telemetry.Stat) []candidate.Column {
	out := make([]candidate.Column, len(stats))
	for i, s := range stats {
		out[i] = candidate.Column{
			Table:     s.Table,
			Column:    s.Column,
			Clause:    s.Clause,
			Count:     s.Count,
			TotalMs:   s.TotalMs,
			TotalRows: s.TotalRows,
		}
	}
	return out
}
