// Package maintenance implements the periodic "Maintenance" background
// loop SPEC_FULL.md §5 names alongside the telemetry flusher and the
// index advisor tick: integrity checks and predictive index-bloat
// maintenance. Grounded on original_source/src/health_check.py
// (comprehensive_health_check's database/connection-pool/system checks)
// for the integrity side, and on
// original_source/src/index_lifecycle_advanced.py's predict_index_bloat
// / predict_reindex_needs / run_predictive_maintenance for the
// predictive side. The ticker-driven Run/Stop shape mirrors
// internal/telemetry.Collector.
package maintenance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nethalo/indexadvisor/internal/catalog"
	"github.com/nethalo/indexadvisor/internal/dbx"
	"github.com/nethalo/indexadvisor/internal/runtimeswitch"
)

// OrphanedField is a genome_catalog row whose backing table or column
// no longer exists in the live catalog — schema drift the original's
// health check would surface as a warning.
type OrphanedField struct {
	Table  string
	Field  string
	Reason string
}

// ReindexPrediction is one advisor-managed index whose projected growth
// crosses the configured bloat threshold within the prediction window.
// Grounded on predict_index_bloat's linear-regression-over-historical-
// size approach; since this implementation's audit log doesn't carry a
// size_bytes time series the way the original's mutation_log rows do,
// the regression runs over samples this Checker itself takes at each
// tick (see sample/history below) rather than over persisted history —
// a substitution of data source, not of method.
type ReindexPrediction struct {
	IndexName          string
	Table              string
	CurrentSizeBytes   int64
	PredictedSizeBytes int64
	GrowthBytesPerDay  float64
	Confidence         string // "low" (<5 samples) or "medium"
}

// Report is the combined result of one maintenance tick.
type Report struct {
	Timestamp        time.Time
	DatabaseHealthy  bool
	DatabaseLatency  time.Duration
	PoolAcquired     int32
	PoolIdle         int32
	PoolMax          int32
	OrphanedFields   []OrphanedField
	PredictedReindex []ReindexPrediction
	Warnings         []string
	Errors           []string
}

type sample struct {
	at        time.Time
	sizeBytes int64
}

// Checker runs the periodic Maintenance loop: predictive maintenance
// (index-bloat growth prediction) plus integrity checks (DB
// reachability, connection-pool health, genome-catalog drift).
type Checker struct {
	pool     *dbx.Pool
	catalog  *catalog.Catalog
	switches *runtimeswitch.Registry
	logger   *zap.Logger
	schema   string

	predictionWindow  time.Duration
	bloatThresholdPct float64
	tickInterval      time.Duration

	historyMu sync.Mutex
	history   map[string][]sample

	stop    chan struct{}
	stopped chan struct{}
}

// New constructs a Checker. predictionWindow and bloatThresholdPct
// mirror predict_index_bloat's days_ahead and bloat_threshold_percent
// parameters.
func New(pool *dbx.Pool, cat *catalog.Catalog, switches *runtimeswitch.Registry, logger *zap.Logger, schemaName string, tickInterval, predictionWindow time.Duration, bloatThresholdPct float64) *Checker {
	return &Checker{
		pool:              pool,
		catalog:           cat,
		switches:          switches,
		logger:            logger,
		schema:            schemaName,
		predictionWindow:  predictionWindow,
		bloatThresholdPct: bloatThresholdPct,
		tickInterval:      tickInterval,
		history:           make(map[string][]sample),
		stop:              make(chan struct{}),
		stopped:           make(chan struct{}),
	}
}

// Run ticks every tickInterval until ctx is cancelled or Stop is called,
// logging each report's summary. It mirrors telemetry.Collector.Run's
// ticker-plus-cooperative-shutdown shape.
func (c *Checker) Run(ctx context.Context) {
	defer close(c.stopped)
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	c.logReport(c.Tick(ctx))

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.logReport(c.Tick(ctx))
		}
	}
}

// Stop requests Run to exit and blocks until it does.
func (c *Checker) Stop() {
	close(c.stop)
	<-c.stopped
}

func (c *Checker) logReport(report Report) {
	fields := []zap.Field{
		zap.Bool("database_healthy", report.DatabaseHealthy),
		zap.Duration("database_latency", report.DatabaseLatency),
		zap.Int("orphaned_fields", len(report.OrphanedFields)),
		zap.Int("predicted_reindex", len(report.PredictedReindex)),
	}
	if len(report.Errors) > 0 {
		c.logger.Error("maintenance tick found errors", append(fields, zap.Strings("errors", report.Errors))...)
		return
	}
	if len(report.Warnings) > 0 {
		c.logger.Warn("maintenance tick completed with warnings", append(fields, zap.Strings("warnings", report.Warnings))...)
		return
	}
	c.logger.Info("maintenance tick completed", fields...)
}

// Tick runs one round of integrity checks and predictive maintenance,
// mirroring comprehensive_health_check + run_predictive_maintenance.
func (c *Checker) Tick(ctx context.Context) Report {
	report := Report{Timestamp: time.Now()}

	if !c.switches.Snapshot().RequireEnabled("health_checks") {
		report.Warnings = append(report.Warnings, "health_checks disabled; skipping maintenance tick")
		return report
	}

	c.checkDatabaseHealth(ctx, &report)
	c.checkPoolHealth(&report)
	c.checkGenomeDrift(ctx, &report)
	c.runPredictiveMaintenance(ctx, &report)

	return report
}

// checkDatabaseHealth mirrors check_database_health: a bare SELECT 1
// ping, timed.
func (c *Checker) checkDatabaseHealth(ctx context.Context, report *Report) {
	start := time.Now()
	err := c.pool.Ping(ctx)
	report.DatabaseLatency = time.Since(start)
	if err != nil {
		report.DatabaseHealthy = false
		report.Errors = append(report.Errors, "database ping failed: "+err.Error())
		return
	}
	report.DatabaseHealthy = true
}

// checkPoolHealth mirrors check_connection_pool_health: pool stats with
// a warning when every connection is in use.
func (c *Checker) checkPoolHealth(report *Report) {
	stat := c.pool.Stat()
	report.PoolAcquired = stat.AcquiredConns()
	report.PoolIdle = stat.IdleConns()
	report.PoolMax = stat.MaxConns()
	if report.PoolMax > 0 && report.PoolAcquired >= report.PoolMax {
		report.Warnings = append(report.Warnings, "connection pool exhausted: all connections acquired")
	}
}

// checkGenomeDrift flags genome_catalog rows whose backing table or
// column has since disappeared from the live catalog — drift the
// original's health check treats as a warning-level integrity issue.
func (c *Checker) checkGenomeDrift(ctx context.Context, report *Report) {
	rows, err := c.pool.Query(ctx, `SELECT table_name, field_name FROM genome_catalog`)
	if err != nil {
		report.Warnings = append(report.Warnings, "genome_catalog drift check skipped: "+err.Error())
		return
	}
	defer rows.Close()

	type ref struct{ table, field string }
	var refs []ref
	for rows.Next() {
		var r ref
		if scanErr := rows.Scan(&r.table, &r.field); scanErr != nil {
			report.Warnings = append(report.Warnings, "genome_catalog drift check scan failed: "+scanErr.Error())
			return
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		report.Warnings = append(report.Warnings, "genome_catalog drift check failed: "+err.Error())
		return
	}

	colCache := make(map[string][]catalog.Column)
	for _, r := range refs {
		cols, ok := colCache[r.table]
		if !ok {
			var colErr error
			cols, colErr = c.catalog.Columns(ctx, c.schema, r.table)
			if colErr != nil {
				report.Warnings = append(report.Warnings, fmt.Sprintf("genome drift: reading columns for %s: %v", r.table, colErr))
				continue
			}
			colCache[r.table] = cols
		}
		if len(cols) == 0 {
			report.OrphanedFields = append(report.OrphanedFields, OrphanedField{Table: r.table, Field: r.field, Reason: "table no longer exists"})
			continue
		}
		found := false
		for _, col := range cols {
			if col.Name == r.field {
				found = true
				break
			}
		}
		if !found {
			report.OrphanedFields = append(report.OrphanedFields, OrphanedField{Table: r.table, Field: r.field, Reason: "column no longer exists"})
		}
	}
}

// managedIndexPrefix is the prefix every index this advisor creates
// carries, matching Plan.indexName's "idx_" convention in
// internal/executor — only advisor-managed indexes are tracked for
// bloat prediction, not every index a human created by hand.
const managedIndexPrefix = "idx_"

// runPredictiveMaintenance samples every advisor-managed index's
// current size, folds the sample into its history, and flags indexes
// whose regression-projected growth crosses bloatThresholdPct within
// predictionWindow — mirroring predict_reindex_needs.
func (c *Checker) runPredictiveMaintenance(ctx context.Context, report *Report) {
	tables, err := c.catalog.ListTables(ctx, c.schema)
	if err != nil {
		report.Warnings = append(report.Warnings, "predictive maintenance: listing tables failed: "+err.Error())
		return
	}

	now := time.Now()
	for _, t := range tables {
		idxs, idxErr := c.catalog.Indexes(ctx, c.schema, t.Name)
		if idxErr != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("predictive maintenance: listing indexes for %s failed: %v", t.Name, idxErr))
			continue
		}
		for _, idx := range idxs {
			if !hasPrefix(idx.Name, managedIndexPrefix) {
				continue
			}
			c.recordSample(idx.Name, now, idx.SizeBytes)
			pred, ok := c.predict(idx.Name, idx.Table, idx.SizeBytes)
			if !ok {
				continue
			}
			growthPct := bloatPercent(pred.CurrentSizeBytes, pred.PredictedSizeBytes)
			if growthPct >= c.bloatThresholdPct {
				report.PredictedReindex = append(report.PredictedReindex, pred)
			}
		}
	}

	sort.Slice(report.PredictedReindex, func(i, j int) bool {
		return report.PredictedReindex[i].IndexName < report.PredictedReindex[j].IndexName
	})
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func bloatPercent(current, predicted int64) float64 {
	if current <= 0 {
		if predicted > 0 {
			return 100
		}
		return 0
	}
	return float64(predicted-current) / float64(current) * 100
}

// recordSample keeps the last 30 size samples per index — enough for a
// stable regression without growing unbounded across a long-running
// process.
func (c *Checker) recordSample(indexName string, at time.Time, sizeBytes int64) {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	hist := append(c.history[indexName], sample{at: at, sizeBytes: sizeBytes})
	if len(hist) > 30 {
		hist = hist[len(hist)-30:]
	}
	c.history[indexName] = hist
}

// predict fits a simple linear regression of size over time across the
// recorded samples for indexName, falling back to average growth
// between the first and last sample when every sample lands on the same
// day (denominator would be zero) — mirroring predict_index_bloat's own
// fallback. Returns ok=false when fewer than two samples exist yet.
func (c *Checker) predict(indexName, table string, currentSize int64) (ReindexPrediction, bool) {
	c.historyMu.Lock()
	hist := append([]sample(nil), c.history[indexName]...)
	c.historyMu.Unlock()

	if len(hist) < 2 {
		return ReindexPrediction{}, false
	}

	first := hist[0].at
	var sumX, sumY, sumXY, sumX2 float64
	n := float64(len(hist))
	distinctDays := make(map[int64]bool)
	for _, s := range hist {
		days := s.at.Sub(first).Hours() / 24
		distinctDays[int64(days)] = true
		sizeF := float64(s.sizeBytes)
		sumX += days
		sumY += sizeF
		sumXY += days * sizeF
		sumX2 += days * days
	}

	var growthPerDay float64
	denom := n*sumX2 - sumX*sumX
	if len(distinctDays) < 2 || denom == 0 {
		oldest, newest := hist[0], hist[len(hist)-1]
		span := newest.at.Sub(oldest.at).Hours() / 24
		if span <= 0 {
			span = 1
		}
		growthPerDay = float64(newest.sizeBytes-oldest.sizeBytes) / span
	} else {
		growthPerDay = (n*sumXY - sumX*sumY) / denom
	}

	predictedSize := float64(currentSize) + growthPerDay*(c.predictionWindow.Hours()/24)
	if predictedSize < 0 {
		predictedSize = 0
	}

	confidence := "low"
	if len(hist) >= 5 {
		confidence = "medium"
	}

	return ReindexPrediction{
		IndexName:          indexName,
		Table:              table,
		CurrentSizeBytes:   currentSize,
		PredictedSizeBytes: int64(predictedSize),
		GrowthBytesPerDay:  growthPerDay,
		Confidence:         confidence,
	}, true
}
