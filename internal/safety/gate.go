// Package safety implements the admission-control layer that sits in
// front of every DDL the mutation executor and schema-evolution
// component want to run: the maintenance window, per-class rate
// limiters, a CPU throttle, the storage budget, and the write-
// performance ceiling. Grounded on original_source/src/
// maintenance_window.py, rate_limiter.py, storage_budget.py, and
// write_performance.py.
package safety

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nethalo/indexadvisor/internal/audit"
	"github.com/nethalo/indexadvisor/internal/catalog"
	"github.com/nethalo/indexadvisor/internal/config"
)

// Decision is the unified outcome of running every safety check for one
// prospective mutation. A single failing check is enough to refuse.
type Decision struct {
	Allow        bool
	Reason       string
	Checks       map[string]string // check name -> human reason, populated for every check that ran
	RetryAfter   time.Duration     // set when Allow is false because of a transient condition (window, rate limit, CPU)
}

// Gate orchestrates the five admission checks spec §4.5 names. A nil
// sub-checker (e.g. because its feature flag is off) is treated as
// always-pass.
type Gate struct {
	logger *zap.Logger
	audit  *audit.Log

	window            *Window
	windowEnabled     bool
	maxWindowWait     time.Duration
	limiters          *LimiterGroup
	cpu               *CPUThrottle
	storage           *StorageBudget
	writePerf         *WritePerformance
}

// NewGate wires a Gate from fully-resolved config sections, matching
// the shape internal/config already binds from viper.
func NewGate(logger *zap.Logger, auditLog *audit.Log, cat *catalog.Catalog, cfg *config.Config) *Gate {
	g := &Gate{
		logger:        logger,
		audit:         auditLog,
		windowEnabled: cfg.MaintenanceWindow.Enabled,
		maxWindowWait: cfg.AutoIndexer.MaxWaitForMaintenanceWindow,
	}

	if cfg.MaintenanceWindow.Enabled {
		w := Window{
			StartHour:  cfg.MaintenanceWindow.StartHour,
			EndHour:    cfg.MaintenanceWindow.EndHour,
			DaysOfWeek: cfg.MaintenanceWindow.DaysOfWeek,
		}
		g.window = &w
	}

	g.limiters = &LimiterGroup{
		Query:         NewLimiter(cfg.RateLimiter.Query.MaxRequests, secondsToDuration(cfg.RateLimiter.Query.TimeWindowSeconds)),
		IndexCreation: NewLimiter(cfg.RateLimiter.IndexCreation.MaxRequests, secondsToDuration(cfg.RateLimiter.IndexCreation.TimeWindowSeconds)),
		Connection:    NewLimiter(cfg.RateLimiter.Connection.MaxRequests, secondsToDuration(cfg.RateLimiter.Connection.TimeWindowSeconds)),
	}

	g.cpu = NewCPUThrottle(cfg.CPUThrottle.CPUThreshold, cfg.CPUThrottle.CPUCooldown, cfg.CPUThrottle.CPUMonitoringWindow)

	g.storage = NewStorageBudget(cat, cfg.StorageBudget.Enabled, cfg.StorageBudget.MaxStoragePerTenantMB, cfg.StorageBudget.MaxStorageTotalMB, cfg.StorageBudget.WarnThresholdPct)

	g.writePerf = NewWritePerformance(cat, cfg.WritePerformance.Enabled, cfg.WritePerformance.MaxIndexesPerTable, cfg.WritePerformance.WarnIndexesPerTable, cfg.WritePerformance.WriteOverheadThreshold)

	return g
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// CheckIndexCreation runs every admission check relevant to creating an
// index on (schema, table), in the fixed order the spec documents:
// maintenance window, index-creation rate limit, CPU throttle, storage
// budget, write-performance ceiling. A refusal is written to the audit
// trail together with the reasons of the checks run so far; an admission
// is logged at debug level only and is not written to the audit trail.
func (g *Gate) CheckIndexCreation(ctx context.Context, schema, table, tenant string, estimatedSizeMB float64) Decision {
	checks := make(map[string]string)
	now := time.Now()

	if g.windowEnabled && g.window != nil {
		wait := g.window.ShouldWaitForWindow(now, g.maxWindowWait)
		checks["maintenance_window"] = wait.Reason
		if wait.ShouldWait {
			return g.refuseKind(audit.IndexCreationFailed, "maintenance_window", wait.Reason, table, checks, time.Duration(wait.SecondsToWait*float64(time.Second)))
		}
	}

	if g.limiters != nil && g.limiters.IndexCreation != nil {
		ok, retryAfter := g.limiters.IndexCreation.IsAllowed(table, 1)
		if ok {
			checks["rate_limit"] = "within_limit"
		} else {
			checks["rate_limit"] = "index_creation_rate_limited"
			return g.refuseKind(audit.RateLimitExceeded, "rate_limit", "index creation rate limit exceeded for "+table, table, checks, time.Duration(retryAfter*float64(time.Second)))
		}
	}

	if g.cpu != nil {
		blocked, reason, cooldown := g.cpu.Check()
		if blocked {
			checks["cpu_throttle"] = reason
			return g.refuseKind(audit.IndexCreationFailed, "cpu_throttle", reason, table, checks, cooldown)
		}
		checks["cpu_throttle"] = "ok"
	}

	if g.storage != nil {
		result, err := g.storage.Check(ctx, schema, tenant, estimatedSizeMB)
		if err != nil {
			g.logger.Warn("storage budget check failed, failing open", zap.Error(err))
		}
		checks["storage_budget"] = result.Reason
		if !result.Allowed {
			return g.refuseKind(audit.IndexCreationFailed, "storage_budget", result.Reason, table, checks, 0)
		}
	}

	if g.writePerf != nil {
		result, err := g.writePerf.CanCreateIndex(ctx, schema, table)
		if err != nil {
			g.logger.Warn("write performance check failed, failing open", zap.Error(err))
		}
		checks["write_performance"] = result.Reason
		if !result.Allowed {
			return g.refuseKind(audit.IndexCreationFailed, "write_performance", result.Reason, table, checks, 0)
		}
	}

	g.logger.Debug("safety gate admitted mutation", zap.String("table", table), zap.Any("checks", checks))
	return Decision{Allow: true, Reason: "all_checks_passed", Checks: checks}
}

func (g *Gate) refuseKind(kind audit.MutationType, check, reason, table string, checks map[string]string, retryAfter time.Duration) Decision {
	g.recordDecision(context.Background(), kind, table, false, check+": "+reason, checks)
	return Decision{Allow: false, Reason: reason, Checks: checks, RetryAfter: retryAfter}
}

func (g *Gate) recordDecision(ctx context.Context, kind audit.MutationType, table string, allow bool, reason string, checks map[string]string) {
	if g.audit == nil {
		return
	}
	severity := audit.Info
	if !allow {
		severity = audit.Warning
	}
	_ = g.audit.Record(ctx, audit.Entry{
		Kind:     kind,
		Table:    table,
		Severity: severity,
		Details: map[string]any{
			"gate_allow": allow,
			"reason":     reason,
			"checks":     checks,
		},
	})
	if !allow {
		g.logger.Info("safety gate refused mutation", zap.String("table", table), zap.String("reason", reason))
	}
}
