package output

import (
	"fmt"
	"io"

	"github.com/nethalo/indexadvisor/internal/schema"
)

// PlainRenderer produces unformatted text output safe for piping.
type PlainRenderer struct {
	w io.Writer
}

func (r *PlainRenderer) RenderAdvise(report AdviseReport) {
	fmt.Fprintf(r.w, "=== Index Advisor Report (schema=%s, dry_run=%v) ===\n\n", report.Schema, report.DryRun)

	for _, cr := range report.Candidates {
		c := cr.Candidate
		fmt.Fprintf(r.w, "--- %s.%s (%s) ---\n", c.Table, c.Field, c.Clause)
		fmt.Fprintf(r.w, "count=%s avg=%.1fms p95=%.1fms p99=%.1fms tenants=%d\n", formatNumber(c.Count), c.AvgMs, c.P95Ms, c.P99Ms, c.TenantCount)
		for _, s := range cr.Scores {
			fmt.Fprintf(r.w, "  score[%s]: %.2f (confidence=%.2f, decision=%v) %s\n", s.Algorithm, s.Score, s.Confidence, s.Decision, s.Reason)
		}
		fmt.Fprintf(r.w, "fusion: decision=%v combined=%.2f confidence=%.2f (%s)\n", cr.Fusion.Decision, cr.Fusion.Combined, cr.Fusion.Confidence, cr.Fusion.ReasonTag)
		fmt.Fprintf(r.w, "optimizer: allow=%v overall=%.2f reason=%s\n", cr.Decision.Allow, cr.Decision.Overall, cr.Decision.Reason)
		if cr.Exec != nil {
			if cr.Exec.Err != nil {
				fmt.Fprintf(r.w, "execution: FAILED after %d attempts: %s\n", cr.Exec.Attempts, cr.Exec.Err)
			} else if cr.Exec.Skipped {
				fmt.Fprintf(r.w, "execution: skipped, %s already exists\n", cr.Exec.IndexName)
			} else {
				fmt.Fprintf(r.w, "execution: created %s in %d attempt(s)\n", cr.Exec.IndexName, cr.Exec.Attempts)
			}
		}
		fmt.Fprintln(r.w)
	}
}

func (r *PlainRenderer) RenderSchema(report SchemaReport) {
	var table, field string
	var impact schema.Impact
	var rollbackSQL string
	var instructions []string

	switch {
	case report.Preview != nil:
		p := report.Preview
		table, field, impact, rollbackSQL, instructions = p.Table, p.Field, p.Impact, p.RollbackPlan.RollbackSQL, p.RollbackPlan.Instructions
		fmt.Fprintf(r.w, "=== Schema Change Preview: %s ===\n\n", p.Kind)
		fmt.Fprintf(r.w, "Target:  %s.%s\n", table, field)
		fmt.Fprintf(r.w, "Valid:   %v\n", p.Valid)
		for _, e := range p.Errors {
			fmt.Fprintf(r.w, "ERROR: %s\n", e)
		}
	case report.Result != nil:
		res := report.Result
		table, field, impact, rollbackSQL, instructions = res.Table, res.Field, res.Impact, res.RollbackPlan.RollbackSQL, res.RollbackPlan.Instructions
		fmt.Fprintf(r.w, "=== Schema Change Result ===\n\n")
		fmt.Fprintf(r.w, "Target:  %s.%s\n", table, field)
		fmt.Fprintf(r.w, "Success: %v\n", res.Success)
		if len(res.DroppedIndexes) > 0 {
			fmt.Fprintf(r.w, "Dropped: %v\n", res.DroppedIndexes)
		}
	}
	fmt.Fprintln(r.w)

	fmt.Fprintf(r.w, "--- Impact ---\n")
	fmt.Fprintf(r.w, "Affected queries: %s\n", formatNumber(impact.AffectedQueries))
	fmt.Fprintf(r.w, "Tenants:          %d\n", impact.TenantCount)
	fmt.Fprintf(r.w, "Avg/P95 ms:       %.1f / %.1f\n", impact.AvgDurationMs, impact.P95DurationMs)
	fmt.Fprintf(r.w, "Dependent idx/FK: %d / %d\n", len(impact.AffectedIndexes), len(impact.ForeignKeys))
	for _, w := range impact.Warnings {
		fmt.Fprintf(r.w, "WARNING: %s\n", w)
	}
	for _, e := range impact.Errors {
		fmt.Fprintf(r.w, "ERROR: %s\n", e)
	}
	for _, e := range impact.FKErrors {
		fmt.Fprintf(r.w, "BLOCKED: %s\n", e)
	}
	fmt.Fprintln(r.w)

	fmt.Fprintf(r.w, "--- Rollback ---\n")
	if rollbackSQL != "" {
		fmt.Fprintf(r.w, "%s\n", rollbackSQL)
	}
	for _, instr := range instructions {
		fmt.Fprintf(r.w, "- %s\n", instr)
	}
}

func (r *PlainRenderer) RenderStatus(report StatusReport) {
	fmt.Fprintf(r.w, "=== Advisor Status ===\n\n")
	fmt.Fprintf(r.w, "--- Switches ---\n")
	for _, name := range switchOrder {
		if v, ok := report.Switches[name]; ok {
			fmt.Fprintf(r.w, "%-20s %v\n", name, v)
		}
	}
	fmt.Fprintln(r.w)

	m := report.InterceptorMetrics
	fmt.Fprintf(r.w, "--- Interceptor ---\n")
	fmt.Fprintf(r.w, "interceptions: %d\n", m.TotalInterceptions)
	fmt.Fprintf(r.w, "blocked:       %d\n", m.TotalBlocked)
	fmt.Fprintf(r.w, "analyzed:      %d\n", m.TotalAnalyzed)
	fmt.Fprintf(r.w, "cache hit/miss: %d / %d\n", m.CacheHits, m.CacheMisses)

	if report.LastGateDecision != nil {
		d := report.LastGateDecision
		fmt.Fprintln(r.w)
		fmt.Fprintf(r.w, "--- Last Safety Gate Decision ---\n")
		fmt.Fprintf(r.w, "allow: %v reason: %s\n", d.Allow, d.Reason)
	}

	if mv := report.Maintenance; mv != nil {
		fmt.Fprintln(r.w)
		fmt.Fprintf(r.w, "--- Maintenance ---\n")
		fmt.Fprintf(r.w, "database healthy: %v (%s)\n", mv.DatabaseHealthy, mv.DatabaseLatency)
		fmt.Fprintf(r.w, "pool acq/idle/max: %d / %d / %d\n", mv.PoolAcquired, mv.PoolIdle, mv.PoolMax)
		for _, of := range mv.OrphanedFields {
			fmt.Fprintf(r.w, "ORPHANED: %s\n", of)
		}
		for _, pr := range mv.PredictedReindex {
			fmt.Fprintf(r.w, "BLOAT: %s\n", pr)
		}
		for _, w := range mv.Warnings {
			fmt.Fprintf(r.w, "WARNING: %s\n", w)
		}
		for _, e := range mv.Errors {
			fmt.Fprintf(r.w, "ERROR: %s\n", e)
		}
	}
}
