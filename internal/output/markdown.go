package output

import (
	"fmt"
	"io"

	"github.com/nethalo/indexadvisor/internal/schema"
)

// MarkdownRenderer produces markdown output for documentation/tickets.
type MarkdownRenderer struct {
	w io.Writer
}

func (r *MarkdownRenderer) RenderAdvise(report AdviseReport) {
	mode := "live"
	if report.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(r.w, "# Index Advisor Report (%s)\n\n", mode)
	fmt.Fprintf(r.w, "Schema: `%s` — %d candidate(s) considered\n\n", report.Schema, len(report.Candidates))

	for _, cr := range report.Candidates {
		c := cr.Candidate
		fmt.Fprintf(r.w, "## `%s.%s` (%s)\n\n", c.Table, c.Field, c.Clause)
		fmt.Fprintf(r.w, "| Property | Value |\n|---|---|\n")
		fmt.Fprintf(r.w, "| Observed count | %s |\n", formatNumber(c.Count))
		fmt.Fprintf(r.w, "| Avg / P95 / P99 ms | %.1f / %.1f / %.1f |\n", c.AvgMs, c.P95Ms, c.P99Ms)
		fmt.Fprintf(r.w, "| Tenants | %d |\n\n", c.TenantCount)

		if len(cr.Scores) > 0 {
			fmt.Fprintf(r.w, "### Scores\n\n")
			fmt.Fprintf(r.w, "| Algorithm | Score | Confidence | Decision | Reason |\n|---|---|---|---|---|\n")
			for _, s := range cr.Scores {
				fmt.Fprintf(r.w, "| %s | %.2f | %.2f | %v | %s |\n", s.Algorithm, s.Score, s.Confidence, s.Decision, s.Reason)
			}
			fmt.Fprintln(r.w)
		}

		fmt.Fprintf(r.w, "### Fusion\n\n")
		fmt.Fprintf(r.w, "**Decision:** %v (combined=%.2f, confidence=%.2f, %s)\n\n",
			cr.Fusion.Decision, cr.Fusion.Combined, cr.Fusion.Confidence, cr.Fusion.ReasonTag)

		icon := "✅"
		if !cr.Decision.Allow {
			icon = "❌"
		}
		fmt.Fprintf(r.w, "### %s Optimizer Decision: %s\n\n", icon, cr.Decision.Reason)
		fmt.Fprintf(r.w, "Overall score: %.2f\n\n", cr.Decision.Overall)
		if len(cr.Decision.Constraints) > 0 {
			fmt.Fprintf(r.w, "| Constraint | Satisfied | Score | Reason |\n|---|---|---|---|\n")
			for _, name := range []string{"storage", "performance", "workload", "tenant_caps"} {
				if c, ok := cr.Decision.Constraints[name]; ok {
					fmt.Fprintf(r.w, "| %s | %v | %.2f | %s |\n", name, c.Satisfied, c.Score, c.Reason)
				}
			}
			fmt.Fprintln(r.w)
		}

		if cr.Exec != nil {
			fmt.Fprintf(r.w, "### Execution\n\n")
			if cr.Exec.Err != nil {
				fmt.Fprintf(r.w, "**Failed** after %d attempt(s): %s\n\n", cr.Exec.Attempts, cr.Exec.Err)
			} else if cr.Exec.Skipped {
				fmt.Fprintf(r.w, "Skipped — `%s` already exists.\n\n", cr.Exec.IndexName)
			} else {
				fmt.Fprintf(r.w, "Created `%s` in %d attempt(s).\n\n```sql\n%s\n```\n\n", cr.Exec.IndexName, cr.Exec.Attempts, cr.Exec.RollbackSQL)
			}
		}
	}
}

func (r *MarkdownRenderer) RenderSchema(report SchemaReport) {
	switch {
	case report.Preview != nil:
		p := report.Preview
		fmt.Fprintf(r.w, "# Schema Change Preview — %s\n\n", p.Kind)
		fmt.Fprintf(r.w, "**Target:** `%s.%s`\n\n", p.Table, p.Field)
		fmt.Fprintf(r.w, "**Valid:** %v\n\n", p.Valid)
		for _, e := range p.Errors {
			fmt.Fprintf(r.w, "- **Error:** %s\n", e)
		}
		renderImpactMarkdown(r.w, p.Impact)
		renderRollbackPlanMarkdown(r.w, p.RollbackPlan.RollbackSQL, p.RollbackPlan.Instructions)
	case report.Result != nil:
		res := report.Result
		fmt.Fprintf(r.w, "# Schema Change Result\n\n")
		fmt.Fprintf(r.w, "**Target:** `%s.%s`\n\n", res.Table, res.Field)
		fmt.Fprintf(r.w, "**Success:** %v\n\n", res.Success)
		if len(res.DroppedIndexes) > 0 {
			fmt.Fprintf(r.w, "**Dropped indexes:** %v\n\n", res.DroppedIndexes)
		}
		renderImpactMarkdown(r.w, res.Impact)
		renderRollbackPlanMarkdown(r.w, res.RollbackPlan.RollbackSQL, res.RollbackPlan.Instructions)
	}
}

func (r *MarkdownRenderer) RenderStatus(report StatusReport) {
	fmt.Fprintf(r.w, "# Advisor Status\n\n")
	fmt.Fprintf(r.w, "## Runtime Switches\n\n")
	fmt.Fprintf(r.w, "| Switch | Enabled |\n|---|---|\n")
	for _, name := range switchOrder {
		if v, ok := report.Switches[name]; ok {
			fmt.Fprintf(r.w, "| %s | %v |\n", name, v)
		}
	}
	fmt.Fprintln(r.w)

	m := report.InterceptorMetrics
	fmt.Fprintf(r.w, "## Interceptor\n\n")
	fmt.Fprintf(r.w, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(r.w, "| Interceptions | %d |\n", m.TotalInterceptions)
	fmt.Fprintf(r.w, "| Blocked | %d |\n", m.TotalBlocked)
	fmt.Fprintf(r.w, "| Analyzed | %d |\n", m.TotalAnalyzed)
	fmt.Fprintf(r.w, "| Cache hits / misses | %d / %d |\n\n", m.CacheHits, m.CacheMisses)

	if report.LastGateDecision != nil {
		d := report.LastGateDecision
		fmt.Fprintf(r.w, "## Last Safety Gate Decision\n\n")
		fmt.Fprintf(r.w, "**Allow:** %v — %s\n\n", d.Allow, d.Reason)
	}

	if mv := report.Maintenance; mv != nil {
		fmt.Fprintf(r.w, "## Maintenance\n\n")
		fmt.Fprintf(r.w, "| Property | Value |\n|---|---|\n")
		fmt.Fprintf(r.w, "| Database healthy | %v (%s) |\n", mv.DatabaseHealthy, mv.DatabaseLatency)
		fmt.Fprintf(r.w, "| Pool acquired/idle/max | %d / %d / %d |\n\n", mv.PoolAcquired, mv.PoolIdle, mv.PoolMax)
		for _, of := range mv.OrphanedFields {
			fmt.Fprintf(r.w, "- **Orphaned:** %s\n", of)
		}
		for _, pr := range mv.PredictedReindex {
			fmt.Fprintf(r.w, "- **Predicted bloat:** %s\n", pr)
		}
		for _, wmsg := range mv.Warnings {
			fmt.Fprintf(r.w, "- **Warning:** %s\n", wmsg)
		}
		for _, e := range mv.Errors {
			fmt.Fprintf(r.w, "- **Error:** %s\n", e)
		}
		fmt.Fprintln(r.w)
	}
}

var switchOrder = []string{
	"system", "auto_indexing", "stats_collection", "expression_checks",
	"mutation_logging", "schema_evolution", "reporting", "health_checks",
	"interceptor", "retry",
}

func renderImpactMarkdown(w io.Writer, impact schema.Impact) {
	fmt.Fprintf(w, "## Impact\n\n")
	fmt.Fprintf(w, "| Property | Value |\n|---|---|\n")
	fmt.Fprintf(w, "| Affected queries (7d) | %s |\n", formatNumber(impact.AffectedQueries))
	fmt.Fprintf(w, "| Tenants touched | %d |\n", impact.TenantCount)
	fmt.Fprintf(w, "| Avg / P95 ms | %.1f / %.1f |\n", impact.AvgDurationMs, impact.P95DurationMs)
	fmt.Fprintf(w, "| Dependent indexes | %d |\n", len(impact.AffectedIndexes))
	fmt.Fprintf(w, "| Dependent foreign keys | %d |\n\n", len(impact.ForeignKeys))
	for _, wmsg := range impact.Warnings {
		fmt.Fprintf(w, "- **Warning:** %s\n", wmsg)
	}
	for _, e := range impact.Errors {
		fmt.Fprintf(w, "- **Error:** %s\n", e)
	}
	for _, e := range impact.FKErrors {
		fmt.Fprintf(w, "- **Blocked (foreign key):** %s\n", e)
	}
	if len(impact.Warnings) > 0 || len(impact.Errors) > 0 || len(impact.FKErrors) > 0 {
		fmt.Fprintln(w)
	}
}

func renderRollbackPlanMarkdown(w io.Writer, sql string, instructions []string) {
	fmt.Fprintf(w, "## Rollback\n\n")
	if sql != "" {
		fmt.Fprintf(w, "```sql\n%s\n```\n\n", sql)
	}
	for _, instr := range instructions {
		fmt.Fprintf(w, "- %s\n", instr)
	}
	fmt.Fprintln(w)
}
