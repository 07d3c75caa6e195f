// Package output renders advisor decisions for a human or a script:
// one advise tick's scored candidates, a schema-evolution preview or
// result, and a point-in-time status snapshot. Grounded on the
// teacher's internal/output package — same Renderer interface and
// format-switched factory, same four renderers (json/markdown/plain/
// lipgloss text) — retargeted from DDL-plan/topology reports to
// index-advisor reports.
package output

import (
	"io"

	"github.com/nethalo/indexadvisor/internal/candidate"
	"github.com/nethalo/indexadvisor/internal/executor"
	"github.com/nethalo/indexadvisor/internal/optimizer"
	"github.com/nethalo/indexadvisor/internal/safety"
	"github.com/nethalo/indexadvisor/internal/schema"
	"github.com/nethalo/indexadvisor/internal/scoring"
)

// CandidateReport bundles one candidate with everything the advisor
// decided about it: the per-algorithm scores, the fused verdict, the
// constraint-optimizer decision, and (when the candidate was actually
// acted on) the executor result.
type CandidateReport struct {
	Candidate candidate.Candidate
	Scores    []scoring.Scoring
	Fusion    scoring.FusionResult
	Decision  optimizer.Decision
	Exec      *executor.Result // nil when the tick only advised, didn't execute
}

// AdviseReport is one full advisor tick: every candidate considered,
// in the order they were ranked.
type AdviseReport struct {
	Schema     string
	Candidates []CandidateReport
	DryRun     bool
}

// SchemaReport wraps a schema-evolution preview or applied result for
// rendering; exactly one of Preview/Result is set.
type SchemaReport struct {
	Preview *schema.Preview
	Result  *schema.Result
}

// StatusReport is a point-in-time snapshot of the advisor's runtime
// state: feature switches, interceptor counters, and the safety gate's
// most recent decision for context.
type StatusReport struct {
	Switches           map[string]bool
	InterceptorMetrics InterceptorMetricsView
	RateLimiter        map[string]safety.Stats
	LastGateDecision   *safety.Decision
	Maintenance        *MaintenanceView
}

// MaintenanceView mirrors maintenance.Report without importing
// internal/maintenance directly, the same way InterceptorMetricsView
// mirrors interceptor.Metrics.
type MaintenanceView struct {
	DatabaseHealthy  bool
	DatabaseLatency  string
	PoolAcquired     int32
	PoolIdle         int32
	PoolMax          int32
	OrphanedFields   []string
	PredictedReindex []string
	Warnings         []string
	Errors           []string
}

// InterceptorMetricsView mirrors interceptor.Metrics without importing
// it directly, keeping the report types free of the atomic-counter
// struct's copy-semantics concerns.
type InterceptorMetricsView struct {
	TotalInterceptions int64
	TotalBlocked       int64
	TotalAnalyzed      int64
	CacheHits          int64
	CacheMisses        int64
	BlockedByReason    map[string]int64
}

// Renderer defines the output interface every format implements.
type Renderer interface {
	RenderAdvise(report AdviseReport)
	RenderSchema(report SchemaReport)
	RenderStatus(report StatusReport)
}

// NewRenderer creates a renderer for the given format.
func NewRenderer(format string, w io.Writer) Renderer {
	switch format {
	case "json":
		return &JSONRenderer{w: w}
	case "markdown":
		return &MarkdownRenderer{w: w}
	case "plain":
		return &PlainRenderer{w: w}
	default:
		return &TextRenderer{w: w}
	}
}
