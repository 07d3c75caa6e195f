package output

import (
	"encoding/json"
	"io"

	"github.com/nethalo/indexadvisor/internal/schema"
)

// JSONRenderer produces machine-readable JSON output.
type JSONRenderer struct {
	w io.Writer
}

type jsonScore struct {
	Algorithm  string         `json:"algorithm"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
	Decision   bool           `json:"decision"`
	Reason     string         `json:"reason"`
	Details    map[string]any `json:"details,omitempty"`
}

type jsonCandidate struct {
	Table       string  `json:"table"`
	Field       string  `json:"field"`
	Clause      string  `json:"clause"`
	Count       int64   `json:"count"`
	AvgMs       float64 `json:"avg_ms"`
	P95Ms       float64 `json:"p95_ms"`
	P99Ms       float64 `json:"p99_ms"`
	TenantCount int     `json:"tenant_count"`

	Scores   []jsonScore    `json:"scores"`
	Fusion   jsonFusion     `json:"fusion"`
	Decision jsonDecision   `json:"decision"`
	Exec     *jsonExecution `json:"execution,omitempty"`
}

type jsonFusion struct {
	Decision   bool    `json:"decision"`
	Combined   float64 `json:"combined"`
	Confidence float64 `json:"confidence"`
	ReasonTag  string  `json:"reason_tag"`
}

type jsonConstraint struct {
	Satisfied bool    `json:"satisfied"`
	Reason    string  `json:"reason"`
	Score     float64 `json:"score"`
}

type jsonDecision struct {
	Allow       bool                      `json:"allow"`
	Overall     float64                   `json:"overall"`
	Confidence  float64                   `json:"confidence"`
	Reason      string                    `json:"reason"`
	Constraints map[string]jsonConstraint `json:"constraints,omitempty"`
}

type jsonExecution struct {
	Applied     bool   `json:"applied"`
	Skipped     bool   `json:"skipped"`
	IndexName   string `json:"index_name"`
	Attempts    int    `json:"attempts"`
	RollbackSQL string `json:"rollback_sql,omitempty"`
	Error       string `json:"error,omitempty"`
}

type jsonAdviseOutput struct {
	Schema     string          `json:"schema"`
	DryRun     bool            `json:"dry_run"`
	Candidates []jsonCandidate `json:"candidates"`
}

func (r *JSONRenderer) RenderAdvise(report AdviseReport) {
	out := jsonAdviseOutput{Schema: report.Schema, DryRun: report.DryRun}
	for _, cr := range report.Candidates {
		jc := jsonCandidate{
			Table:       cr.Candidate.Table,
			Field:       cr.Candidate.Field,
			Clause:      cr.Candidate.Clause,
			Count:       cr.Candidate.Count,
			AvgMs:       cr.Candidate.AvgMs,
			P95Ms:       cr.Candidate.P95Ms,
			P99Ms:       cr.Candidate.P99Ms,
			TenantCount: cr.Candidate.TenantCount,
			Fusion: jsonFusion{
				Decision:   cr.Fusion.Decision,
				Combined:   cr.Fusion.Combined,
				Confidence: cr.Fusion.Confidence,
				ReasonTag:  cr.Fusion.ReasonTag,
			},
			Decision: jsonDecision{
				Allow:      cr.Decision.Allow,
				Overall:    cr.Decision.Overall,
				Confidence: cr.Decision.Confidence,
				Reason:     cr.Decision.Reason,
			},
		}
		if len(cr.Decision.Constraints) > 0 {
			jc.Decision.Constraints = map[string]jsonConstraint{}
			for name, c := range cr.Decision.Constraints {
				jc.Decision.Constraints[name] = jsonConstraint{Satisfied: c.Satisfied, Reason: c.Reason, Score: c.Score}
			}
		}
		for _, s := range cr.Scores {
			jc.Scores = append(jc.Scores, jsonScore{
				Algorithm:  s.Algorithm,
				Score:      s.Score,
				Confidence: s.Confidence,
				Decision:   s.Decision,
				Reason:     s.Reason,
				Details:    s.Details,
			})
		}
		if cr.Exec != nil {
			je := &jsonExecution{
				Applied:     cr.Exec.Applied,
				Skipped:     cr.Exec.Skipped,
				IndexName:   cr.Exec.IndexName,
				Attempts:    cr.Exec.Attempts,
				RollbackSQL: cr.Exec.RollbackSQL,
			}
			if cr.Exec.Err != nil {
				je.Error = cr.Exec.Err.Error()
			}
			jc.Exec = je
		}
		out.Candidates = append(out.Candidates, jc)
	}

	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

type jsonImpact struct {
	Table           string   `json:"table"`
	Field           string   `json:"field"`
	Kind            string   `json:"kind"`
	AffectedQueries int64    `json:"affected_queries"`
	TenantCount     int64    `json:"tenant_count"`
	AvgDurationMs   float64  `json:"avg_duration_ms"`
	P95DurationMs   float64  `json:"p95_duration_ms"`
	AffectedIndexes int      `json:"affected_indexes"`
	ForeignKeys     int      `json:"foreign_keys"`
	Warnings        []string `json:"warnings,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

type jsonRollbackPlan struct {
	Table        string   `json:"table"`
	Field        string   `json:"field"`
	Kind         string   `json:"kind"`
	RollbackSQL  string   `json:"rollback_sql,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
}

type jsonSchemaOutput struct {
	Table        string           `json:"table"`
	Field        string           `json:"field"`
	Kind         string           `json:"kind"`
	Mode         string           `json:"mode"` // "preview" or "applied"
	Valid        bool             `json:"valid,omitempty"`
	ValidErrors  []string         `json:"validation_errors,omitempty"`
	Impact       jsonImpact       `json:"impact"`
	RollbackPlan jsonRollbackPlan `json:"rollback_plan"`
	Success      bool             `json:"success,omitempty"`
	DroppedIdx   []string         `json:"dropped_indexes,omitempty"`
}

func (r *JSONRenderer) RenderSchema(report SchemaReport) {
	var out jsonSchemaOutput
	switch {
	case report.Preview != nil:
		p := report.Preview
		out = jsonSchemaOutput{
			Table:       p.Table,
			Field:       p.Field,
			Kind:        string(p.Kind),
			Mode:        "preview",
			Valid:       p.Valid,
			ValidErrors: p.Errors,
			Impact:      toJSONImpact(p.Impact),
			RollbackPlan: jsonRollbackPlan{
				Table: p.RollbackPlan.Table, Field: p.RollbackPlan.Field,
				Kind: string(p.RollbackPlan.ChangeKind), RollbackSQL: p.RollbackPlan.RollbackSQL,
				Instructions: p.RollbackPlan.Instructions,
			},
		}
	case report.Result != nil:
		res := report.Result
		out = jsonSchemaOutput{
			Table:   res.Table,
			Field:   res.Field,
			Mode:    "applied",
			Success: res.Success,
			Impact:  toJSONImpact(res.Impact),
			RollbackPlan: jsonRollbackPlan{
				Table: res.RollbackPlan.Table, Field: res.RollbackPlan.Field,
				Kind: string(res.RollbackPlan.ChangeKind), RollbackSQL: res.RollbackPlan.RollbackSQL,
				Instructions: res.RollbackPlan.Instructions,
			},
			DroppedIdx: res.DroppedIndexes,
		}
	}

	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func toJSONImpact(i schema.Impact) jsonImpact {
	return jsonImpact{
		Table:           i.Table,
		Field:           i.Field,
		Kind:            string(i.Kind),
		AffectedQueries: i.AffectedQueries,
		TenantCount:     i.TenantCount,
		AvgDurationMs:   i.AvgDurationMs,
		P95DurationMs:   i.P95DurationMs,
		AffectedIndexes: len(i.AffectedIndexes),
		ForeignKeys:     len(i.ForeignKeys),
		Warnings:        i.Warnings,
		Errors:          append(append([]string{}, i.Errors...), i.FKErrors...),
	}
}

type jsonStatus struct {
	Switches     map[string]bool        `json:"switches"`
	Interceptor  jsonInterceptorMetrics `json:"interceptor"`
	RateLimiter  map[string]jsonRateLimit `json:"rate_limiter,omitempty"`
	GateDecision *jsonGateDecision      `json:"last_gate_decision,omitempty"`
	Maintenance  *jsonMaintenance       `json:"maintenance,omitempty"`
}

type jsonMaintenance struct {
	DatabaseHealthy  bool     `json:"database_healthy"`
	DatabaseLatency  string   `json:"database_latency"`
	PoolAcquired     int32    `json:"pool_acquired"`
	PoolIdle         int32    `json:"pool_idle"`
	PoolMax          int32    `json:"pool_max"`
	OrphanedFields   []string `json:"orphaned_fields,omitempty"`
	PredictedReindex []string `json:"predicted_reindex,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}

type jsonInterceptorMetrics struct {
	TotalInterceptions int64            `json:"total_interceptions"`
	TotalBlocked       int64            `json:"total_blocked"`
	TotalAnalyzed      int64            `json:"total_analyzed"`
	CacheHits          int64            `json:"cache_hits"`
	CacheMisses        int64            `json:"cache_misses"`
	BlockedByReason    map[string]int64 `json:"blocked_by_reason,omitempty"`
}

type jsonRateLimit struct {
	Remaining int    `json:"remaining"`
	ResetIn   string `json:"reset_in"`
	Limit     int    `json:"limit"`
}

type jsonGateDecision struct {
	Allow      bool              `json:"allow"`
	Reason     string            `json:"reason"`
	Checks     map[string]string `json:"checks,omitempty"`
	RetryAfter string            `json:"retry_after,omitempty"`
}

func (r *JSONRenderer) RenderStatus(report StatusReport) {
	out := jsonStatus{
		Switches: report.Switches,
		Interceptor: jsonInterceptorMetrics{
			TotalInterceptions: report.InterceptorMetrics.TotalInterceptions,
			TotalBlocked:       report.InterceptorMetrics.TotalBlocked,
			TotalAnalyzed:      report.InterceptorMetrics.TotalAnalyzed,
			CacheHits:          report.InterceptorMetrics.CacheHits,
			CacheMisses:        report.InterceptorMetrics.CacheMisses,
			BlockedByReason:    report.InterceptorMetrics.BlockedByReason,
		},
	}
	if len(report.RateLimiter) > 0 {
		out.RateLimiter = map[string]jsonRateLimit{}
		for key, s := range report.RateLimiter {
			out.RateLimiter[key] = jsonRateLimit{Remaining: s.Remaining, ResetIn: s.ResetIn.String(), Limit: s.Limit}
		}
	}
	if report.LastGateDecision != nil {
		d := report.LastGateDecision
		out.GateDecision = &jsonGateDecision{
			Allow:      d.Allow,
			Reason:     d.Reason,
			Checks:     d.Checks,
			RetryAfter: d.RetryAfter.String(),
		}
	}
	if mv := report.Maintenance; mv != nil {
		out.Maintenance = &jsonMaintenance{
			DatabaseHealthy:  mv.DatabaseHealthy,
			DatabaseLatency:  mv.DatabaseLatency,
			PoolAcquired:     mv.PoolAcquired,
			PoolIdle:         mv.PoolIdle,
			PoolMax:          mv.PoolMax,
			OrphanedFields:   mv.OrphanedFields,
			PredictedReindex: mv.PredictedReindex,
			Warnings:         mv.Warnings,
			Errors:           mv.Errors,
		}
	}

	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
