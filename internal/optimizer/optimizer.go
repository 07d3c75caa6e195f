// Package optimizer applies the constraint checks that turn scored
// candidates into a feasible, ranked subset of indexes to actually
// create: storage budget, estimated query/write performance, workload
// balance, and per-tenant/per-table index caps. Grounded on
// original_source's constraint_optimizer.py and its documented
// degraded-fallback contract.
package optimizer

import (
	"context"
	"sort"
)

// ConstraintResult is what each constraint check returns.
type ConstraintResult struct {
	Satisfied bool
	Reason    string
	Score     float64 // in [0,1]
}

// Input bundles everything a candidate needs evaluated against the
// optimizer's five constraints.
type Input struct {
	Table              string
	Tenant             string
	EstSizeMB          float64
	EstQueryTimeMs      float64
	ImprovementPct     float64
	EstWriteOverhead   float64
	ReadRatio          float64
	CurrentTableIdxCount int
	CurrentTenantIdxCount int

	CurrentTotalStorageMB  float64
	MaxTotalStorageMB      float64
	CurrentTenantStorageMB float64
	MaxTenantStorageMB     float64
	MaxQueryTimeMs         float64
	MinImprovementPct      float64
	MaxWriteOverhead       float64
	MaxIndexesPerTable     int
	MaxIndexesPerTenant    int
}

// Decision is the optimizer's final verdict for one candidate.
type Decision struct {
	Allow      bool
	Overall    float64
	Confidence float64
	Reason     string
	Constraints map[string]ConstraintResult
}

// Optimizer evaluates candidates against the constraint set and ranks
// the feasible ones.
type Optimizer struct {
	enabled         bool
	minScoreThreshold float64
}

func New(enabled bool, minScoreThreshold float64) *Optimizer {
	if minScoreThreshold <= 0 {
		minScoreThreshold = 0.5
	}
	return &Optimizer{enabled: enabled, minScoreThreshold: minScoreThreshold}
}

// Evaluate applies all five constraints to in and returns the
// selection decision. When the optimizer is disabled, it degrades
// gracefully rather than fail — matching
// optimize_index_with_constraints's documented fallback tuple exactly.
func (o *Optimizer) Evaluate(_ context.Context, in Input) Decision {
	if !o.enabled {
		return Decision{
			Allow:      true,
			Overall:    0.5,
			Confidence: 0.5,
			Reason:     "constraint_optimization_disabled",
		}
	}

	storage := storageConstraint(in)
	performance := performanceConstraint(in)
	workload := workloadConstraint(in)
	tenant := tenantCapsConstraint(in)

	constraints := map[string]ConstraintResult{
		"storage":     storage,
		"performance": performance,
		"workload":    workload,
		"tenant_caps": tenant,
	}

	allSatisfied := storage.Satisfied && performance.Satisfied && workload.Satisfied && tenant.Satisfied

	overall := 0.2*storage.Score + 0.4*performance.Score + 0.2*workload.Score + 0.2*tenant.Score

	allow := allSatisfied && overall >= o.minScoreThreshold

	reason := "selected"
	if !allSatisfied {
		reason = firstViolation(constraints)
	} else if overall < o.minScoreThreshold {
		reason = "below_min_score_threshold"
	}

	return Decision{
		Allow:       allow,
		Overall:     overall,
		Confidence:  overall,
		Reason:      reason,
		Constraints: constraints,
	}
}

func firstViolation(constraints map[string]ConstraintResult) string {
	// Deterministic order matches the table in SPEC_FULL.md §4.4.
	for _, name := range []string{"storage", "performance", "workload", "tenant_caps"} {
		if !constraints[name].Satisfied {
			return name + "_constraint_violated: " + constraints[name].Reason
		}
	}
	return "unknown"
}

func storageConstraint(in Input) ConstraintResult {
	totalBlocked := in.MaxTotalStorageMB > 0 && in.CurrentTotalStorageMB+in.EstSizeMB > in.MaxTotalStorageMB
	tenantBlocked := in.MaxTenantStorageMB > 0 && in.CurrentTenantStorageMB+in.EstSizeMB > in.MaxTenantStorageMB

	var currentUsagePct float64
	if in.MaxTotalStorageMB > 0 {
		currentUsagePct = in.CurrentTotalStorageMB / in.MaxTotalStorageMB
	}

	return ConstraintResult{
		Satisfied: !totalBlocked && !tenantBlocked,
		Reason:    storageReason(totalBlocked, tenantBlocked),
		Score:     clamp01(1 - currentUsagePct),
	}
}

func storageReason(totalBlocked, tenantBlocked bool) string {
	switch {
	case totalBlocked:
		return "exceeds_total_storage_budget"
	case tenantBlocked:
		return "exceeds_tenant_storage_budget"
	default:
		return "within_budget"
	}
}

func performanceConstraint(in Input) ConstraintResult {
	tooSlow := in.MaxQueryTimeMs > 0 && in.EstQueryTimeMs > in.MaxQueryTimeMs
	tooLittleImprovement := in.ImprovementPct < in.MinImprovementPct

	var timeScore float64
	if in.MaxQueryTimeMs > 0 {
		timeScore = 1 - in.EstQueryTimeMs/in.MaxQueryTimeMs
	} else {
		timeScore = 1
	}
	score := (clamp01(in.ImprovementPct/100) + clamp01(timeScore)) / 2

	reason := "acceptable_performance"
	if tooSlow {
		reason = "estimated_query_time_exceeds_max"
	} else if tooLittleImprovement {
		reason = "improvement_below_minimum"
	}

	return ConstraintResult{
		Satisfied: !tooSlow && !tooLittleImprovement,
		Reason:    reason,
		Score:     clamp01(score),
	}
}

func workloadConstraint(in Input) ConstraintResult {
	overBudget := in.MaxWriteOverhead > 0 && in.EstWriteOverhead > in.MaxWriteOverhead && in.ReadRatio < 0.5

	var overheadScore float64
	if in.MaxWriteOverhead > 0 {
		overheadScore = 1 - in.EstWriteOverhead/in.MaxWriteOverhead
	} else {
		overheadScore = 1
	}
	score := (clamp01(in.ReadRatio) + clamp01(overheadScore)) / 2

	reason := "workload_balanced"
	if overBudget {
		reason = "write_overhead_too_high_for_read_ratio"
	}

	return ConstraintResult{
		Satisfied: !overBudget,
		Reason:    reason,
		Score:     clamp01(score),
	}
}

func tenantCapsConstraint(in Input) ConstraintResult {
	tableBlocked := in.MaxIndexesPerTable > 0 && in.CurrentTableIdxCount >= in.MaxIndexesPerTable
	tenantBlocked := in.MaxIndexesPerTenant > 0 && in.CurrentTenantIdxCount >= in.MaxIndexesPerTenant

	var tableRemaining, tenantRemaining float64 = 1, 1
	if in.MaxIndexesPerTable > 0 {
		tableRemaining = clamp01(1 - float64(in.CurrentTableIdxCount)/float64(in.MaxIndexesPerTable))
	}
	if in.MaxIndexesPerTenant > 0 {
		tenantRemaining = clamp01(1 - float64(in.CurrentTenantIdxCount)/float64(in.MaxIndexesPerTenant))
	}

	reason := "within_caps"
	switch {
	case tableBlocked:
		reason = "table_index_cap_reached"
	case tenantBlocked:
		reason = "tenant_index_cap_reached"
	}

	return ConstraintResult{
		Satisfied: !tableBlocked && !tenantBlocked,
		Reason:    reason,
		Score:     (tableRemaining + tenantRemaining) / 2,
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// RankedCandidate pairs an arbitrary identifier with its optimizer
// decision, for sorting the selected set.
type RankedCandidate struct {
	ID       string
	Decision Decision
}

// Rank sorts allowed candidates by Overall score descending, dropping
// any not allowed.
func Rank(cands []RankedCandidate) []RankedCandidate {
	var allowed []RankedCandidate
	for _, c := range cands {
		if c.Decision.Allow {
			allowed = append(allowed, c)
		}
	}
	sort.Slice(allowed, func(i, j int) bool {
		return allowed[i].Decision.Overall > allowed[j].Decision.Overall
	})
	return allowed
}
