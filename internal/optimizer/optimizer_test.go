package optimizer

import "testing"

func baseInput() Input {
	return Input{
		Table:                 "orders",
		Tenant:                "acme",
		EstSizeMB:              10,
		EstQueryTimeMs:         50,
		ImprovementPct:         40,
		EstWriteOverhead:       0.1,
		ReadRatio:              0.9,
		CurrentTableIdxCount:   2,
		CurrentTenantIdxCount:  5,
		CurrentTotalStorageMB:  100,
		MaxTotalStorageMB:      10000,
		CurrentTenantStorageMB: 50,
		MaxTenantStorageMB:     1000,
		MaxQueryTimeMs:         200,
		MinImprovementPct:      20,
		MaxWriteOverhead:       0.3,
		MaxIndexesPerTable:     10,
		MaxIndexesPerTenant:    50,
	}
}

func TestEvaluateAllowsFeasibleCandidate(t *testing.T) {
	o := New(true, 0.5)
	d := o.Evaluate(nil, baseInput())
	if !d.Allow {
		t.Fatalf("expected allow=true for a feasible candidate, got %+v", d)
	}
}

func TestEvaluateBlocksOverStorageBudget(t *testing.T) {
	o := New(true, 0.5)
	in := baseInput()
	in.EstSizeMB = 20000
	d := o.Evaluate(nil, in)
	if d.Allow {
		t.Fatalf("expected storage budget to block, got %+v", d)
	}
	if d.Constraints["storage"].Satisfied {
		t.Fatalf("expected storage constraint violated")
	}
}

func TestEvaluateBlocksOverTableIndexCap(t *testing.T) {
	o := New(true, 0.5)
	in := baseInput()
	in.CurrentTableIdxCount = 10
	d := o.Evaluate(nil, in)
	if d.Allow {
		t.Fatalf("expected table index cap to block, got %+v", d)
	}
}

func TestEvaluateDisabledDegradesGracefully(t *testing.T) {
	o := New(false, 0.5)
	d := o.Evaluate(nil, Input{})
	if !d.Allow || d.Reason != "constraint_optimization_disabled" {
		t.Fatalf("expected graceful degraded fallback, got %+v", d)
	}
}

func TestRankSortsByOverallDescendingAndDropsUnallowed(t *testing.T) {
	cands := []RankedCandidate{
		{ID: "a", Decision: Decision{Allow: true, Overall: 0.6}},
		{ID: "b", Decision: Decision{Allow: false, Overall: 0.9}},
		{ID: "c", Decision: Decision{Allow: true, Overall: 0.8}},
	}
	ranked := Rank(cands)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 allowed candidates, got %d", len(ranked))
	}
	if ranked[0].ID != "c" || ranked[1].ID != "a" {
		t.Fatalf("expected order [c,a], got %+v", ranked)
	}
}
