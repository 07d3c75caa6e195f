package scoring

import (
	"context"
	"testing"

	"github.com/nethalo/indexadvisor/internal/candidate"
	"github.com/nethalo/indexadvisor/internal/config"
)

func TestHeuristicScorerRecommendsWhenBenefitExceedsCost(t *testing.T) {
	s := NewHeuristicScorer(config.AutoIndexerConfig{
		BuildCostPer1000Rows:  1.0,
		QueryCostPer10000Rows: 50.0,
		MinImprovementPct:     5,
		MinQueryThreshold:     10,
	})
	c := candidate.Candidate{Table: "orders", Field: "customer_id", Count: 5000}
	info := Context{EstRowCount: 100000, QueriesPerWindow: 5000}

	res, err := s.Score(context.Background(), c, info)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !res.Decision {
		t.Fatalf("expected a create decision for high query volume, got %+v", res)
	}
	if res.Confidence != 0.8 {
		t.Fatalf("expected high confidence above MinQueryThreshold, got %v", res.Confidence)
	}
}

func TestCERTConfidencePiecewiseLinear(t *testing.T) {
	cases := []struct {
		errorPct float64
		want     float64
	}{
		{0, 1.0},
		{50, 0.8},
		{100, 0.0},
	}
	for _, tc := range cases {
		got := certConfidence(tc.errorPct, 50)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("certConfidence(%v, 50) = %v, want %v", tc.errorPct, got, tc.want)
		}
	}
}

func TestWalkPlanFlagsDetectsSeqScanWithFilter(t *testing.T) {
	node := planNode{
		NodeType:  "Seq Scan",
		TotalCost: 50,
		PlanRows:  10,
		Filter:    "(status = 'open'::text)",
	}
	flags := walkPlanFlags(node, 0, 3)
	var found bool
	for _, f := range flags {
		if f.Kind == "sequential_scan_with_filter" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sequential_scan_with_filter flag, got %+v", flags)
	}
}

func TestWalkPlanFlagsDetectsCartesianProduct(t *testing.T) {
	node := planNode{
		NodeType:  "Nested Loop",
		TotalCost: 2000,
		PlanRows:  20000,
	}
	flags := walkPlanFlags(node, 0, 3)
	var found bool
	for _, f := range flags {
		if f.Kind == "potential_cartesian_product" && f.Severity == "high" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected potential_cartesian_product flag, got %+v", flags)
	}
}

func TestMergeCompositeSuggestionsAnnotatesInsteadOfDuplicating(t *testing.T) {
	existing := []ColumnPair{{Col1: "a", Col2: "b", Score: 0.5, Priority: "medium"}}
	merged := MergeCompositeSuggestions(existing, []ColumnPair{{Col1: "b", Col2: "a", Score: 0.9, Priority: "high"}})
	if len(merged) != 1 {
		t.Fatalf("expected merge by column-set equality, got %d entries: %+v", len(merged), merged)
	}
	if merged[0].Score != 0.9 || merged[0].Priority != "high" {
		t.Fatalf("expected annotated entry to take the higher score, got %+v", merged[0])
	}
}

func TestSelectivitySubScorePeaksInLowBand(t *testing.T) {
	low := selectivitySubScore(0.001)
	mid := selectivitySubScore(0.05)
	high := selectivitySubScore(0.5)
	if !(mid > low && mid > high) {
		t.Fatalf("expected peak in [0.01,0.1) band: low=%v mid=%v high=%v", low, mid, high)
	}
}

func TestFuseReportsMLOverride(t *testing.T) {
	heuristic := Scoring{Score: 0.3, Confidence: 0.8, Decision: false}
	predictive := Scoring{Score: 0.9, Confidence: 0.9, Decision: true}
	res := Fuse(heuristic, predictive, 0.5)
	if !res.Decision {
		t.Fatalf("expected fused decision to favor high predictive score")
	}
	if res.ReasonTag != "ml_overrode_to_create" {
		t.Fatalf("ReasonTag = %q, want ml_overrode_to_create", res.ReasonTag)
	}
}

func TestFuseUnavailableWhenPredictiveHasNoConfidence(t *testing.T) {
	heuristic := Scoring{Score: 0.9, Confidence: 0.9, Decision: true}
	predictive := Scoring{Score: 0, Confidence: 0, Decision: false}
	res := Fuse(heuristic, predictive, 0.3)
	if res.ReasonTag != "ml_unavailable_heuristic_only" {
		t.Fatalf("ReasonTag = %q, want ml_unavailable_heuristic_only", res.ReasonTag)
	}
}
