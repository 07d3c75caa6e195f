package scoring

import (
	"context"

	"github.com/nethalo/indexadvisor/internal/candidate"
	"github.com/nethalo/indexadvisor/internal/config"
)

// IndexTypeFactor scales build cost by index shape: a partial index
// costs less to build than a full composite one.
type IndexTypeFactor float64

const (
	PartialIndexFactor    IndexTypeFactor = 0.6
	ExpressionIndexFactor IndexTypeFactor = 0.8
	StandardIndexFactor   IndexTypeFactor = 1.0
	CompositeIndexFactor  IndexTypeFactor = 1.3
)

// HeuristicScorer is the baseline cost/benefit estimator: cheap to
// compute, always runs first, and anchors the fusion step in §4.3.6.
type HeuristicScorer struct {
	cfg config.AutoIndexerConfig
}

func NewHeuristicScorer(cfg config.AutoIndexerConfig) *HeuristicScorer {
	return &HeuristicScorer{cfg: cfg}
}

func (s *HeuristicScorer) Name() string { return "heuristic" }

func (s *HeuristicScorer) Score(_ context.Context, c candidate.Candidate, info Context) (Scoring, error) {
	factor := StandardIndexFactor

	buildCost := float64(s.cfg.BuildCostPer1000Rows) * float64(info.EstRowCount) / 1000.0 * float64(factor)
	if buildCost <= 0 {
		buildCost = float64(factor)
	}

	extraCostPerQuery := s.cfg.QueryCostPer10000Rows * float64(info.EstRowCount) / 10000.0
	benefit := float64(c.Count) * extraCostPerQuery

	ratio := benefit / buildCost
	improvementPct := 0.0
	if info.EstRowCount > 0 {
		improvementPct = (1 - 1/max1(float64(info.EstRowCount)/max1(float64(c.Count)))) * 100
	}
	if ratio > 1 {
		improvementPct = clampPct(ratio * 10)
	}

	decision := ratio > 1 && improvementPct >= s.cfg.MinImprovementPct

	confidence := 0.5
	if info.QueriesPerWindow >= int64(s.cfg.MinQueryThreshold) {
		confidence = 0.8
	}

	return Scoring{
		Score:      clamp01(ratio / (ratio + 1)),
		Confidence: confidence,
		Decision:   decision,
		Reason:     "cost_benefit_heuristic",
		Details: map[string]any{
			"build_cost":      buildCost,
			"benefit":         benefit,
			"ratio":           ratio,
			"improvement_pct": improvementPct,
		},
	}, nil
}

func max1(f float64) float64 {
	if f < 1 {
		return 1
	}
	return f
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

func clampPct(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return f
}
