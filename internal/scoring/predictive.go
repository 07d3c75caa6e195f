package scoring

import (
	"context"
	"math"

	"github.com/nethalo/indexadvisor/internal/candidate"
	"github.com/nethalo/indexadvisor/internal/config"
)

// MLModel is the pluggable tree-regressor slot described in
// SPEC_FULL.md §4.3.5. No Go ML library appears anywhere in the example
// corpus (see DESIGN.md), so this defaults to nil — matching the
// original's own SKLEARN_AVAILABLE degradation path rather than papering
// over the gap with a hand-rolled regressor.
type MLModel interface {
	// Predict returns a utility in [0,1] and a confidence in [0,1] given
	// the five engineered features documented in §4.3.5.
	Predict(features [5]float64) (utility, confidence float64, err error)
}

// HistoricalSource reads past improvement_pct values recorded against a
// (table, field) pair in the mutation log, used by the "historical"
// prediction method.
type HistoricalSource interface {
	PastImprovementPct(ctx context.Context, table, field string) ([]float64, error)
}

// PredictiveScorer fuses three candidate utility estimates in order:
// an ML model (if configured), historical improvement data, and a
// pattern-based weighted blend, matching original_source/src/algorithms
// /predictive_indexing.py's three-method cascade.
type PredictiveScorer struct {
	model      MLModel // nil when unavailable, per design
	historical HistoricalSource
	cfg        config.PredictiveConfig
}

func NewPredictiveScorer(model MLModel, historical HistoricalSource, cfg config.PredictiveConfig) *PredictiveScorer {
	return &PredictiveScorer{model: model, historical: historical, cfg: cfg}
}

func (s *PredictiveScorer) Name() string { return "predictive" }

func (s *PredictiveScorer) Score(ctx context.Context, c candidate.Candidate, info Context) (Scoring, error) {
	if !s.cfg.Enabled {
		return Scoring{Reason: "predictive_disabled", Decision: true, Score: 0.5, Confidence: 0.3}, nil
	}

	if s.cfg.UseMLModel && s.model != nil {
		features := engineerFeatures(c, info)
		utility, confidence, err := s.model.Predict(features)
		if err == nil && confidence > 0.5 {
			return Scoring{
				Score:      clamp01(utility),
				Confidence: confidence,
				Decision:   utility > 0.5,
				Reason:     "ml_model",
			}, nil
		}
	}

	if s.cfg.UseHistoricalData && s.historical != nil {
		past, err := s.historical.PastImprovementPct(ctx, c.Table, c.Field)
		if err == nil && len(past) > 0 {
			avg := mean(past)
			confidence := math.Min(1.0, float64(len(past))/10.0)
			return Scoring{
				Score:      clamp01(avg / 100),
				Confidence: confidence,
				Decision:   avg >= 20,
				Reason:     "historical",
				Details:    map[string]any{"samples": len(past), "avg_improvement_pct": avg},
			}, nil
		}
	}

	return s.patternBased(c, info), nil
}

// patternBased blends five sub-scores per the weights in §4.3.5.
func (s *PredictiveScorer) patternBased(c candidate.Candidate, info Context) Scoring {
	costBenefit := clamp01(float64(c.Count) / 1000.0)
	queryVolume := clamp01(float64(info.QueriesPerWindow) / 10000.0)
	selectivity := selectivitySubScore(info.EstSelectivity)
	tableSize := clamp01(math.Log1p(float64(info.EstRowCount)) / 20.0)
	overhead := clamp01(1 - float64(info.ExistingIndexes)/10.0)

	combined := 0.35*costBenefit + 0.25*queryVolume + 0.20*selectivity + 0.10*tableSize + 0.10*overhead

	return Scoring{
		Score:      clamp01(combined),
		Confidence: 0.5,
		Decision:   combined > 0.5,
		Reason:     "pattern_based",
		Details: map[string]any{
			"cost_benefit": costBenefit,
			"query_volume": queryVolume,
			"selectivity":  selectivity,
			"table_size":   tableSize,
			"overhead":     overhead,
		},
	}
}

// selectivitySubScore is intentionally non-monotone: it peaks in the
// [0.01, 0.1) band. Very low selectivity (near-unique values, e.g. a
// primary key) gains little from an extra index since the planner
// already favors such columns; very high selectivity (few distinct
// values) rarely benefits from indexing at all. Preserved literally
// from original_source per Open Question #1 in DESIGN.md.
func selectivitySubScore(selectivity float64) float64 {
	switch {
	case selectivity < 0.01:
		return 0.3 + selectivity*20 // ramps up toward the peak band
	case selectivity < 0.1:
		return 1.0
	case selectivity < 0.3:
		return 1.0 - (selectivity-0.1)*2.5
	default:
		return clamp01(0.5 - (selectivity-0.3)*0.5)
	}
}

// engineerFeatures builds the five-feature vector the ML slot expects.
func engineerFeatures(c candidate.Candidate, info Context) [5]float64 {
	return [5]float64{
		math.Log1p(float64(c.Count)),
		math.Log1p(float64(info.EstRowCount)) / 20.0,
		info.EstSelectivity,
		math.Log1p(float64(info.QueriesPerWindow)) / 10.0,
		float64(info.ExistingIndexes) / 100.0,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
