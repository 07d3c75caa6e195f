package scoring

import (
	"context"
	"fmt"

	"github.com/nethalo/indexadvisor/internal/candidate"
	"github.com/nethalo/indexadvisor/internal/catalog"
	"github.com/nethalo/indexadvisor/internal/config"
)

// CERTScorer validates a candidate's estimated selectivity against the
// database's true cardinality, grounded on original_source's cardinality
// estimation validator. A candidate whose estimate is far from reality
// is flagged so the fusion step can discount it.
type CERTScorer struct {
	catalog *catalog.Catalog
	cfg     config.CERTConfig
}

func NewCERTScorer(cat *catalog.Catalog, cfg config.CERTConfig) *CERTScorer {
	return &CERTScorer{catalog: cat, cfg: cfg}
}

func (s *CERTScorer) Name() string { return "cert" }

func (s *CERTScorer) Score(ctx context.Context, c candidate.Candidate, info Context) (Scoring, error) {
	if info.EstRowCount == 0 {
		return Scoring{
			Score:      0,
			Confidence: 0,
			Decision:   false,
			Reason:     "empty_table",
			Details:    map[string]any{"is_valid": false},
		}, nil
	}

	totalRows, distinctCount, err := s.catalog.ColumnCardinality(ctx, info.Schema, c.Table, c.Field)
	if err != nil {
		return Scoring{}, fmt.Errorf("cert: cardinality lookup: %w", err)
	}
	if totalRows == 0 {
		return Scoring{
			Score:      0,
			Confidence: 0,
			Decision:   false,
			Reason:     "empty_table",
			Details:    map[string]any{"is_valid": false},
		}, nil
	}

	actualSelectivity := float64(distinctCount) / float64(totalRows)

	estimated := info.EstSelectivity
	if estimated <= 0 {
		estimated = 0.01
	}
	errorPct := abs(actualSelectivity-estimated) / estimated * 100

	isValid := errorPct <= s.cfg.MaxErrorPct
	statisticsStale := errorPct > 2*s.cfg.MaxErrorPct

	confidence := certConfidence(errorPct, s.cfg.MaxErrorPct)

	reason := "valid"
	if statisticsStale {
		reason = "statistics_stale"
	} else if !isValid {
		reason = "selectivity_mismatch"
	}

	return Scoring{
		Score:      clamp01(1 - errorPct/100),
		Confidence: confidence,
		Decision:   isValid,
		Reason:     reason,
		Details: map[string]any{
			"actual_selectivity": actualSelectivity,
			"estimated_selectivity": estimated,
			"error_pct":           errorPct,
			"is_valid":            isValid,
			"statistics_stale":    statisticsStale,
		},
	}, nil
}

// certConfidence is piecewise-linear: 1.0 at zero error, 0.8 at the
// configured threshold, 0.0 at twice the threshold.
func certConfidence(errorPct, maxErrorPct float64) float64 {
	if maxErrorPct <= 0 {
		maxErrorPct = 1
	}
	switch {
	case errorPct <= 0:
		return 1.0
	case errorPct <= maxErrorPct:
		return 1.0 - 0.2*(errorPct/maxErrorPct)
	case errorPct <= 2*maxErrorPct:
		frac := (errorPct - maxErrorPct) / maxErrorPct
		return 0.8 * (1 - frac)
	default:
		return 0.0
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
