package scoring

import (
	"context"
	"fmt"
	"sort"

	"github.com/nethalo/indexadvisor/internal/candidate"
	"github.com/nethalo/indexadvisor/internal/config"
	"github.com/nethalo/indexadvisor/internal/dbx"
)

// ColumnPair is a candidate composite-index suggestion surfaced by
// correlation analysis.
type ColumnPair struct {
	Col1, Col2 string
	Score      float64
	Priority   string // high, medium
}

// CortexScorer samples up to SampleSize rows of the candidate's single
// column and scores the share of repeated values (1 - distinct/sampled).
// It builds no per-pair histogram across columns and produces no
// ColumnPair or composite-index suggestion itself.
type CortexScorer struct {
	pool *dbx.Pool
	cfg  config.CortexConfig
}

func NewCortexScorer(pool *dbx.Pool, cfg config.CortexConfig) *CortexScorer {
	return &CortexScorer{pool: pool, cfg: cfg}
}

func (s *CortexScorer) Name() string { return "cortex" }

func (s *CortexScorer) Score(ctx context.Context, c candidate.Candidate, info Context) (Scoring, error) {
	if !s.cfg.Enabled {
		return Scoring{Reason: "cortex_disabled", Decision: true, Score: 0.5, Confidence: 0.3}, nil
	}

	sampleSize := s.cfg.SampleSize
	if sampleSize <= 0 || sampleSize > 10000 {
		sampleSize = 10000
	}

	var totalSamples, uniquePairs int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(*), count(DISTINCT %s) FROM (
			SELECT %s FROM %s LIMIT %d
		) sampled
	`, quoteIdent(c.Field), quoteIdent(c.Field), quoteIdent(c.Table), sampleSize)).Scan(&totalSamples, &uniquePairs)
	if err != nil {
		return Scoring{}, fmt.Errorf("cortex: sampling: %w", err)
	}

	if totalSamples < int64(s.cfg.MinCorrelationSamples) {
		// Matches the original's "no score, not an error" contract: too
		// few samples to say anything meaningful.
		return Scoring{Reason: "insufficient_samples", Decision: false, Score: 0, Confidence: 0}, nil
	}

	coOccurrence := coOccurrenceScore(totalSamples, uniquePairs)
	correlated := coOccurrence >= s.cfg.CorrelationThreshold

	priority := "medium"
	if coOccurrence > 0.8 {
		priority = "high"
	}

	reason := "not_correlated"
	if correlated {
		reason = "correlated"
	}

	return Scoring{
		Score:      coOccurrence,
		Confidence: 0.6,
		Decision:   correlated,
		Reason:     reason,
		Details: map[string]any{
			"co_occurrence": coOccurrence,
			"priority":      priority,
			"total_samples": totalSamples,
		},
	}, nil
}

// coOccurrenceScore is 1 - unique_pairs/total_samples, clamped to [0,1]:
// the more repeated value combinations, the higher the correlation
// signal.
func coOccurrenceScore(total, unique int64) float64 {
	if total == 0 {
		return 0
	}
	return clamp01(1 - float64(unique)/float64(total))
}

// MergeCompositeSuggestions merges Cortex pairs into an existing list of
// composite-index suggestions by column-set equality. A matching entry
// is kept once and takes the Cortex pair's Score and Priority when that
// score is higher; the result is sorted by Score descending.
func MergeCompositeSuggestions(existing []ColumnPair, cortexPairs []ColumnPair) []ColumnPair {
	byKey := map[[2]string]int{}
	for i, e := range existing {
		byKey[pairKey(e.Col1, e.Col2)] = i
	}
	for _, p := range cortexPairs {
		key := pairKey(p.Col1, p.Col2)
		if i, ok := byKey[key]; ok {
			if p.Score > existing[i].Score {
				existing[i].Score = p.Score
				existing[i].Priority = p.Priority
			}
			continue
		}
		existing = append(existing, p)
		byKey[key] = len(existing) - 1
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].Score > existing[j].Score })
	return existing
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}
