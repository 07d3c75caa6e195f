// Package scoring implements the five-algorithm ensemble that assigns
// each index candidate a utility score and confidence: a cost/benefit
// heuristic baseline, the CERT cardinality validator, QPG plan guidance,
// the Cortex correlation detector, and the predictive-indexing utility
// predictor. Each is grounded on the matching algorithm in
// original_source/src/algorithms, re-expressed as a Go Scorer behind a
// fixed-order registry per the spec's dynamic-dispatch design note.
package scoring

import (
	"context"

	"github.com/nethalo/indexadvisor/internal/candidate"
)

// Scoring is the result one Scorer produces for one candidate.
type Scoring struct {
	Algorithm  string
	Score      float64 // utility in [0,1]
	Confidence float64 // in [0,1]
	Decision   bool
	Reason     string
	Details    map[string]any
}

// Context carries the shared, per-tick state every scorer may need:
// table sizing, estimated selectivity, recent query volume, and config
// knobs specific to that algorithm.
type Context struct {
	Schema           string
	EstRowCount      int64
	EstSelectivity   float64
	QueriesPerWindow int64
	TableSizeBytes   int64
	ExistingIndexes  int
}

// Scorer is implemented by each of the five algorithms.
type Scorer interface {
	Name() string
	Score(ctx context.Context, c candidate.Candidate, info Context) (Scoring, error)
}

// Registry runs every registered Scorer over a candidate in a fixed
// order, matching the spec's "ensemble is a fold over the registry"
// design note.
type Registry struct {
	scorers []Scorer
}

func NewRegistry(scorers ...Scorer) *Registry {
	return &Registry{scorers: scorers}
}

// RunAll scores c with every registered scorer, skipping (not failing)
// any scorer that errors — a single algorithm's failure must not sink
// the whole candidate's evaluation. Skipped scorers are reported with a
// zero Scoring and the error message in Reason so callers can log it.
func (r *Registry) RunAll(ctx context.Context, c candidate.Candidate, info Context) []Scoring {
	results := make([]Scoring, 0, len(r.scorers))
	for _, s := range r.scorers {
		res, err := s.Score(ctx, c, info)
		if err != nil {
			results = append(results, Scoring{Algorithm: s.Name(), Reason: "error: " + err.Error()})
			continue
		}
		res.Algorithm = s.Name()
		results = append(results, res)
	}
	return results
}
