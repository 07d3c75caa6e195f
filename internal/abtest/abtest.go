// Package abtest persists A/B experiment bookkeeping: named experiments
// with two variants and a traffic split, and the per-call duration
// samples recorded against a variant. SPEC_FULL.md §9's Open Question
// on ABExperiment/ABResult is decided here as "persist both, advisor
// does not consume them" — matching the original source's own
// disconnect between the schema it declares and the advisor loop that
// never reads from it (see DESIGN.md). This package exists so a future
// consumer can read ABResult without a migration, not to influence the
// live candidate selection.
package abtest

import (
	"context"
	"math/rand"

	"github.com/nethalo/indexadvisor/internal/dbx"
)

// Variant identifies one arm of an experiment.
type Variant string

const (
	VariantA Variant = "A"
	VariantB Variant = "B"
)

// Experiment is one named A/B test with a traffic split between two
// variants.
type Experiment struct {
	Name          string
	VariantA      string
	VariantB      string
	TrafficSplit  float64 // fraction of traffic routed to VariantA, in (0,1); CreateExperiment replaces other values with 0.5
}

// Store persists experiments and their results to Postgres.
type Store struct {
	pool *dbx.Pool
}

func New(pool *dbx.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the ab_experiments and ab_results tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ab_experiments (
			name TEXT PRIMARY KEY,
			variant_a TEXT NOT NULL,
			variant_b TEXT NOT NULL,
			traffic_split DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return dbx.Classify("ensure ab_experiments schema", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ab_results (
			id BIGSERIAL PRIMARY KEY,
			experiment TEXT NOT NULL REFERENCES ab_experiments(name),
			variant TEXT NOT NULL,
			duration_ms DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return dbx.Classify("ensure ab_results schema", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS ab_results_experiment_idx ON ab_results (experiment, created_at)
	`)
	if err != nil {
		return dbx.Classify("ensure ab_results index", err)
	}
	return nil
}

// CreateExperiment registers a new named experiment. It is an error to
// register a duplicate name — experiments are not mutable once created,
// matching the invariant that "results exist only for an existing
// experiment" (SPEC_FULL.md §3).
func (s *Store) CreateExperiment(ctx context.Context, e Experiment) error {
	if e.TrafficSplit <= 0 || e.TrafficSplit >= 1 {
		e.TrafficSplit = 0.5
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ab_experiments (name, variant_a, variant_b, traffic_split)
		VALUES ($1, $2, $3, $4)
	`, e.Name, e.VariantA, e.VariantB, e.TrafficSplit)
	if err != nil {
		return dbx.Classify("create ab experiment", err)
	}
	return nil
}

// Assign picks a variant for one call under experiment name, weighted by
// its traffic split. Returns an error if the experiment does not exist.
func (s *Store) Assign(ctx context.Context, name string) (Variant, error) {
	var split float64
	err := s.pool.QueryRow(ctx, `SELECT traffic_split FROM ab_experiments WHERE name = $1`, name).Scan(&split)
	if err != nil {
		return "", dbx.Classify("lookup ab experiment", err)
	}
	if rand.Float64() < split {
		return VariantA, nil
	}
	return VariantB, nil
}

// RecordResult appends one duration sample for an experiment/variant.
// The foreign key to ab_experiments enforces the "results exist only
// for an existing experiment" invariant at the database level.
func (s *Store) RecordResult(ctx context.Context, experiment string, variant Variant, durationMs float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ab_results (experiment, variant, duration_ms) VALUES ($1, $2, $3)
	`, experiment, string(variant), durationMs)
	if err != nil {
		return dbx.Classify("record ab result", err)
	}
	return nil
}

// Summary reports count and mean duration per variant for an experiment,
// used by reporting/status surfaces — not by the live advisor loop.
type Summary struct {
	Variant     Variant
	Count       int64
	MeanMs      float64
}

func (s *Store) Summarize(ctx context.Context, experiment string) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT variant, COUNT(*), AVG(duration_ms)
		FROM ab_results
		WHERE experiment = $1
		GROUP BY variant
		ORDER BY variant
	`, experiment)
	if err != nil {
		return nil, dbx.Classify("summarize ab results", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		var variant string
		if err := rows.Scan(&variant, &sm.Count, &sm.MeanMs); err != nil {
			return nil, dbx.Classify("scan ab summary row", err)
		}
		sm.Variant = Variant(variant)
		out = append(out, sm)
	}
	return out, rows.Err()
}
