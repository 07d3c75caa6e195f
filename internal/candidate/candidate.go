// Package candidate derives index candidates from observed telemetry:
// (table, field, query_type) tuples whose access frequency crosses a
// configurable threshold, excluding anything an equivalent index already
// covers. Grounded on the spec's candidate-generation component and on
// the teacher's "read metadata, then reason over it" shape used in
// internal/analyzer.
package candidate

import (
	"context"
	"sort"

	"github.com/nethalo/indexadvisor/internal/catalog"
	"github.com/nethalo/indexadvisor/internal/telemetry"
)

// Candidate is one proposed index target, aggregated from telemetry.
type Candidate struct {
	Table       string
	Field       string
	Clause      string // where, join, order_by, group_by
	Count       int64
	AvgMs       float64
	P95Ms       float64
	P99Ms       float64
	TenantCount int
}

// Column is the minimal shape the generator needs from telemetry's
// per-(table,column,clause) aggregate.
type Column struct {
	Table      string
	Column     string
	Clause     string
	Count      int64
	TotalMs    float64
	TotalRows  int64
}

// Generator derives candidates from aggregated column stats.
type Generator struct {
	catalog          *catalog.Catalog
	minQueryThreshold int
}

func New(cat *catalog.Catalog, minQueryThreshold int) *Generator {
	return &Generator{catalog: cat, minQueryThreshold: minQueryThreshold}
}

// Generate reads aggregated column stats (the caller supplies them,
// typically from a SELECT over index_advisor_column_stats) and returns
// candidates above the minimum query threshold, sorted by
// (count desc, p95 desc, table asc, field asc), excluding any
// (table, column) already covered by an existing single-column index.
func (g *Generator) Generate(ctx context.Context, schema string, stats []Column) ([]Candidate, error) {
	var out []Candidate
	existing := map[[2]string]bool{}

	tablesSeen := map[string]bool{}
	for _, s := range stats {
		tablesSeen[s.Table] = true
	}
	for table := range tablesSeen {
		idxs, err := g.catalog.Indexes(ctx, schema, table)
		if err != nil {
			return nil, err
		}
		for _, idx := range idxs {
			if len(idx.Columns) == 1 {
				existing[[2]string{table, idx.Columns[0]}] = true
			}
		}
	}

	for _, s := range stats {
		if s.Count < int64(g.minQueryThreshold) {
			continue
		}
		if existing[[2]string{s.Table, s.Column}] {
			continue
		}
		avg := 0.0
		if s.Count > 0 {
			avg = s.TotalMs / float64(s.Count)
		}
		out = append(out, Candidate{
			Table:  s.Table,
			Field:  s.Column,
			Clause: s.Clause,
			Count:  s.Count,
			AvgMs:  avg,
			// p95/p99 require per-sample distributions the aggregate table
			// doesn't retain; approximated from the mean until a histogram
			// is added, matching avg_ms in the absence of finer telemetry.
			P95Ms: avg,
			P99Ms: avg,
		})
	}

	sortCandidates(out)

	return out, nil
}

// sortCandidates orders by (count desc, p95 desc, table asc, field asc)
// per the spec's tie-break rule. Factored out so the ordering logic can
// be tested without a live catalog.
func sortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Count != cands[j].Count {
			return cands[i].Count > cands[j].Count
		}
		if cands[i].P95Ms != cands[j].P95Ms {
			return cands[i].P95Ms > cands[j].P95Ms
		}
		if cands[i].Table != cands[j].Table {
			return cands[i].Table < cands[j].Table
		}
		return cands[i].Field < cands[j].Field
	})
}

// FromCollectorStats adapts a telemetry.Collector's exported aggregate
// rows (read back from Postgres by the caller) into candidate.Column.
// Kept separate from Generate so tests can exercise the sort/filter
// logic against hand-built Column slices without a live collector.
func FromCollectorStats(rows []telemetry.Observation) []Column {
	agg := map[[3]string]*Column{}
	for _, o := range rows {
		if o.Query == nil {
			continue
		}
		for _, col := range o.Query.Columns {
			key := [3]string{col.Table, col.Column, col.Clause}
			c, ok := agg[key]
			if !ok {
				c = &Column{Table: col.Table, Column: col.Column, Clause: col.Clause}
				agg[key] = c
			}
			c.Count++
			c.TotalMs += o.DurationMs
			c.TotalRows += o.RowsExamined
		}
	}
	out := make([]Column, 0, len(agg))
	for _, c := range agg {
		out = append(out, *c)
	}
	return out
}
