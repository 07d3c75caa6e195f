package safety

import (
	"context"
	"fmt"

	"github.com/nethalo/indexadvisor/internal/catalog"
)

// WritePerformance caps how many indexes a single table may carry,
// grounded on original_source/src/write_performance.py's
// can_create_index_for_table and get_index_count_for_table. The
// original's write-overhead estimate (index_count * 0.03, capped at
// 0.5) is kept as a rough heuristic rather than wired to a real
// write-latency sample, since this pack carries no write-latency
// telemetry dimension distinct from internal/telemetry's read-query
// stats.
type WritePerformance struct {
	catalog                *catalog.Catalog
	enabled                bool
	maxIndexesPerTable     int
	warnIndexesPerTable    int
	writeOverheadThreshold float64
}

func NewWritePerformance(cat *catalog.Catalog, enabled bool, maxIndexesPerTable, warnIndexesPerTable int, writeOverheadThreshold float64) *WritePerformance {
	return &WritePerformance{
		catalog:                cat,
		enabled:                enabled,
		maxIndexesPerTable:     maxIndexesPerTable,
		warnIndexesPerTable:    warnIndexesPerTable,
		writeOverheadThreshold: writeOverheadThreshold,
	}
}

// IndexCeilingCheck is the outcome of asking whether another index may
// be created on a table.
type IndexCeilingCheck struct {
	Allowed      bool
	Warning      bool
	CurrentCount int
	MaxIndexes   int
	Reason       string
}

// CanCreateIndex reports whether table has room for another index,
// mirroring can_create_index_for_table's count-then-compare logic.
func (w *WritePerformance) CanCreateIndex(ctx context.Context, schema, table string) (IndexCeilingCheck, error) {
	if !w.enabled {
		return IndexCeilingCheck{Allowed: true}, nil
	}

	count, err := w.catalog.IndexCountForTable(ctx, schema, table)
	if err != nil {
		return IndexCeilingCheck{}, err
	}

	if count >= w.maxIndexesPerTable {
		return IndexCeilingCheck{
			Allowed:      false,
			CurrentCount: count,
			MaxIndexes:   w.maxIndexesPerTable,
			Reason:       fmt.Sprintf("table %s already has %d indexes (max: %d)", table, count, w.maxIndexesPerTable),
		}, nil
	}

	warning := count >= w.warnIndexesPerTable
	reason := ""
	if warning {
		reason = fmt.Sprintf("table %s approaching index limit (%d/%d)", table, count, w.maxIndexesPerTable)
	}
	return IndexCeilingCheck{
		Allowed:      true,
		Warning:      warning,
		CurrentCount: count,
		MaxIndexes:   w.maxIndexesPerTable,
		Reason:       reason,
	}, nil
}

// EstimatedWriteOverhead estimates the fractional write-latency
// overhead a table's existing indexes already impose, used to warn
// when adding yet another index risks degrading write throughput.
// Each index is assumed to add ~3% maintenance overhead, capped at 50%,
// matching the original's heuristic exactly.
func (w *WritePerformance) EstimatedWriteOverhead(indexCount int) float64 {
	overhead := float64(indexCount) * 0.03
	if overhead > 0.5 {
		return 0.5
	}
	return overhead
}

// ExceedsOverheadThreshold reports whether the estimated overhead for
// indexCount indexes exceeds the configured warning threshold.
func (w *WritePerformance) ExceedsOverheadThreshold(indexCount int) bool {
	return w.EstimatedWriteOverhead(indexCount) > w.writeOverheadThreshold
}
