// Package telemetry buffers observed query executions in memory and
// periodically flushes aggregated statistics to Postgres, so the
// advisor's statistics tables stay close to current without writing on
// every single query. Grounded on the spec's telemetry ingestion
// component; the ring buffer + ticker-driven flush follows the same
// goroutine-plus-channel shape the teacher uses for its connection
// health poller.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nethalo/indexadvisor/internal/dbx"
	"github.com/nethalo/indexadvisor/internal/parser"
	"github.com/nethalo/indexadvisor/internal/runtimeswitch"
	"go.uber.org/zap"
)

// Observation is one recorded query execution.
type Observation struct {
	Query        *parser.Query
	DurationMs   float64
	RowsExamined int64
	RowsReturned int64
	ObservedAt   time.Time
}

// columnKey aggregates observations at the (table, column, clause) grain.
type columnKey struct {
	Table  string
	Column string
	Clause string
}

type columnStats struct {
	Count       int64
	TotalMs     float64
	TotalRows   int64
}

// Collector buffers observations and flushes aggregated counters on a
// fixed interval.
type Collector struct {
	mu      sync.Mutex
	buf     []Observation
	maxBuf  int
	stats   map[columnKey]*columnStats
	queryCount map[string]int64 // table -> query count, for min-query-threshold checks

	pool     *dbx.Pool
	logger   *zap.Logger
	switches *runtimeswitch.Registry

	flushInterval time.Duration
	stop          chan struct{}
	stopped       chan struct{}
}

func New(pool *dbx.Pool, logger *zap.Logger, switches *runtimeswitch.Registry, flushInterval time.Duration, maxBuf int) *Collector {
	if maxBuf <= 0 {
		maxBuf = 10000
	}
	if flushInterval <= 0 {
		flushInterval = time.Minute
	}
	return &Collector{
		maxBuf:        maxBuf,
		stats:         make(map[columnKey]*columnStats),
		queryCount:    make(map[string]int64),
		pool:          pool,
		logger:        logger,
		switches:      switches,
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// EnsureSchema creates the telemetry aggregate table.
func (c *Collector) EnsureSchema(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS index_advisor_column_stats (
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			clause TEXT NOT NULL,
			observed_count BIGINT NOT NULL DEFAULT 0,
			total_duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_rows_examined BIGINT NOT NULL DEFAULT 0,
			last_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (table_name, column_name, clause)
		)
	`)
	if err != nil {
		return dbx.Classify("ensure telemetry schema", err)
	}
	return nil
}

// Record buffers one observation in memory. It never blocks on I/O.
func (c *Collector) Record(o Observation) {
	if !c.switches.Snapshot().StatsCollectionEnabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) >= c.maxBuf {
		// Ring-buffer overwrite: drop the oldest observation rather than
		// block the caller or grow unbounded.
		copy(c.buf, c.buf[1:])
		c.buf[len(c.buf)-1] = o
	} else {
		c.buf = append(c.buf, o)
	}

	if o.Query == nil {
		return
	}
	for _, t := range o.Query.Tables {
		c.queryCount[t]++
	}
	for _, col := range o.Query.Columns {
		key := columnKey{Table: col.Table, Column: col.Column, Clause: col.Clause}
		st, ok := c.stats[key]
		if !ok {
			st = &columnStats{}
			c.stats[key] = st
		}
		st.Count++
		st.TotalMs += o.DurationMs
		st.TotalRows += o.RowsExamined
	}
}

// QueryCount returns the number of observed queries touching table since
// the collector started, used by the candidate generator's
// min-query-threshold gate.
func (c *Collector) QueryCount(table string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryCount[table]
}

// Run starts the periodic flush loop. It blocks until ctx is canceled or
// Stop is called, so callers should run it in its own goroutine.
func (c *Collector) Run(ctx context.Context) {
	defer close(c.stopped)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flush(context.Background())
			return
		case <-c.stop:
			c.flush(context.Background())
			return
		case <-ticker.C:
			c.flush(ctx)
		}
	}
}

// Stop signals Run to flush and exit, and waits for it to finish.
func (c *Collector) Stop() {
	close(c.stop)
	<-c.stopped
}

// Stat is one aggregated (table, column, clause) row read back from the
// persisted telemetry table, shaped for the candidate generator's
// consumption without creating an import cycle between the two
// packages (candidate already imports telemetry for Observation/Query
// shapes it does not need here).
type Stat struct {
	Table     string
	Column    string
	Clause    string
	Count     int64
	TotalMs   float64
	TotalRows int64
}

// LoadWindow reads the persisted column-stats table, restricted to rows
// touched since since, for the candidate generator's sliding-window
// aggregation (§4.2). A zero since loads the full table.
func (c *Collector) LoadWindow(ctx context.Context, since time.Time) ([]Stat, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT table_name, column_name, clause, observed_count, total_duration_ms, total_rows_examined
		FROM index_advisor_column_stats
		WHERE last_seen >= $1
		ORDER BY observed_count DESC
	`, since)
	if err != nil {
		return nil, dbx.Classify("load telemetry window", err)
	}
	defer rows.Close()

	var out []Stat
	for rows.Next() {
		var s Stat
		if err := rows.Scan(&s.Table, &s.Column, &s.Clause, &s.Count, &s.TotalMs, &s.TotalRows); err != nil {
			return nil, dbx.Classify("scan telemetry stat", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *Collector) flush(ctx context.Context) {
	c.mu.Lock()
	snapshot := c.stats
	c.stats = make(map[columnKey]*columnStats)
	c.buf = nil
	c.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	err := c.pool.WithTx(ctx, func(tx pgx.Tx) error {
		for key, st := range snapshot {
			if _, err := tx.Exec(ctx, `
				INSERT INTO index_advisor_column_stats
					(table_name, column_name, clause, observed_count, total_duration_ms, total_rows_examined, last_seen)
				VALUES ($1, $2, $3, $4, $5, $6, now())
				ON CONFLICT (table_name, column_name, clause) DO UPDATE SET
					observed_count = index_advisor_column_stats.observed_count + EXCLUDED.observed_count,
					total_duration_ms = index_advisor_column_stats.total_duration_ms + EXCLUDED.total_duration_ms,
					total_rows_examined = index_advisor_column_stats.total_rows_examined + EXCLUDED.total_rows_examined,
					last_seen = now()
			`, key.Table, key.Column, key.Clause, st.Count, st.TotalMs, st.TotalRows); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Error("telemetry flush failed", zap.Error(err))
	}
}
