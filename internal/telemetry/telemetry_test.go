package telemetry

import (
	"testing"

	"github.com/nethalo/indexadvisor/internal/config"
	"github.com/nethalo/indexadvisor/internal/parser"
	"github.com/nethalo/indexadvisor/internal/runtimeswitch"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	switches := runtimeswitch.NewRegistry(config.BypassConfig{
		SystemEnabled:          false,
		StatsCollectionEnabled: true,
	})
	return New(nil, zap.NewNop(), switches, 0, 4)
}

func TestRecordAggregatesColumnStats(t *testing.T) {
	c := newTestCollector(t)
	q := &parser.Query{
		Tables:  []string{"orders"},
		Columns: []parser.ColumnRef{{Table: "orders", Column: "customer_id", Clause: "where"}},
	}
	c.Record(Observation{Query: q, DurationMs: 12})
	c.Record(Observation{Query: q, DurationMs: 8})

	c.mu.Lock()
	st := c.stats[columnKey{Table: "orders", Column: "customer_id", Clause: "where"}]
	c.mu.Unlock()

	if st == nil || st.Count != 2 {
		t.Fatalf("expected 2 observations recorded, got %+v", st)
	}
	if c.QueryCount("orders") != 2 {
		t.Fatalf("QueryCount(orders) = %d, want 2", c.QueryCount("orders"))
	}
}

func TestRecordRingBufferOverwritesOldest(t *testing.T) {
	c := newTestCollector(t)
	for i := 0; i < 10; i++ {
		c.Record(Observation{})
	}
	c.mu.Lock()
	n := len(c.buf)
	c.mu.Unlock()
	if n != c.maxBuf {
		t.Fatalf("buffer length = %d, want capped at %d", n, c.maxBuf)
	}
}

func TestRecordNoOpWhenStatsCollectionDisabled(t *testing.T) {
	switches := runtimeswitch.NewRegistry(config.BypassConfig{SystemEnabled: false, StatsCollectionEnabled: false})
	c := New(nil, zap.NewNop(), switches, 0, 4)
	c.Record(Observation{Query: &parser.Query{Tables: []string{"orders"}}})
	if c.QueryCount("orders") != 0 {
		t.Fatalf("expected no recording while stats collection disabled")
	}
}
