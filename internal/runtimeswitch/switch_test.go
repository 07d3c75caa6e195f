package runtimeswitch

import (
	"testing"

	"github.com/nethalo/indexadvisor/internal/config"
)

func newTestRegistry() *Registry {
	return NewRegistry(config.BypassConfig{
		SystemEnabled:           false,
		AutoIndexingEnabled:     true,
		StatsCollectionEnabled:  true,
		ExpressionChecksEnabled: true,
		MutationLoggingEnabled:  true,
	})
}

func TestRequireEnabledHonorsSystemKillSwitch(t *testing.T) {
	r := newTestRegistry()
	r.DisableSystem()
	if r.Snapshot().RequireEnabled("auto_indexing") {
		t.Fatalf("expected auto_indexing to be refused once system is disabled")
	}
}

func TestRequireEnabledHonorsFeatureSwitch(t *testing.T) {
	r := newTestRegistry()
	r.DisableAutoIndexing()
	snap := r.Snapshot()
	if snap.RequireEnabled("auto_indexing") {
		t.Fatalf("expected auto_indexing disabled")
	}
	if !snap.RequireEnabled("stats_collection") {
		t.Fatalf("expected stats_collection unaffected")
	}
}

func TestSnapshotIsImmutableAcrossReload(t *testing.T) {
	r := newTestRegistry()
	old := r.Snapshot()
	r.Reload(config.BypassConfig{SystemEnabled: true})
	if !old.SystemEnabled {
		t.Fatalf("previously taken snapshot must not change when the registry is mutated")
	}
	if r.Snapshot().SystemEnabled {
		t.Fatalf("new snapshot should reflect the disable")
	}
}
