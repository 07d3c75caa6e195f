package maintenance

import (
	"testing"
	"time"
)

func newTestChecker() *Checker {
	return New(nil, nil, nil, nil, "public", time.Minute, 7*24*time.Hour, 50.0)
}

func TestPredictRequiresAtLeastTwoSamples(t *testing.T) {
	c := newTestChecker()
	c.recordSample("idx_orders_customer_id", time.Unix(0, 0), 1000)
	if _, ok := c.predict("idx_orders_customer_id", "orders", 1000); ok {
		t.Fatal("expected predict to refuse with a single sample")
	}
}

func TestPredictLinearGrowth(t *testing.T) {
	c := newTestChecker()
	base := time.Unix(0, 0)
	sizes := []int64{1_000_000, 1_100_000, 1_200_000, 1_300_000, 1_400_000}
	for i, sz := range sizes {
		c.recordSample("idx_orders_customer_id", base.Add(time.Duration(i)*24*time.Hour), sz)
	}

	pred, ok := c.predict("idx_orders_customer_id", "orders", sizes[len(sizes)-1])
	if !ok {
		t.Fatal("expected a prediction with 5 samples")
	}
	if pred.GrowthBytesPerDay <= 0 {
		t.Fatalf("expected positive growth, got %v", pred.GrowthBytesPerDay)
	}
	// 100,000 bytes/day growth over a 7-day window should comfortably
	// exceed the final sample's size.
	if pred.PredictedSizeBytes <= pred.CurrentSizeBytes {
		t.Fatalf("expected predicted size to exceed current size, got %+v", pred)
	}
	if pred.Confidence != "medium" {
		t.Fatalf("expected medium confidence with 5 samples, got %s", pred.Confidence)
	}
}

func TestPredictFlatHistoryYieldsNoGrowth(t *testing.T) {
	c := newTestChecker()
	base := time.Unix(0, 0)
	c.recordSample("idx_static", base, 500)
	c.recordSample("idx_static", base.Add(24*time.Hour), 500)

	pred, ok := c.predict("idx_static", "widgets", 500)
	if !ok {
		t.Fatal("expected a prediction with 2 samples")
	}
	if pred.GrowthBytesPerDay != 0 {
		t.Fatalf("expected zero growth for a flat size history, got %v", pred.GrowthBytesPerDay)
	}
}

func TestRecordSampleBoundsHistoryLength(t *testing.T) {
	c := newTestChecker()
	base := time.Unix(0, 0)
	for i := 0; i < 50; i++ {
		c.recordSample("idx_busy", base.Add(time.Duration(i)*time.Hour), int64(i))
	}
	if got := len(c.history["idx_busy"]); got != 30 {
		t.Fatalf("expected history capped at 30 samples, got %d", got)
	}
}

func TestBloatPercent(t *testing.T) {
	cases := []struct {
		name             string
		current, predict int64
		want             float64
	}{
		{"doubling", 1000, 2000, 100},
		{"no_change", 1000, 1000, 0},
		{"shrinking", 1000, 500, -50},
		{"zero_current_grows", 0, 100, 100},
		{"zero_current_zero_predicted", 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := bloatPercent(tc.current, tc.predict)
			if got != tc.want {
				t.Errorf("bloatPercent(%d, %d) = %v, want %v", tc.current, tc.predict, got, tc.want)
			}
		})
	}
}

func TestHasPrefixMatchesManagedIndexNaming(t *testing.T) {
	if !hasPrefix("idx_orders_customer_id", managedIndexPrefix) {
		t.Error("expected idx_ prefixed names to match")
	}
	if hasPrefix("orders_pkey", managedIndexPrefix) {
		t.Error("expected a primary-key index name not to match idx_ prefix")
	}
}
