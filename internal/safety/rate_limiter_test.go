package safety

import (
	"testing"
	"time"
)

func TestLimiterAllowsUpToMaxRequests(t *testing.T) {
	l := NewLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		ok, _ := l.IsAllowed("tenant-a", 1)
		if !ok {
			t.Fatalf("request %d should have been allowed", i)
		}
	}
	ok, retryAfter := l.IsAllowed("tenant-a", 1)
	if ok {
		t.Fatalf("4th request should have been denied")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected a positive retry-after, got %f", retryAfter)
	}
}

func TestLimiterResetsAfterWindow(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	fakeNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fakeNow }

	ok, _ := l.IsAllowed("k", 1)
	if !ok {
		t.Fatalf("first request should be allowed")
	}
	ok, _ = l.IsAllowed("k", 1)
	if ok {
		t.Fatalf("second request within window should be denied")
	}

	fakeNow = fakeNow.Add(2 * time.Minute)
	ok, _ = l.IsAllowed("k", 1)
	if !ok {
		t.Fatalf("request after window elapses should be allowed")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	ok1, _ := l.IsAllowed("a", 1)
	ok2, _ := l.IsAllowed("b", 1)
	if !ok1 || !ok2 {
		t.Fatalf("distinct keys should not share a bucket")
	}
}

func TestLimiterResetClearsBucket(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	l.IsAllowed("a", 1)
	l.Reset("a")
	ok, _ := l.IsAllowed("a", 1)
	if !ok {
		t.Fatalf("expected bucket to be replenished after Reset")
	}
}

func TestLimiterCostGreaterThanOne(t *testing.T) {
	l := NewLimiter(5, time.Minute)
	ok, _ := l.IsAllowed("a", 5)
	if !ok {
		t.Fatalf("expected exactly-at-capacity request to be allowed")
	}
	ok, _ = l.IsAllowed("a", 1)
	if ok {
		t.Fatalf("expected bucket to be exhausted")
	}
}
