package safety

import (
	"testing"
	"time"
)

func TestCPUThrottleBlocksAboveThreshold(t *testing.T) {
	c := NewCPUThrottle(80, time.Minute, time.Second)
	fakeNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fakeNow }

	samples := []cpuSample{
		{idle: 0, total: 0},
		{idle: 10, total: 100}, // 90% utilization
	}
	i := 0
	c.sample = func() (cpuSample, bool) {
		s := samples[i]
		if i < len(samples)-1 {
			i++
		}
		return s, true
	}

	blocked, _, _ := c.Check()
	if blocked {
		t.Fatalf("first sample establishes a baseline and should not block")
	}

	fakeNow = fakeNow.Add(2 * time.Second)
	blocked, reason, cooldown := c.Check()
	if !blocked {
		t.Fatalf("expected throttle to block at 90%% utilization")
	}
	if reason != "cpu_above_threshold" {
		t.Fatalf("unexpected reason: %s", reason)
	}
	if cooldown <= 0 {
		t.Fatalf("expected a positive cooldown")
	}
}

func TestCPUThrottleStaysInCooldown(t *testing.T) {
	c := NewCPUThrottle(50, time.Minute, time.Second)
	fakeNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fakeNow }

	samples := []cpuSample{
		{idle: 0, total: 0},
		{idle: 0, total: 100}, // 100% utilization
	}
	i := 0
	c.sample = func() (cpuSample, bool) {
		s := samples[i]
		if i < len(samples)-1 {
			i++
		}
		return s, true
	}

	c.Check()
	fakeNow = fakeNow.Add(2 * time.Second)
	blocked, reason, _ := c.Check()
	if !blocked || reason != "cpu_above_threshold" {
		t.Fatalf("expected a block on the hot sample")
	}

	fakeNow = fakeNow.Add(5 * time.Second)
	blocked, reason, remaining := c.Check()
	if !blocked || reason != "cpu_cooldown_active" {
		t.Fatalf("expected to remain in cooldown, got blocked=%v reason=%s", blocked, reason)
	}
	if remaining <= 0 {
		t.Fatalf("expected positive remaining cooldown")
	}
}

func TestCPUThrottleFailsOpenWhenUnsampleable(t *testing.T) {
	c := NewCPUThrottle(50, time.Minute, time.Second)
	c.sample = func() (cpuSample, bool) { return cpuSample{}, false }

	blocked, _, _ := c.Check()
	if blocked {
		t.Fatalf("expected fail-open behavior when /proc/stat cannot be read")
	}
}
