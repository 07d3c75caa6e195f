package safety

import (
	"testing"
	"time"
)

func TestIsInWindowWrapsAroundMidnight(t *testing.T) {
	w := Window{StartHour: 22, EndHour: 2}

	cases := []struct {
		hour int
		want bool
	}{
		{23, true},
		{1, true},
		{2, false},
		{10, false},
		{22, true},
	}
	for _, c := range cases {
		tt := time.Date(2026, 1, 5, c.hour, 0, 0, 0, time.UTC) // Monday
		if got := w.IsInWindow(tt); got != c.want {
			t.Errorf("hour %d: got %v, want %v", c.hour, got, c.want)
		}
	}
}

func TestIsInWindowNormalRange(t *testing.T) {
	w := Window{StartHour: 2, EndHour: 6}
	in := time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC)
	out := time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC)
	if !w.IsInWindow(in) {
		t.Fatalf("expected 03:00 to be in window")
	}
	if w.IsInWindow(out) {
		t.Fatalf("expected 07:00 to be outside window")
	}
}

func TestIsInWindowRespectsDaysOfWeek(t *testing.T) {
	w := Window{StartHour: 0, EndHour: 23, DaysOfWeek: []int{int(time.Saturday), int(time.Sunday)}}
	weekday := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC) // Monday
	weekend := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC) // Saturday
	if w.IsInWindow(weekday) {
		t.Fatalf("expected weekday to be outside window")
	}
	if !w.IsInWindow(weekend) {
		t.Fatalf("expected weekend to be inside window")
	}
}

func TestShouldWaitForWindowWithinMaxWait(t *testing.T) {
	w := Window{StartHour: 22, EndHour: 2}
	now := time.Date(2026, 1, 5, 20, 0, 0, 0, time.UTC)
	decision := w.ShouldWaitForWindow(now, 4*time.Hour)
	if !decision.ShouldWait {
		t.Fatalf("expected to wait for the window")
	}
	if decision.SecondsToWait <= 0 {
		t.Fatalf("expected a positive wait, got %f", decision.SecondsToWait)
	}
}

func TestShouldWaitForWindowTooFarProceedsAnyway(t *testing.T) {
	w := Window{StartHour: 22, EndHour: 2}
	now := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
	decision := w.ShouldWaitForWindow(now, time.Hour)
	if decision.ShouldWait {
		t.Fatalf("expected caller to proceed when the window is too far away")
	}
	if decision.Reason != "maintenance_window_too_far" {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}
}

func TestShouldWaitForWindowAlreadyInWindow(t *testing.T) {
	w := Window{StartHour: 22, EndHour: 2}
	now := time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC)
	decision := w.ShouldWaitForWindow(now, time.Hour)
	if decision.ShouldWait {
		t.Fatalf("expected no wait while already inside the window")
	}
}
