// Package safety implements the admission-control layer that sits in
// front of every DDL the mutation executor and schema-evolution
// component want to run: the maintenance window, per-class rate
// limiters, a CPU throttle, the storage budget, and the write-
// performance ceiling. Grounded on original_source/src/
// maintenance_window.py, rate_limiter.py, storage_budget.py, and
// write_performance.py.
package safety

import (
	"time"
)

// Window defines a recurring maintenance window in wall-clock time,
// grounded on MaintenanceWindow in original_source's maintenance_window.py.
// DaysOfWeek is compared against Go's time.Weekday numbering (Sunday=0).
// internal/config passes the configured days through unchanged, with no
// conversion from any other numbering.
type Window struct {
	StartHour  int
	EndHour    int
	DaysOfWeek []int // time.Weekday values; empty means "disabled" (§4.5 policy: treat as always-open)
}

// IsInWindow reports whether t falls inside the maintenance window,
// handling both the normal case (start <= end) and the wrap-around case
// (e.g. 22 -> 02).
func (w Window) IsInWindow(t time.Time) bool {
	if !w.dayAllowed(t.Weekday()) {
		return false
	}
	hour := t.Hour()
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

func (w Window) dayAllowed(d time.Weekday) bool {
	if len(w.DaysOfWeek) == 0 {
		return true
	}
	for _, allowed := range w.DaysOfWeek {
		if time.Weekday(allowed) == d {
			return true
		}
	}
	return false
}

// SecondsUntil returns how many seconds until the next maintenance
// window begins, or 0 if t is already inside one.
func (w Window) SecondsUntil(t time.Time) float64 {
	if w.IsInWindow(t) {
		return 0
	}
	next := time.Date(t.Year(), t.Month(), t.Day(), w.StartHour, 0, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	for i := 0; i < 8 && !w.dayAllowed(next.Weekday()); i++ {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(t).Seconds()
}

// WaitDecision is the outcome of asking whether an operation should wait
// for the maintenance window before proceeding.
type WaitDecision struct {
	ShouldWait     bool
	SecondsToWait  float64
	Reason         string
}

// ShouldWaitForWindow mirrors should_wait_for_window: if already in the
// window, proceed immediately; if the wait would exceed maxWait,
// proceed anyway (policy choice documented in spec §4.5 — "if ≤
// max_wait_hours, caller must wait, else proceed"); otherwise the caller
// should wait SecondsToWait before retrying.
func (w Window) ShouldWaitForWindow(t time.Time, maxWait time.Duration) WaitDecision {
	if w.IsInWindow(t) {
		return WaitDecision{ShouldWait: false, Reason: "in_window"}
	}
	secs := w.SecondsUntil(t)
	if time.Duration(secs*float64(time.Second)) > maxWait {
		return WaitDecision{ShouldWait: false, SecondsToWait: 0, Reason: "maintenance_window_too_far"}
	}
	return WaitDecision{ShouldWait: true, SecondsToWait: secs, Reason: "waiting_for_window"}
}
