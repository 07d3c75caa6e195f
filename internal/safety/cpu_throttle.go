package safety

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// cpuSample is one /proc/stat "cpu " line's jiffy counters, used to
// compute a delta-based utilization percentage between two samples.
type cpuSample struct {
	idle  uint64
	total uint64
}

// readCPUSample parses the aggregate "cpu " line of /proc/stat. No
// system-metrics library (gopsutil etc.) appears anywhere in the
// example pack, so this reads the kernel's own accounting directly —
// the closest stdlib analogue of the original's external monitoring
// collaborator (see DESIGN.md's stdlib-exception note).
func readCPUSample() (cpuSample, bool) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuSample{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return cpuSample{}, false
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuSample{}, false
	}

	var total uint64
	var idle uint64
	for i, tok := range fields[1:] {
		v, err := strconv.ParseUint(tok, 10, 64)
		if err != nil {
			continue
		}
		total += v
		if i == 3 { // idle column
			idle = v
		}
	}
	return cpuSample{idle: idle, total: total}, true
}

// CPUThrottle tracks recent CPU utilization and refuses DDL while the
// machine is hot, grounded on spec §4.5's "CPU throttle" gate. There is
// no single original_source module for this check (write_performance.py
// folds CPU awareness into its own monitoring calls rather than a
// standalone class); it's implemented here following the same
// "threshold + cooldown" shape as the maintenance window.
type CPUThrottle struct {
	mu              sync.Mutex
	threshold       float64
	cooldown        time.Duration
	monitoringEvery time.Duration
	sample          func() (cpuSample, bool)
	now             func() time.Time

	cooledUntil   time.Time
	last          cpuSample
	haveLast      bool
	lastSampledAt time.Time
	cachedPct     float64
	haveCached    bool
}

// NewCPUThrottle builds a throttle that blocks DDL once utilization
// exceeds threshold (0-100), backing off for cooldown and resampling
// /proc/stat at most once per monitoringWindow.
func NewCPUThrottle(threshold float64, cooldown, monitoringWindow time.Duration) *CPUThrottle {
	return &CPUThrottle{
		threshold:       threshold,
		cooldown:        cooldown,
		monitoringEvery: monitoringWindow,
		sample:          readCPUSample,
		now:             time.Now,
	}
}

// recentUtilizationPct computes utilization since the last sample was
// taken, resampling at most once per monitoringEvery.
func (c *CPUThrottle) recentUtilizationPct() (float64, bool) {
	now := c.now()
	if c.haveLast && now.Sub(c.lastSampledAt) < c.monitoringEvery {
		return c.cachedPct, c.haveCached
	}

	cur, ok := c.sample()
	if !ok {
		return 0, false
	}
	prev, hadPrev := c.last, c.haveLast
	c.last = cur
	c.haveLast = true
	c.lastSampledAt = now

	if !hadPrev {
		c.haveCached = false
		return 0, false
	}

	deltaTotal := cur.total - prev.total
	deltaIdle := cur.idle - prev.idle
	if deltaTotal == 0 {
		c.haveCached = false
		return 0, false
	}
	pct := 100 * (1 - float64(deltaIdle)/float64(deltaTotal))
	c.cachedPct, c.haveCached = pct, true
	return pct, true
}

// Check reports whether DDL should be throttled right now: blocked=true
// means the caller must wait (or defer), with reason explaining why.
func (c *CPUThrottle) Check() (blocked bool, reason string, cooldownRemaining time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Before(c.cooledUntil) {
		return true, "cpu_cooldown_active", c.cooledUntil.Sub(now)
	}

	pct, ok := c.recentUtilizationPct()
	if !ok {
		// Can't sample (e.g. non-Linux, or first call) — fail open.
		return false, "", 0
	}
	if pct > c.threshold {
		c.cooledUntil = now.Add(c.cooldown)
		return true, "cpu_above_threshold", c.cooldown
	}
	return false, "", 0
}
