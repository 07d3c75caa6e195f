// Package interceptor implements proactive query blocking: before a
// query runs, its EXPLAIN plan is analyzed and compared against cost
// and shape thresholds so an expensive sequential scan or a runaway
// join never reaches the database. Grounded on original_source/src/
// query_interceptor.py.
package interceptor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/nethalo/indexadvisor/internal/audit"
	"github.com/nethalo/indexadvisor/internal/config"
	"github.com/nethalo/indexadvisor/internal/dbx"
	"github.com/nethalo/indexadvisor/internal/runtimeswitch"
	"github.com/nethalo/indexadvisor/internal/safety"
)

// BlockReason tags why a query was refused, mirroring the original's
// string reason codes — also used as the MutationLogEntry kind's
// auditable detail, not the kind itself (that is always QueryBlocked).
type BlockReason string

const (
	ReasonBlacklisted      BlockReason = "BLACKLISTED"
	ReasonWhitelisted      BlockReason = "WHITELISTED"
	ReasonRateLimited      BlockReason = "RATE_LIMIT_EXCEEDED"
	ReasonCostTooHigh      BlockReason = "QUERY_COST_TOO_HIGH"
	ReasonSeqScanExpensive BlockReason = "SEQUENTIAL_SCAN_TOO_EXPENSIVE"
)

// BlockedError is the control-flow error intercept_query raises when a
// query must not run.
type BlockedError struct {
	Reason  BlockReason
	Message string
	Details map[string]any
}

func (e *BlockedError) Error() string { return e.Message }

// PlanAnalysis is the fast (non-ANALYZE) EXPLAIN summary a query's plan
// yields.
type PlanAnalysis struct {
	TotalCost      float64
	NodeType       string
	HasSeqScan     bool
	HasIndexScan   bool
	HasNestedLoop  bool
	EstimatedRows  int64
	Recommendations []string
}

// TableThresholds overrides the global cost thresholds for one table.
type TableThresholds struct {
	MaxQueryCost   float64
	MaxSeqScanCost float64
}

// Metrics is a snapshot of interception counters, used by the status
// CLI command.
type Metrics struct {
	TotalInterceptions int64
	TotalBlocked       int64
	TotalAnalyzed      int64
	CacheHits          int64
	CacheMisses        int64
	BlockedByReason    map[string]int64
}

// Interceptor analyzes and optionally blocks queries before execution.
type Interceptor struct {
	pool     *dbx.Pool
	audit    *audit.Log
	switches *runtimeswitch.Registry
	limiter  *safety.Limiter
	logger   *zap.Logger
	cfg      config.InterceptorConfig

	planCache *expirable.LRU[string, PlanAnalysis]

	listMu    sync.RWMutex
	blacklist []string
	whitelist []string

	thresholdMu sync.RWMutex
	thresholds  map[string]TableThresholds

	totalInterceptions atomic.Int64
	totalBlocked        atomic.Int64
	totalAnalyzed        atomic.Int64
	cacheHits           atomic.Int64
	cacheMisses          atomic.Int64

	reasonMu sync.Mutex
	reasons  map[string]int64

	invalidateCh chan CacheInvalidation
	cacheTableMu sync.Mutex
	cacheTables  map[string]string // planCache key -> the table it was cached against
}

// CacheInvalidation is one (table, field) change event published by the
// executor (§4.6) or schema evolution (§4.8) when a mutation may have
// made a cached plan analysis stale. Grounded on SPEC_FULL.md §9's
// "event publication (a bounded chan CacheInvalidation) rather than a
// back-reference, avoiding ownership cycles" design note.
type CacheInvalidation struct {
	Table string
	Field string
}

// invalidationQueueSize bounds the cache-invalidation channel; per §4.7
// the scheme is lazy-consistent and may coalesce bursts, so a full
// channel drops the event rather than blocking the publisher.
const invalidationQueueSize = 256

func New(pool *dbx.Pool, auditLog *audit.Log, switches *runtimeswitch.Registry, limiter *safety.Limiter, logger *zap.Logger, cfg config.InterceptorConfig) *Interceptor {
	var cache *expirable.LRU[string, PlanAnalysis]
	if cfg.EnablePlanCache {
		size := cfg.PlanCacheMaxSize
		if size <= 0 {
			size = 1000
		}
		cache = expirable.NewLRU[string, PlanAnalysis](size, nil, cfg.PlanCacheTTL)
	}
	return &Interceptor{
		pool:         pool,
		audit:        auditLog,
		switches:     switches,
		limiter:      limiter,
		logger:       logger,
		cfg:          cfg,
		planCache:    cache,
		thresholds:   make(map[string]TableThresholds),
		reasons:      make(map[string]int64),
		invalidateCh: make(chan CacheInvalidation, invalidationQueueSize),
		cacheTables:  make(map[string]string),
	}
}

// PublishInvalidation queues a (table, field) change event for the plan
// cache to drop on its next opportunity to drain. Called by the
// executor after CreateIndex/DropIndex and by the schema evolver after
// a successful DDL, per §4.7's cache-invalidation contract. A full
// queue drops the event; the interceptor fails open toward re-analyzing
// rather than blocking the caller on a backed-up channel.
func (i *Interceptor) PublishInvalidation(table, field string) {
	select {
	case i.invalidateCh <- CacheInvalidation{Table: table, Field: field}:
	default:
		i.logger.Debug("cache invalidation queue full, dropping event",
			zap.String("table", table), zap.String("field", field))
	}
}

// drainInvalidations applies every queued invalidation event without
// blocking. The interceptor runs synchronously on the calling
// goroutine of each query (§5), so invalidation is drained opportunistically
// here rather than by a dedicated background goroutine.
func (i *Interceptor) drainInvalidations() {
	for {
		select {
		case ev := <-i.invalidateCh:
			i.invalidateTable(ev.Table)
		default:
			return
		}
	}
}

// invalidateTable drops every cached plan analysis whose query was last
// cached against table.
func (i *Interceptor) invalidateTable(table string) {
	if i.planCache == nil {
		return
	}
	i.cacheTableMu.Lock()
	defer i.cacheTableMu.Unlock()
	for key, t := range i.cacheTables {
		if t == table {
			i.planCache.Remove(key)
			delete(i.cacheTables, key)
		}
	}
}

// recordCacheTable remembers which table a cached plan analysis belongs
// to, so a later invalidation event can find it without scanning query
// text again.
func (i *Interceptor) recordCacheTable(cacheKey, query string) {
	table := extractTableName(query)
	if table == "" {
		return
	}
	i.cacheTableMu.Lock()
	i.cacheTables[cacheKey] = table
	i.cacheTableMu.Unlock()
}

// SetTableThreshold installs a per-table override of the global cost
// thresholds, used by operators tuning a specific hot table.
func (i *Interceptor) SetTableThreshold(table string, t TableThresholds) {
	i.thresholdMu.Lock()
	defer i.thresholdMu.Unlock()
	i.thresholds[table] = t
}

func (i *Interceptor) tableThreshold(table string) (TableThresholds, bool) {
	i.thresholdMu.RLock()
	defer i.thresholdMu.RUnlock()
	t, ok := i.thresholds[table]
	return t, ok
}

// SetLists replaces the blacklist/whitelist pattern sets. A pattern
// matches if it appears as a literal substring of the lowercased query
// or as a case-insensitive regex, exactly like _check_query_lists.
func (i *Interceptor) SetLists(blacklist, whitelist []string) {
	i.listMu.Lock()
	defer i.listMu.Unlock()
	i.blacklist = blacklist
	i.whitelist = whitelist
}

// normalizeSignature collapses whitespace, strips comments, and
// normalizes placeholders, mirroring _normalize_query_signature.
func normalizeSignature(query string, paramsHash string) string {
	normalized := whitespaceRe.ReplaceAllString(strings.TrimSpace(query), " ")
	normalized = placeholderRe.ReplaceAllString(normalized, "?")
	normalized = lineCommentRe.ReplaceAllString(normalized, "")
	normalized = blockCommentRe.ReplaceAllString(normalized, "")
	if paramsHash != "" {
		normalized = normalized + "|params:" + paramsHash
	}
	return normalized
}

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	placeholderRe = regexp.MustCompile(`\$\d+`)
	lineCommentRe = regexp.MustCompile(`(?m)--.*$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	fromTableRe    = regexp.MustCompile(`(?i)\bFROM\s+"?(\w+)"?`)
	limitRe        = regexp.MustCompile(`(?i)\bLIMIT\s+\d+\b`)
	joinRe         = regexp.MustCompile(`(?i)\bJOIN\b`)
)

func planCacheKey(query string) string {
	sig := normalizeSignature(query, "")
	sum := md5.Sum([]byte(sig))
	return hex.EncodeToString(sum[:])
}

func extractTableName(query string) string {
	m := fromTableRe.FindStringSubmatch(query)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// checkLists reports a block/whitelist verdict if query matches either
// list, with the blacklist taking precedence, matching
// _check_query_lists's ordering.
func (i *Interceptor) checkLists(query string) (matched bool, block bool, reason BlockReason) {
	i.listMu.RLock()
	defer i.listMu.RUnlock()

	lower := strings.ToLower(query)
	for _, pattern := range i.blacklist {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true, true, ReasonBlacklisted
		}
		if re, err := regexp.Compile("(?i)" + pattern); err == nil && re.MatchString(lower) {
			return true, true, ReasonBlacklisted
		}
	}
	for _, pattern := range i.whitelist {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true, false, ReasonWhitelisted
		}
		if re, err := regexp.Compile("(?i)" + pattern); err == nil && re.MatchString(lower) {
			return true, false, ReasonWhitelisted
		}
	}
	return false, false, ""
}

// explainPlanNode matches the subset of Postgres's EXPLAIN (FORMAT
// JSON) field names this fast analysis needs.
type explainPlanNode struct {
	NodeType  string            `json:"Node Type"`
	TotalCost float64           `json:"Total Cost"`
	PlanRows  float64           `json:"Plan Rows"`
	Plans     []explainPlanNode `json:"Plans"`
}

type explainDoc struct {
	Plan explainPlanNode `json:"Plan"`
}

func hasSeqScan(n explainPlanNode) bool {
	if n.NodeType == "Seq Scan" {
		return true
	}
	for _, c := range n.Plans {
		if hasSeqScan(c) {
			return true
		}
	}
	return false
}

func hasIndexScan(n explainPlanNode) bool {
	if strings.Contains(n.NodeType, "Index") || n.NodeType == "Bitmap Heap Scan" {
		return true
	}
	for _, c := range n.Plans {
		if hasIndexScan(c) {
			return true
		}
	}
	return false
}

func hasNestedLoop(n explainPlanNode) bool {
	if n.NodeType == "Nested Loop" {
		return true
	}
	for _, c := range n.Plans {
		if hasNestedLoop(c) {
			return true
		}
	}
	return false
}

// AnalyzePlanFast runs EXPLAIN (FORMAT JSON) without executing the
// query, consulting and populating the plan cache when enabled.
// Mirrors analyze_query_plan_fast; a failure to analyze returns
// (PlanAnalysis{}, false, nil) so the caller can fail open.
func (i *Interceptor) AnalyzePlanFast(ctx context.Context, query string) (PlanAnalysis, bool, error) {
	i.drainInvalidations()

	var cacheKey string
	if i.planCache != nil {
		cacheKey = planCacheKey(query)
		if cached, ok := i.planCache.Get(cacheKey); ok {
			i.cacheHits.Add(1)
			return cached, true, nil
		}
		i.cacheMisses.Add(1)
	}

	raw, err := i.pool.Explain(ctx, query)
	if err != nil {
		i.logger.Debug("plan analysis failed", zap.Error(err))
		return PlanAnalysis{}, false, nil
	}

	var docs []explainDoc
	if err := json.Unmarshal([]byte(raw), &docs); err != nil || len(docs) == 0 {
		return PlanAnalysis{}, false, nil
	}
	node := docs[0].Plan

	analysis := PlanAnalysis{
		TotalCost:     node.TotalCost,
		NodeType:      node.NodeType,
		HasSeqScan:    hasSeqScan(node),
		HasIndexScan:  hasIndexScan(node),
		HasNestedLoop: hasNestedLoop(node),
		EstimatedRows: int64(node.PlanRows),
	}
	if analysis.HasSeqScan {
		analysis.Recommendations = append(analysis.Recommendations,
			fmt.Sprintf("sequential scan detected (cost: %.2f); consider an index on the filtered columns", analysis.TotalCost))
	}
	if analysis.HasNestedLoop {
		analysis.Recommendations = append(analysis.Recommendations, "nested loop join detected; consider indexes on the join columns")
	}

	i.totalAnalyzed.Add(1)
	if i.planCache != nil {
		i.planCache.Add(cacheKey, analysis)
		i.recordCacheTable(cacheKey, query)
	}
	return analysis, true, nil
}

// isSimpleQuery fast-paths a SELECT ... LIMIT n without a JOIN, which
// the original treats as cheap enough to skip analysis entirely.
func isSimpleQuery(query string) bool {
	upper := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(upper, "SELECT") && limitRe.MatchString(upper) && !joinRe.MatchString(upper)
}

// ShouldBlock decides whether query must be refused, returning the
// reason and details. tenant is used for rate limiting and audit
// attribution; it may be "".
func (i *Interceptor) ShouldBlock(ctx context.Context, query, tenant string) (block bool, reason BlockReason, details map[string]any) {
	if matched, shouldBlock, r := i.checkLists(query); matched {
		return shouldBlock, r, map[string]any{
			"message":       fmt.Sprintf("query %s", strings.ToLower(string(r))),
			"query_preview": preview(query, i.cfg.QueryPreviewLength),
		}
	}

	if i.cfg.EnableRateLimiting && i.limiter != nil {
		key := tenant
		if key == "" {
			key = "global"
		}
		ok, retryAfter := i.limiter.IsAllowed(key, 1)
		if !ok {
			return true, ReasonRateLimited, map[string]any{
				"retry_after_seconds": retryAfter,
				"tenant":              tenant,
				"message":             fmt.Sprintf("query rate limit exceeded, retry after %.1fs", retryAfter),
			}
		}
	}

	if !i.cfg.EnableBlocking {
		return false, "", nil
	}

	if isSimpleQuery(query) {
		return false, "", map[string]any{"skipped_analysis": true, "reason": "simple_query"}
	}

	analysis, ok, _ := i.AnalyzePlanFast(ctx, query)
	if !ok {
		return false, "", nil // fail open: analysis unavailable
	}

	table := extractTableName(query)
	maxQueryCost, maxSeqScanCost := i.cfg.MaxQueryCost, i.cfg.MaxSeqScanCost
	if table != "" {
		if t, ok := i.tableThreshold(table); ok {
			maxQueryCost, maxSeqScanCost = t.MaxQueryCost, t.MaxSeqScanCost
		}
	}

	baseDetails := map[string]any{
		"total_cost":      analysis.TotalCost,
		"has_seq_scan":    analysis.HasSeqScan,
		"has_nested_loop": analysis.HasNestedLoop,
		"node_type":       analysis.NodeType,
		"table_name":      table,
	}

	if analysis.TotalCost > maxQueryCost {
		baseDetails["threshold"] = maxQueryCost
		baseDetails["message"] = fmt.Sprintf("query cost (%.2f) exceeds maximum allowed (%.2f)", analysis.TotalCost, maxQueryCost)
		return true, ReasonCostTooHigh, baseDetails
	}

	if analysis.HasSeqScan && analysis.TotalCost > maxSeqScanCost {
		baseDetails["threshold"] = maxSeqScanCost
		baseDetails["message"] = fmt.Sprintf("sequential scan detected with cost (%.2f) exceeding threshold (%.2f)", analysis.TotalCost, maxSeqScanCost)
		return true, ReasonSeqScanExpensive, baseDetails
	}

	return false, "", baseDetails
}

func preview(query string, n int) string {
	if n <= 0 {
		n = 200
	}
	if len(query) <= n {
		return query
	}
	return query[:n]
}

// Intercept runs ShouldBlock and, if the query must be refused, logs
// the block to the audit trail and returns a *BlockedError. Callers
// execute the query only if the returned error is nil.
func (i *Interceptor) Intercept(ctx context.Context, query, tenant string) error {
	if !i.switches.Snapshot().RequireEnabled("interceptor") {
		return nil
	}

	i.totalInterceptions.Add(1)

	block, reason, details := i.ShouldBlock(ctx, query, tenant)
	if !block {
		return nil
	}

	i.totalBlocked.Add(1)
	i.reasonMu.Lock()
	i.reasons[string(reason)]++
	i.reasonMu.Unlock()

	if i.audit != nil {
		_ = i.audit.Record(ctx, audit.Entry{
			Kind:     audit.QueryBlocked,
			Tenant:   tenant,
			Severity: audit.Warning,
			Details:  details,
		})
	}

	msg, _ := details["message"].(string)
	if msg == "" {
		msg = fmt.Sprintf("query blocked: %s", reason)
	}
	return &BlockedError{Reason: reason, Message: msg, Details: details}
}

// SafetyScore computes a 0.0 (very unsafe) to 1.0 (very safe) score for
// query without blocking it, for monitoring/status use, mirroring
// get_query_safety_score.
func (i *Interceptor) SafetyScore(ctx context.Context, query string) (score float64, status string) {
	analysis, ok, _ := i.AnalyzePlanFast(ctx, query)
	if !ok {
		return 0.5, "UNKNOWN"
	}

	score = 1.0
	if analysis.TotalCost > i.cfg.MaxQueryCost {
		score = 0.0
	} else if analysis.TotalCost > i.cfg.MaxQueryCost*0.5 {
		score *= 0.5
	}
	if analysis.HasSeqScan {
		if analysis.TotalCost > i.cfg.MaxSeqScanCost {
			score = 0.0
		} else {
			score *= 0.7
		}
	}
	if analysis.HasNestedLoop {
		score *= 0.8
	}

	switch {
	case score < i.cfg.SafetyScoreUnsafeAt:
		status = "UNSAFE"
	case score < i.cfg.SafetyScoreWarnAt:
		status = "WARNING"
	default:
		status = "SAFE"
	}
	return score, status
}

// Metrics returns a snapshot of interception counters.
func (i *Interceptor) Metrics() Metrics {
	i.reasonMu.Lock()
	reasons := make(map[string]int64, len(i.reasons))
	for k, v := range i.reasons {
		reasons[k] = v
	}
	i.reasonMu.Unlock()

	return Metrics{
		TotalInterceptions: i.totalInterceptions.Load(),
		TotalBlocked:       i.totalBlocked.Load(),
		TotalAnalyzed:      i.totalAnalyzed.Load(),
		CacheHits:          i.cacheHits.Load(),
		CacheMisses:        i.cacheMisses.Load(),
		BlockedByReason:    reasons,
	}
}
