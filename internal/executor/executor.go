// Package executor performs the mutations the advisor decides to make:
// creating an index, and nothing else destructive without an explicit
// caller opt-in. Every mutation goes through the safety gate, is
// retried with exponential backoff on transient failure, and is
// recorded to the audit trail whether it succeeds or not. Grounded on
// original_source/src/index_retry.py for the retry envelope and on
// internal/mysql's escapeIdentifier idiom (re-expressed for Postgres
// double-quoted identifiers) for safe DDL construction.
package executor

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nethalo/indexadvisor/internal/audit"
	"github.com/nethalo/indexadvisor/internal/catalog"
	"github.com/nethalo/indexadvisor/internal/config"
	"github.com/nethalo/indexadvisor/internal/dbx"
	"github.com/nethalo/indexadvisor/internal/runtimeswitch"
	"github.com/nethalo/indexadvisor/internal/safety"
	"github.com/nethalo/indexadvisor/internal/version"
)

// quoteIdent double-quotes a Postgres identifier, doubling any embedded
// quote — the Postgres analogue of internal/mysql's backtick escaping.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Plan describes one index to create.
type Plan struct {
	Schema       string
	Table        string
	Fields       []string
	IndexType    string // "btree" (default), "gin", "gist", "hash", "brin"
	Name         string // auto-generated from table+fields when empty
	Concurrently bool
	Tenant       string
	EstimatedMB  float64
}

// indexName derives a deterministic, convention-following name
// (idx_<table>_<field1>_<field2>...) so internal/catalog's
// IndexCountForTable LIKE 'idx_%' filter always finds advisor-created
// indexes.
func (p Plan) indexName() string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("idx_%s_%s", p.Table, strings.Join(p.Fields, "_"))
}

// Result reports what happened when a Plan was executed.
type Result struct {
	Applied     bool
	Skipped     bool // already existed; not an error
	IndexName   string
	Attempts    int
	RollbackSQL string
	Err         error
}

// CacheInvalidator publishes a (table, field) change event to the query
// interceptor's plan cache. Kept as a narrow interface rather than an
// import of internal/interceptor, per SPEC_FULL.md §9's "event
// publication... rather than a back-reference" design note — this
// package never needs to know the interceptor exists beyond this method.
type CacheInvalidator interface {
	PublishInvalidation(table, field string)
}

// Executor applies Plans against a live database, subject to the
// runtime kill switches and the safety gate.
type Executor struct {
	pool        *dbx.Pool
	catalog     *catalog.Catalog
	audit       *audit.Log
	versions    *version.Store
	gate        *safety.Gate
	switches    *runtimeswitch.Registry
	logger      *zap.Logger
	retry       config.IndexRetryConfig
	invalidator CacheInvalidator

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// New constructs an Executor. invalidator may be nil, in which case
// index mutations never publish a cache-invalidation event (useful in
// tests that don't wire an interceptor).
func New(pool *dbx.Pool, cat *catalog.Catalog, auditLog *audit.Log, versions *version.Store, gate *safety.Gate, switches *runtimeswitch.Registry, logger *zap.Logger, retry config.IndexRetryConfig, invalidator CacheInvalidator) *Executor {
	return &Executor{
		pool:        pool,
		catalog:     cat,
		audit:       auditLog,
		versions:    versions,
		gate:        gate,
		switches:    switches,
		logger:      logger,
		retry:       retry,
		invalidator: invalidator,
		keyLocks:    make(map[string]*sync.Mutex),
	}
}

// publishInvalidation notifies the interceptor's plan cache that table
// has changed, if an invalidator is wired.
func (e *Executor) publishInvalidation(table string, fields []string) {
	if e.invalidator == nil {
		return
	}
	if len(fields) == 0 {
		e.invalidator.PublishInvalidation(table, "")
		return
	}
	for _, f := range fields {
		e.invalidator.PublishInvalidation(table, f)
	}
}

// lockFor returns (creating if necessary) the in-process mutex guarding
// concurrent mutation attempts against the same table, and the
// deterministic advisory-lock key Postgres-side mutual exclusion uses.
func (e *Executor) lockFor(table string) (*sync.Mutex, int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.keyLocks[table]
	if !ok {
		l = &sync.Mutex{}
		e.keyLocks[table] = l
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte("indexadvisor:" + table))
	return l, int64(h.Sum64())
}

// CreateIndex applies plan, retrying transient failures with
// exponential backoff per calculate_retry_delay's formula:
// min(initial_delay * backoff^attempt, max_delay). Non-retryable
// errors and safety-gate refusals fail immediately.
func (e *Executor) CreateIndex(ctx context.Context, plan Plan) Result {
	if !e.switches.Snapshot().RequireEnabled("auto_indexing") {
		return Result{Err: &dbx.SafetyRefusalError{Gate: "auto_indexing", Reason: "feature disabled"}}
	}

	mu, advisoryKey := e.lockFor(plan.Table)
	if !mu.TryLock() {
		return Result{Err: &dbx.SafetyRefusalError{Gate: "ddl_lock", Reason: "another mutation on this table is in progress; deferred"}}
	}
	defer mu.Unlock()

	var acquired bool
	if err := e.pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", advisoryKey).Scan(&acquired); err != nil {
		return Result{Err: dbx.Classify("acquire advisory lock", err)}
	}
	if !acquired {
		return Result{Err: &dbx.SafetyRefusalError{Gate: "ddl_lock", Reason: "another session holds the advisory lock for this table; deferred"}}
	}
	defer func() {
		_, _ = e.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryKey)
	}()

	name := plan.indexName()

	exists, err := e.catalog.IndexExists(ctx, plan.Schema, name)
	if err != nil {
		return Result{Err: err}
	}
	if exists {
		return Result{Skipped: true, IndexName: name, RollbackSQL: dropIndexSQL(plan.Schema, name)}
	}

	if e.gate != nil {
		decision := e.gate.CheckIndexCreation(ctx, plan.Schema, plan.Table, plan.Tenant, plan.EstimatedMB)
		if !decision.Allow {
			e.recordFailure(ctx, plan, name, 0, fmt.Errorf("%s", decision.Reason))
			return Result{Err: &dbx.SafetyRefusalError{Gate: "safety_gate", Reason: decision.Reason}}
		}
	}

	stmt := buildCreateIndexSQL(plan, name)

	maxAttempts := 1
	if e.retry.Enabled && e.switches.Snapshot().RequireEnabled("retry") {
		maxAttempts = e.retry.MaxRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, execErr := e.pool.Exec(ctx, stmt)
		if execErr == nil {
			rollbackSQL := dropIndexSQL(plan.Schema, name)
			e.recordSuccess(ctx, plan, name, stmt, rollbackSQL, attempt+1)
			e.publishInvalidation(plan.Table, plan.Fields)
			return Result{Applied: true, IndexName: name, Attempts: attempt + 1, RollbackSQL: rollbackSQL}
		}

		lastErr = execErr
		classified := dbx.Classify("create index", execErr)
		if !e.isRetryable(classified) {
			e.recordFailure(ctx, plan, name, attempt+1, classified)
			return Result{Attempts: attempt + 1, Err: classified}
		}
		if attempt >= maxAttempts-1 {
			break
		}

		delay := calculateRetryDelay(attempt, e.retry)
		e.logger.Warn("index creation failed, retrying",
			zap.String("table", plan.Table), zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay), zap.Error(classified))

		select {
		case <-ctx.Done():
			e.recordFailure(ctx, plan, name, attempt+1, ctx.Err())
			return Result{Attempts: attempt + 1, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}

	e.recordFailure(ctx, plan, name, maxAttempts, lastErr)
	return Result{Attempts: maxAttempts, Err: lastErr}
}

// isRetryable follows is_retryable_error: a TransientError from
// dbx.Classify is always retryable, and any error whose message
// contains one of the configured retryable keywords is retryable too.
func (e *Executor) isRetryable(err error) bool {
	if !e.retry.Enabled {
		return false
	}
	var transient *dbx.TransientError
	if errors.As(err, &transient) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range e.retry.RetryableErrorWords {
		if strings.Contains(msg, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// calculateRetryDelay mirrors calculate_retry_delay exactly:
// initial_delay * backoff_multiplier^attempt, capped at max_delay.
func calculateRetryDelay(attempt int, cfg config.IndexRetryConfig) time.Duration {
	delay := float64(cfg.InitialDelay) * pow(cfg.BackoffMultiplier, attempt)
	max := float64(cfg.MaxDelay)
	if delay > max {
		delay = max
	}
	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func buildCreateIndexSQL(plan Plan, name string) string {
	cols := make([]string, len(plan.Fields))
	for i, f := range plan.Fields {
		cols[i] = quoteIdent(f)
	}
	using := ""
	if plan.IndexType != "" && plan.IndexType != "btree" {
		using = fmt.Sprintf(" USING %s", plan.IndexType)
	}
	concurrently := ""
	if plan.Concurrently {
		concurrently = "CONCURRENTLY "
	}
	return fmt.Sprintf(
		`CREATE INDEX %sIF NOT EXISTS %s ON %s.%s%s (%s)`,
		concurrently, quoteIdent(name), quoteIdent(plan.Schema), quoteIdent(plan.Table), using, strings.Join(cols, ", "),
	)
}

func dropIndexSQL(schema, name string) string {
	return fmt.Sprintf(`DROP INDEX IF EXISTS %s.%s`, quoteIdent(schema), quoteIdent(name))
}

// recordSuccess writes the two records SPEC_FULL.md §8's testable
// property 1 requires for every successful CREATE INDEX: exactly one
// IndexVersion row (carrying the verbatim DDL text for rollback) and
// exactly one CREATE_INDEX MutationLogEntry (carrying rollback_sql in
// its details, per §4.6).
func (e *Executor) recordSuccess(ctx context.Context, plan Plan, name, definition, rollbackSQL string, attempts int) {
	if e.versions != nil {
		if err := e.versions.Record(ctx, version.Entry{
			IndexName:  name,
			Table:      plan.Table,
			Definition: definition,
			CreatedBy:  "executor",
			Metadata: map[string]any{
				"tenant":       plan.Tenant,
				"index_type":   plan.IndexType,
				"fields":       plan.Fields,
				"estimated_mb": plan.EstimatedMB,
			},
		}); err != nil {
			e.logger.Error("failed to record index version", zap.Error(err), zap.String("index_name", name))
		}
	}

	if e.audit == nil {
		return
	}
	_ = e.audit.Record(ctx, audit.Entry{
		Kind:     audit.CreateIndex,
		Table:    plan.Table,
		Field:    strings.Join(plan.Fields, ","),
		Tenant:   plan.Tenant,
		Severity: audit.Info,
		Details: map[string]any{
			"index_name":   name,
			"attempts":     attempts,
			"rollback_sql": rollbackSQL,
		},
	})
}

func (e *Executor) recordFailure(ctx context.Context, plan Plan, name string, attempts int, err error) {
	if e.audit == nil {
		return
	}
	_ = e.audit.Record(ctx, audit.Entry{
		Kind:     audit.IndexCreationFailed,
		Table:    plan.Table,
		Field:    strings.Join(plan.Fields, ","),
		Tenant:   plan.Tenant,
		Severity: audit.Error,
		Details: map[string]any{
			"index_name": name,
			"attempts":   attempts,
			"error":      err.Error(),
		},
	})
}

// DropIndex removes an advisor-created index, used for manual rollback.
// It is idempotent: dropping a missing index is
// not an error.
func (e *Executor) DropIndex(ctx context.Context, schema, name string) error {
	var table string
	_ = e.pool.QueryRow(ctx, `SELECT tablename FROM pg_indexes WHERE schemaname = $1 AND indexname = $2`, schema, name).Scan(&table)

	_, err := e.pool.Exec(ctx, dropIndexSQL(schema, name))
	if err != nil {
		return dbx.Classify("drop index", err)
	}
	if table != "" {
		e.publishInvalidation(table, nil)
	}
	return nil
}
