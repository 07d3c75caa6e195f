// Package audit records every mutation the advisor performs (or refuses
// to perform) to an append-only log table, grounded on the original
// audit module's MUTATION_TYPES taxonomy and its bypass-aware short
// circuit — if mutation logging itself has been disabled via the
// runtime switch, logging is skipped rather than forced, since the
// switch is the operator's explicit instruction.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nethalo/indexadvisor/internal/dbx"
	"github.com/nethalo/indexadvisor/internal/runtimeswitch"
	"go.uber.org/zap"
)

// MutationType enumerates the kinds of events the advisor logs, matching
// SPEC_FULL.md §6's taxonomy verbatim.
type MutationType string

const (
	CreateTable           MutationType = "CREATE_TABLE"
	DropTable             MutationType = "DROP_TABLE"
	AlterTable            MutationType = "ALTER_TABLE"
	AddColumn             MutationType = "ADD_COLUMN"
	DropColumn            MutationType = "DROP_COLUMN"
	AlterColumn           MutationType = "ALTER_COLUMN"
	RenameColumn          MutationType = "RENAME_COLUMN"
	CreateIndex           MutationType = "CREATE_INDEX"
	DropIndex             MutationType = "DROP_INDEX"
	Reindex               MutationType = "REINDEX"
	EnableField           MutationType = "ENABLE_FIELD"
	DisableField          MutationType = "DISABLE_FIELD"
	InitializeTenant      MutationType = "INITIALIZE_TENANT"
	SystemEnable          MutationType = "SYSTEM_ENABLE"
	SystemDisable         MutationType = "SYSTEM_DISABLE"
	SystemConfigChange    MutationType = "SYSTEM_CONFIG_CHANGE"
	RateLimitExceeded     MutationType = "RATE_LIMIT_EXCEEDED"
	QueryBlocked          MutationType = "QUERY_BLOCKED"
	SecurityViolation     MutationType = "SECURITY_VIOLATION"
	AuthenticationFailure MutationType = "AUTHENTICATION_FAILURE"
	AuthorizationDenied   MutationType = "AUTHORIZATION_DENIED"
	CriticalError         MutationType = "CRITICAL_ERROR"
	IndexCreationFailed   MutationType = "INDEX_CREATION_FAILED"
	ConnectionError       MutationType = "CONNECTION_ERROR"
	BulkUpdate            MutationType = "BULK_UPDATE"
	DataMigration         MutationType = "DATA_MIGRATION"
)

// Severity classifies how loudly an entry should be surfaced.
type Severity string

const (
	Info     Severity = "info"
	Warning  Severity = "warning"
	Error    Severity = "error"
	Critical Severity = "critical"
)

// Entry is one row of the mutation log — the MutationLogEntry of
// SPEC_FULL.md §3: tenant/table/field are optional (system-level events
// carry neither), Details is free-form structured JSON, and the row is
// never edited or deleted once written.
type Entry struct {
	ID         uuid.UUID
	OccurredAt time.Time
	Kind       MutationType
	Tenant     string
	Table      string
	Field      string
	Severity   Severity
	Details    map[string]any
}

// Log writes Entry records to Postgres, subject to the mutation-logging
// runtime switch.
type Log struct {
	pool     *dbx.Pool
	logger   *zap.Logger
	switches *runtimeswitch.Registry
}

func New(pool *dbx.Pool, logger *zap.Logger, switches *runtimeswitch.Registry) *Log {
	return &Log{pool: pool, logger: logger, switches: switches}
}

// EnsureSchema creates the audit table if it does not already exist.
// Called once at startup; idempotent across restarts.
func (l *Log) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS index_advisor_audit_log (
			id UUID PRIMARY KEY,
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			mutation_type TEXT NOT NULL,
			tenant TEXT NOT NULL DEFAULT '',
			table_name TEXT NOT NULL DEFAULT '',
			field_name TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT 'info',
			details JSONB NOT NULL DEFAULT '{}'::jsonb
		)
	`)
	if err != nil {
		return dbx.Classify("ensure audit schema", err)
	}
	_, err = l.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS index_advisor_audit_tenant_table_field_idx
			ON index_advisor_audit_log (tenant, table_name, field_name)
	`)
	if err != nil {
		return dbx.Classify("ensure audit index", err)
	}
	_, err = l.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS index_advisor_audit_type_created_idx
			ON index_advisor_audit_log (mutation_type, occurred_at)
	`)
	if err != nil {
		return dbx.Classify("ensure audit type index", err)
	}
	return nil
}

// Record appends one audit entry. If mutation logging has been disabled
// via the runtime switch, Record is a documented no-op — the operator
// asked for silence, not a forced override. CRITICAL_ERROR entries are
// always written regardless of the switch: §7's fatal-error class must
// remain observable even while an operator has silenced routine logging.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.Kind != CriticalError && !l.switches.Snapshot().MutationLoggingEnabled {
		l.logger.Debug("mutation logging disabled, skipping audit record", zap.String("type", string(e.Kind)))
		return nil
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	if e.Severity == "" {
		e.Severity = Info
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}

	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		return dbx.Classify("marshal audit details", err)
	}

	_, err = l.pool.Exec(ctx, `
		INSERT INTO index_advisor_audit_log
			(id, occurred_at, mutation_type, tenant, table_name, field_name, severity, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.OccurredAt, string(e.Kind), e.Tenant, e.Table, e.Field, string(e.Severity), detailsJSON)
	if err != nil {
		l.logger.Error("failed to write audit record", zap.Error(err), zap.String("type", string(e.Kind)))
		return dbx.Classify("record audit entry", err)
	}
	return nil
}

// Recent returns the most recent n audit entries for a table, newest
// first, used by the CLI's status/history views.
func (l *Log) Recent(ctx context.Context, table string, n int) ([]Entry, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, occurred_at, mutation_type, tenant, table_name, field_name, severity, details
		FROM index_advisor_audit_log
		WHERE table_name = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, table, n)
	if err != nil {
		return nil, dbx.Classify("query recent audit entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var mutType, sev string
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.OccurredAt, &mutType, &e.Tenant, &e.Table, &e.Field, &sev, &detailsJSON); err != nil {
			return nil, dbx.Classify("scan audit entry", err)
		}
		e.Kind = MutationType(mutType)
		e.Severity = Severity(sev)
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, dbx.Classify("unmarshal audit details", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PastImprovementPct returns every improvement_pct value recorded in a
// prior CREATE_INDEX entry for (table, field), newest first, feeding the
// predictive scorer's historical method (SPEC_FULL.md §4.3.5). Entries
// without a numeric improvement_pct in their details are skipped rather
// than treated as zero.
func (l *Log) PastImprovementPct(ctx context.Context, table, field string) ([]float64, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT details->'improvement_pct'
		FROM index_advisor_audit_log
		WHERE table_name = $1 AND field_name = $2 AND mutation_type = $3
		ORDER BY occurred_at DESC
	`, table, field, string(CreateIndex))
	if err != nil {
		return nil, dbx.Classify("query past improvement pct", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, dbx.Classify("scan past improvement pct", err)
		}
		var pct float64
		if err := json.Unmarshal(raw, &pct); err != nil {
			continue
		}
		out = append(out, pct)
	}
	return out, rows.Err()
}

// CountByKind counts how many entries of kind exist for table, used by
// the testable-property checks in §8 (exactly-one CREATE_INDEX /
// QUERY_BLOCKED entry per successful mutation / blocked query).
func (l *Log) CountByKind(ctx context.Context, table string, kind MutationType) (int64, error) {
	var n int64
	err := l.pool.QueryRow(ctx, `
		SELECT count(*) FROM index_advisor_audit_log WHERE table_name = $1 AND mutation_type = $2
	`, table, string(kind)).Scan(&n)
	if err != nil {
		return 0, dbx.Classify("count audit entries", err)
	}
	return n, nil
}
