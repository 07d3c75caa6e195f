// Package version persists the durable history of every DDL definition
// the mutation executor has applied to a managed index: the
// IndexVersion entity of SPEC_FULL.md §3. Unlike the audit log (which
// records that something happened), an IndexVersion row records what
// was applied, so rollback can re-issue the prior CREATE INDEX
// definition verbatim rather than reconstructing it from the audit
// trail's free-form JSON. Grounded on internal/audit's append-only
// table idiom (same package retargeted from "what happened" to "what
// DDL text was run"), since the teacher has no equivalent (MySQL DDL
// safety checks there are stateless per-statement, no durable version
// history is kept).
package version

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nethalo/indexadvisor/internal/dbx"
)

// Entry is one durable record of an index's DDL definition at the time
// it was (re)created — SPEC_FULL.md §3's IndexVersion.
type Entry struct {
	ID         uuid.UUID
	IndexName  string
	Table      string
	Definition string // the CREATE INDEX statement text, verbatim
	CreatedBy  string // which subsystem created it; the executor records "executor"
	Metadata   map[string]any
	CreatedAt  time.Time
}

// Store persists IndexVersion rows to Postgres. An IndexVersion row is
// owned by the mutation executor (SPEC_FULL.md §3): other components
// read via History/Previous but never write.
type Store struct {
	pool *dbx.Pool
}

func New(pool *dbx.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the index_advisor_index_versions table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS index_advisor_index_versions (
			id UUID PRIMARY KEY,
			index_name TEXT NOT NULL,
			table_name TEXT NOT NULL,
			definition TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return dbx.Classify("ensure index_versions schema", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS index_advisor_index_versions_name_idx
			ON index_advisor_index_versions (index_name, created_at)
	`)
	if err != nil {
		return dbx.Classify("ensure index_versions index", err)
	}
	return nil
}

// Record appends one IndexVersion row. Called exactly once per
// successful CREATE INDEX (SPEC_FULL.md §8, testable property 1).
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return dbx.Classify("marshal index version metadata", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO index_advisor_index_versions
			(id, index_name, table_name, definition, created_by, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.IndexName, e.Table, e.Definition, e.CreatedBy, metaJSON)
	if err != nil {
		return dbx.Classify("record index version", err)
	}
	return nil
}

// History returns every recorded definition of indexName, oldest first,
// so rollback can walk backwards to the definition before the most
// recent change.
func (s *Store) History(ctx context.Context, indexName string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, index_name, table_name, definition, created_by, metadata, created_at
		FROM index_advisor_index_versions
		WHERE index_name = $1
		ORDER BY created_at ASC
	`, indexName)
	if err != nil {
		return nil, dbx.Classify("query index version history", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.IndexName, &e.Table, &e.Definition, &e.CreatedBy, &metaJSON, &e.CreatedAt); err != nil {
			return nil, dbx.Classify("scan index version", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, dbx.Classify("unmarshal index version metadata", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Previous returns the definition immediately before the most recent
// one for indexName, used by rollback to re-apply a prior index
// definition. Returns ok=false if fewer than two versions exist.
func (s *Store) Previous(ctx context.Context, indexName string) (entry Entry, ok bool, err error) {
	history, err := s.History(ctx, indexName)
	if err != nil {
		return Entry{}, false, err
	}
	if len(history) < 2 {
		return Entry{}, false, nil
	}
	return history[len(history)-2], true, nil
}

// CountForIndex returns how many versions exist for indexName, used by
// the testable-property checks (exactly-one IndexVersion per successful
// CREATE INDEX, i.e. CountForIndex increments by exactly one per call).
func (s *Store) CountForIndex(ctx context.Context, indexName string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM index_advisor_index_versions WHERE index_name = $1
	`, indexName).Scan(&n)
	if err != nil {
		return 0, dbx.Classify("count index versions", err)
	}
	return n, nil
}
