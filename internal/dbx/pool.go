package dbx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pool is a thin wrapper over pgxpool.Pool that classifies errors into
// the advisor's typed taxonomy and logs with structured fields.
type Pool struct {
	*pgxpool.Pool
	logger *zap.Logger
}

// Open establishes a pgx connection pool against dsn.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, &ValidationError{Op: "parse dsn", Reason: err.Error()}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, &FatalError{Op: "open pool", Err: err}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &TransientError{Op: "ping", Err: err}
	}

	return &Pool{Pool: pool, logger: logger}, nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic. Errors returned by fn are classified and
// returned unwrapped when already typed.
func (p *Pool) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return Classify("begin tx", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			p.logger.Warn("rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
		}
		return Classify("transaction", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return Classify("commit tx", err)
	}
	return nil
}

// Classify maps a raw pgx/pgconn error into one of the advisor's typed
// error classes so callers can branch with errors.As instead of string
// matching.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var typed *TransientError
	var valid *ValidationError
	var refusal *SafetyRefusalError
	var fatal *FatalError
	if errors.As(err, &typed) || errors.As(err, &valid) || errors.As(err, &refusal) || errors.As(err, &fatal) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if isRetryablePgCode(pgErr.Code) {
			return &TransientError{Op: op, Err: err}
		}
		if strings.HasPrefix(pgErr.Code, "23") || strings.HasPrefix(pgErr.Code, "42") {
			return &ValidationError{Op: op, Reason: pgErr.Message}
		}
		return &FatalError{Op: op, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransientError{Op: op, Err: err}
	}

	return &TransientError{Op: op, Err: err}
}

// isRetryablePgCode reports whether a Postgres SQLSTATE code represents a
// condition expected to clear on retry: deadlocks, lock timeouts,
// serialization failures, connection-level failures.
func isRetryablePgCode(code string) bool {
	switch code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03", // lock_not_available
		"57014", // query_canceled
		"08000", "08003", "08006", "08001", "08004": // connection_exception family
		return true
	}
	return false
}

// Explain runs EXPLAIN (FORMAT JSON, ANALYZE false) on query and returns
// the raw JSON plan document as produced by Postgres.
func (p *Pool) Explain(ctx context.Context, query string) (string, error) {
	var plan string
	row := p.Pool.QueryRow(ctx, fmt.Sprintf("EXPLAIN (FORMAT JSON) %s", query))
	if err := row.Scan(&plan); err != nil {
		return "", Classify("explain", err)
	}
	return plan, nil
}
