package executor

import (
	"testing"
	"time"

	"github.com/nethalo/indexadvisor/internal/config"
)

func TestCalculateRetryDelayExponentialBackoff(t *testing.T) {
	cfg := config.IndexRetryConfig{
		InitialDelay:      5 * time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
	}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, 60 * time.Second}, // would be 80s, capped at 60s
	}
	for _, c := range cases {
		if got := calculateRetryDelay(c.attempt, cfg); got != c.want {
			t.Errorf("attempt %d: got %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestIndexNameDerivation(t *testing.T) {
	p := Plan{Table: "orders", Fields: []string{"customer_id", "status"}}
	if got, want := p.indexName(), "idx_orders_customer_id_status"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIndexNameRespectsExplicitName(t *testing.T) {
	p := Plan{Table: "orders", Fields: []string{"customer_id"}, Name: "idx_custom"}
	if got := p.indexName(); got != "idx_custom" {
		t.Fatalf("expected explicit name to win, got %q", got)
	}
}

func TestBuildCreateIndexSQLQuotesIdentifiers(t *testing.T) {
	p := Plan{Schema: "public", Table: "orders", Fields: []string{"customer_id"}}
	stmt := buildCreateIndexSQL(p, "idx_orders_customer_id")
	want := `CREATE INDEX IF NOT EXISTS "idx_orders_customer_id" ON "public"."orders" ("customer_id")`
	if stmt != want {
		t.Fatalf("got %q, want %q", stmt, want)
	}
}

func TestBuildCreateIndexSQLConcurrentlyAndUsing(t *testing.T) {
	p := Plan{Schema: "public", Table: "events", Fields: []string{"payload"}, IndexType: "gin", Concurrently: true}
	stmt := buildCreateIndexSQL(p, "idx_events_payload")
	want := `CREATE INDEX CONCURRENTLY IF NOT EXISTS "idx_events_payload" ON "public"."events" USING gin ("payload")`
	if stmt != want {
		t.Fatalf("got %q, want %q", stmt, want)
	}
}

func TestQuoteIdentEscapesEmbeddedQuotes(t *testing.T) {
	if got, want := quoteIdent(`weird"name`), `"weird""name"`; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIsRetryableHonorsKeywordsAndDisabled(t *testing.T) {
	e := &Executor{retry: config.IndexRetryConfig{
		Enabled:             true,
		RetryableErrorWords: []string{"timeout", "deadlock"},
	}}
	if !e.isRetryable(errLike("connection timeout reading rows")) {
		t.Fatalf("expected timeout keyword to be retryable")
	}
	if e.isRetryable(errLike("syntax error near SELECT")) {
		t.Fatalf("expected unrelated error to be non-retryable")
	}

	e.retry.Enabled = false
	if e.isRetryable(errLike("deadlock detected")) {
		t.Fatalf("expected retry to be disabled entirely")
	}
}

type stringErr string

func (e stringErr) Error() string { return string(e) }

func errLike(msg string) error { return stringErr(msg) }
