package parser

import "testing"

func TestParseSelectExtractsWhereColumns(t *testing.T) {
	q, err := Parse("SELECT id, name FROM orders WHERE customer_id = 5 AND status = 'open' ORDER BY created_at")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if q.Type != Select {
		t.Fatalf("Type = %v, want Select", q.Type)
	}
	if len(q.Tables) != 1 || q.Tables[0] != "orders" {
		t.Fatalf("Tables = %v, want [orders]", q.Tables)
	}
	if !q.HasWhere {
		t.Fatalf("HasWhere = false, want true")
	}

	var sawCustomerID, sawStatus, sawCreatedAt bool
	for _, c := range q.Columns {
		switch {
		case c.Column == "customer_id" && c.Clause == "where":
			sawCustomerID = true
		case c.Column == "status" && c.Clause == "where":
			sawStatus = true
		case c.Column == "created_at" && c.Clause == "order_by":
			sawCreatedAt = true
		}
	}
	if !sawCustomerID || !sawStatus {
		t.Fatalf("expected WHERE columns customer_id and status, got %+v", q.Columns)
	}
	if !sawCreatedAt {
		t.Fatalf("expected ORDER BY column created_at, got %+v", q.Columns)
	}
}

func TestParseJoinExtractsJoinColumns(t *testing.T) {
	q, err := Parse("SELECT o.id FROM orders o JOIN customers c ON o.customer_id = c.id")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(q.Tables) != 2 {
		t.Fatalf("Tables = %v, want 2 tables", q.Tables)
	}
	var sawJoin bool
	for _, c := range q.Columns {
		if c.Clause == "join" {
			sawJoin = true
		}
	}
	if !sawJoin {
		t.Fatalf("expected a join column, got %+v", q.Columns)
	}
}

func TestParseMutatingStatements(t *testing.T) {
	cases := []struct {
		sql  string
		want StatementType
	}{
		{"UPDATE orders SET status = 'closed' WHERE id = 1", Update},
		{"DELETE FROM orders WHERE id = 1", Delete},
		{"INSERT INTO orders (id) VALUES (1)", Insert},
		{"ALTER TABLE orders ADD COLUMN note text", DDL},
	}
	for _, tc := range cases {
		q, err := Parse(tc.sql)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.sql, err)
		}
		if q.Type != tc.want {
			t.Errorf("Parse(%q).Type = %v, want %v", tc.sql, q.Type, tc.want)
		}
		if !q.IsMutating() {
			t.Errorf("Parse(%q).IsMutating() = false, want true", tc.sql)
		}
	}
}

func TestParseUnparseableFailsOpen(t *testing.T) {
	// Postgres-only syntax Vitess's MySQL grammar rejects; callers must
	// treat this as "unknown shape," not as evidence of anything unsafe.
	_, err := Parse("ALTER TABLE orders ALTER COLUMN amount TYPE numeric(10,2)")
	if err == nil {
		t.Skip("vitess accepted the statement; dialect gap narrower than assumed")
	}
}
