package schema

import "testing"

func TestIsValidIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"customer_id", true},
		{"_leading_underscore", true},
		{"Table1", true},
		{"", false},
		{"1leading_digit", false},
		{"has space", false},
		{"has-dash", false},
		{"semi;colon", false},
		{"quote\"embedded", false},
	}
	for _, c := range cases {
		if got := IsValidIdentifier(c.in); got != c.want {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestIsAllowedType(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"TEXT", true},
		{"text", true},
		{"BIGINT", true},
		{"VARCHAR(255)", true},
		{"NUMERIC(10,2)", true},
		{"TIMESTAMP WITH TIME ZONE", true},
		{"JSONB", true},
		{"NOT_A_TYPE", false},
		{"DROP TABLE users", false},
	}
	for _, c := range cases {
		if got := isAllowedType(c.in); got != c.want {
			t.Errorf("isAllowedType(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestClassifyLock(t *testing.T) {
	cases := []struct {
		kind ChangeKind
		want LockLevel
	}{
		{AddColumn, LockAccessExclusive},
		{DropColumn, LockAccessExclusive},
		{AlterColumn, LockAccessExclusive},
		{RenameColumn, LockShareUpdateExclusive},
	}
	for _, c := range cases {
		if got := ClassifyLock(c.kind); got != c.want {
			t.Errorf("ClassifyLock(%s) = %s, want %s", c.kind, got, c.want)
		}
	}
}

func TestGenerateRollbackPlanAddColumn(t *testing.T) {
	plan := GenerateRollbackPlan("contacts", AddColumn, "email", RollbackOptions{})
	want := `ALTER TABLE "contacts" DROP COLUMN IF EXISTS "email"`
	if plan.RollbackSQL != want {
		t.Fatalf("got %q, want %q", plan.RollbackSQL, want)
	}
	if len(plan.Instructions) == 0 {
		t.Fatal("expected rollback instructions")
	}
}

func TestGenerateRollbackPlanDropColumnDefaultsToText(t *testing.T) {
	plan := GenerateRollbackPlan("contacts", DropColumn, "email", RollbackOptions{})
	want := `ALTER TABLE "contacts" ADD COLUMN "email" TEXT`
	if plan.RollbackSQL != want {
		t.Fatalf("got %q, want %q", plan.RollbackSQL, want)
	}
}

func TestGenerateRollbackPlanDropColumnRestoresCapturedType(t *testing.T) {
	plan := GenerateRollbackPlan("contacts", DropColumn, "age", RollbackOptions{FieldType: "integer"})
	want := `ALTER TABLE "contacts" ADD COLUMN "age" integer`
	if plan.RollbackSQL != want {
		t.Fatalf("got %q, want %q", plan.RollbackSQL, want)
	}
}

func TestGenerateRollbackPlanAlterColumnRequiresOldType(t *testing.T) {
	empty := GenerateRollbackPlan("contacts", AlterColumn, "age", RollbackOptions{})
	if empty.RollbackSQL != "" {
		t.Fatalf("expected empty rollback SQL without a captured old_type, got %q", empty.RollbackSQL)
	}

	withType := GenerateRollbackPlan("contacts", AlterColumn, "age", RollbackOptions{OldType: "smallint"})
	want := `ALTER TABLE "contacts" ALTER COLUMN "age" TYPE smallint`
	if withType.RollbackSQL != want {
		t.Fatalf("got %q, want %q", withType.RollbackSQL, want)
	}
}

func TestGenerateRollbackPlanRenameColumnSymmetric(t *testing.T) {
	plan := GenerateRollbackPlan("contacts", RenameColumn, "email_address", RollbackOptions{NewName: "email"})
	want := `ALTER TABLE "contacts" RENAME COLUMN "email" TO "email_address"`
	if plan.RollbackSQL != want {
		t.Fatalf("got %q, want %q", plan.RollbackSQL, want)
	}
}

func TestQuoteIdentEscapesEmbeddedQuotes(t *testing.T) {
	if got, want := quoteIdent(`weird"name`), `"weird""name"`; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
