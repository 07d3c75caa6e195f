package cmd

import (
	"testing"

	"github.com/nethalo/indexadvisor/internal/schema"
)

func TestSchemaCmd_Structure(t *testing.T) {
	if schemaCmd == nil {
		t.Fatal("schemaCmd should not be nil")
	}
	if schemaCmd.Use != "schema" {
		t.Errorf("schemaCmd.Use = %q, want %q", schemaCmd.Use, "schema")
	}

	var foundPreview, foundApply bool
	for _, c := range schemaCmd.Commands() {
		if c.Name() == "preview" {
			foundPreview = true
		}
		if c.Name() == "apply" {
			foundApply = true
		}
	}
	if !foundPreview {
		t.Error("schemaCmd should have a 'preview' subcommand")
	}
	if !foundApply {
		t.Error("schemaCmd should have an 'apply' subcommand")
	}
}

func TestChangeKindFlag(t *testing.T) {
	tests := []struct {
		flag    string
		want    schema.ChangeKind
		wantErr bool
	}{
		{"add", schema.AddColumn, false},
		{"drop", schema.DropColumn, false},
		{"alter", schema.AlterColumn, false},
		{"rename", schema.RenameColumn, false},
		{"bogus", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			if err := schemaApplyCmd.Flags().Set("kind", tt.flag); err != nil {
				t.Fatalf("failed to set kind flag: %v", err)
			}
			defer schemaApplyCmd.Flags().Set("kind", "add")

			got, err := changeKindFlag(schemaApplyCmd)
			if tt.wantErr && err == nil {
				t.Errorf("changeKindFlag(%q) expected error, got nil", tt.flag)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("changeKindFlag(%q) unexpected error: %v", tt.flag, err)
			}
			if got != tt.want {
				t.Errorf("changeKindFlag(%q) = %q, want %q", tt.flag, got, tt.want)
			}
		})
	}
}
