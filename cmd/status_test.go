package cmd

import "testing"

func TestStatusCmd_Structure(t *testing.T) {
	if statusCmd == nil {
		t.Fatal("statusCmd should not be nil")
	}
	if statusCmd.Use != "status" {
		t.Errorf("statusCmd.Use = %q, want %q", statusCmd.Use, "status")
	}
	if !statusCmd.SilenceUsage {
		t.Error("statusCmd should set SilenceUsage to true")
	}
	if statusCmd.RunE == nil {
		t.Error("statusCmd should use RunE for error handling")
	}

	found := false
	for _, c := range rootCmd.Commands() {
		if c.Use == "status" {
			found = true
		}
	}
	if !found {
		t.Error("status command should be registered with root command")
	}
}

func TestStatusCmd_MissingDSN(t *testing.T) {
	cfg, _, err := loadConfig(statusCmd)
	if err != nil {
		t.Fatalf("loadConfig should not fail just to produce an empty DSN: %v", err)
	}
	cfg.DSN = ""

	if _, err := newApp(nil, cfg, nil, "public"); err == nil {
		t.Error("newApp should error when no DSN is configured")
	}
}
