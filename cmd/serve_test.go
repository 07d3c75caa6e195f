package cmd

import (
	"testing"
	"time"
)

func TestServeCmd_Structure(t *testing.T) {
	if serveCmd == nil {
		t.Fatal("serveCmd should not be nil")
	}
	if serveCmd.Use != "serve" {
		t.Errorf("serveCmd.Use = %q, want %q", serveCmd.Use, "serve")
	}
	if !serveCmd.SilenceUsage {
		t.Error("serveCmd should set SilenceUsage to true")
	}

	executeFlag := serveCmd.Flags().Lookup("execute")
	if executeFlag == nil {
		t.Fatal("serveCmd should have an --execute flag")
	}
	if executeFlag.DefValue != "false" {
		t.Errorf("--execute default = %q, want %q", executeFlag.DefValue, "false")
	}

	tickFlag := serveCmd.Flags().Lookup("tick-interval")
	if tickFlag == nil {
		t.Fatal("serveCmd should have a --tick-interval flag")
	}
	if tickFlag.DefValue != time.Hour.String() {
		t.Errorf("--tick-interval default = %q, want %q", tickFlag.DefValue, time.Hour.String())
	}

	found := false
	for _, c := range rootCmd.Commands() {
		if c.Use == "serve" {
			found = true
		}
	}
	if !found {
		t.Error("serve command should be registered with root command")
	}
}
