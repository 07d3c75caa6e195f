package cmd

import (
	"testing"

	"github.com/spf13/viper"
)

func TestRootCommand_Structure(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd should not be nil")
	}
	if rootCmd.Use != "indexadvisor" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "indexadvisor")
	}
	if rootCmd.Long == "" {
		t.Error("rootCmd.Long should not be empty")
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "dsn", "schema", "format", "verbose"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("rootCmd should have a persistent %q flag", name)
		}
	}

	schemaFlag := rootCmd.PersistentFlags().Lookup("schema")
	if schemaFlag.DefValue != "public" {
		t.Errorf("schema flag default = %q, want %q", schemaFlag.DefValue, "public")
	}

	formatFlag := rootCmd.PersistentFlags().Lookup("format")
	if formatFlag.DefValue != "text" {
		t.Errorf("format flag default = %q, want %q", formatFlag.DefValue, "text")
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"version", "config", "status", "advise", "schema", "serve"}
	got := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("rootCmd should have a %q subcommand registered", name)
		}
	}
}

func TestLoadConfig_DSNFlagOverride(t *testing.T) {
	viper.Reset()
	cfgFile = ""

	if err := rootCmd.ParseFlags([]string{"--dsn=postgres://test@localhost:5432/testdb"}); err != nil {
		t.Fatalf("failed to parse dsn flag: %v", err)
	}
	defer rootCmd.PersistentFlags().Set("dsn", "")

	cfg, schemaName, err := loadConfig(rootCmd)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.DSN != "postgres://test@localhost:5432/testdb" {
		t.Errorf("cfg.DSN = %q, want the --dsn flag value", cfg.DSN)
	}
	if schemaName != "public" {
		t.Errorf("schemaName = %q, want %q", schemaName, "public")
	}
}

func TestNewLogger(t *testing.T) {
	if l := newLogger(false); l == nil {
		t.Error("newLogger(false) should not return nil")
	}
	if l := newLogger(true); l == nil {
		t.Error("newLogger(true) should not return nil")
	}
}
