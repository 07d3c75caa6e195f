package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage indexadvisor configuration",
}

var configInitCmd = &cobra.Command{
	Use:          "init",
	Short:        "Create config file interactively",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		configDir := filepath.Join(home, ".indexadvisor")
		configPath := filepath.Join(configDir, "config.yaml")

		reader := bufio.NewReader(os.Stdin)

		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Config file already exists at %s\n", configPath)
			fmt.Fprint(out, "Overwrite? [y/N]: ")
			answer, _ := reader.ReadString('\n')
			if strings.TrimSpace(strings.ToLower(answer)) != "y" {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}

		if err := os.MkdirAll(configDir, 0700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		fmt.Fprintln(out, "indexadvisor configuration setup")
		fmt.Fprintln(out, "─────────────────────────────────")
		fmt.Fprintln(out)

		fmt.Fprint(out, "Postgres DSN [postgres://indexadvisor@127.0.0.1:5432/postgres]: ")
		dsn, _ := reader.ReadString('\n')
		dsn = strings.TrimSpace(dsn)
		if dsn == "" {
			dsn = "postgres://indexadvisor@127.0.0.1:5432/postgres"
		}

		fmt.Fprint(out, "Schema [public]: ")
		schemaName, _ := reader.ReadString('\n')
		schemaName = strings.TrimSpace(schemaName)
		if schemaName == "" {
			schemaName = "public"
		}

		fmt.Fprint(out, "Auto-indexing enabled? [Y/n]: ")
		autoIdx, _ := reader.ReadString('\n')
		autoIdxEnabled := strings.TrimSpace(strings.ToLower(autoIdx)) != "n"

		fmt.Fprint(out, "Default output format [text]: ")
		format, _ := reader.ReadString('\n')
		format = strings.TrimSpace(format)
		if format == "" {
			format = "text"
		}

		var cfg strings.Builder
		cfg.WriteString("# indexadvisor configuration\n")
		cfg.WriteString("# https://github.com/nethalo/indexadvisor\n\n")
		cfg.WriteString(fmt.Sprintf("dsn: %s\n", dsn))
		cfg.WriteString(fmt.Sprintf("schema: %s\n\n", schemaName))
		cfg.WriteString(fmt.Sprintf("format: %s\n\n", format))

		cfg.WriteString("bypass:\n")
		cfg.WriteString("  system:\n")
		cfg.WriteString("    enabled: false\n")
		cfg.WriteString("  features:\n")
		cfg.WriteString(fmt.Sprintf("    auto_indexing:\n      enabled: %t\n", autoIdxEnabled))
		cfg.WriteString("    stats_collection:\n      enabled: true\n")
		cfg.WriteString("    mutation_logging:\n      enabled: true\n")
		cfg.WriteString("    interceptor:\n      enabled: true\n\n")

		cfg.WriteString("features:\n")
		cfg.WriteString("  query_interceptor:\n")
		cfg.WriteString("    max_query_cost: 10000.0\n")
		cfg.WriteString("    enable_blocking: true\n")
		cfg.WriteString("  auto_indexer:\n")
		cfg.WriteString("    min_query_threshold: 100\n")
		cfg.WriteString("    min_improvement_pct: 20.0\n\n")

		cfg.WriteString("production_safeguards:\n")
		cfg.WriteString("  maintenance_window:\n")
		cfg.WriteString("    enabled: true\n")
		cfg.WriteString("    start_hour: 2\n")
		cfg.WriteString("    end_hour: 6\n")

		if err := os.WriteFile(configPath, []byte(cfg.String()), 0600); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Fprintf(out, "\nConfig written to %s\n", configPath)
		fmt.Fprintln(out, "\nRecommended: create a least-privilege Postgres role for indexadvisor:")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  CREATE ROLE indexadvisor LOGIN;")
		fmt.Fprintln(out, "  GRANT CONNECT ON DATABASE postgres TO indexadvisor;")
		fmt.Fprintln(out, "  GRANT SELECT ON ALL TABLES IN SCHEMA public TO indexadvisor;")
		fmt.Fprintln(out, "  GRANT CREATE ON SCHEMA public TO indexadvisor;")
		fmt.Fprintln(out, "  GRANT pg_monitor TO indexadvisor;")
		fmt.Fprintln(out)

		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		configFile := viper.ConfigFileUsed()
		if configFile == "" {
			fmt.Fprintln(out, "No config file found.")
			fmt.Fprintln(out, "Run 'indexadvisor config init' to create one.")
			return nil
		}

		fmt.Fprintf(out, "Config file: %s\n\n", configFile)

		data, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		fmt.Fprintln(out, string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
