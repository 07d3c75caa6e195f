package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print indexadvisor version and supported Postgres versions",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "indexadvisor %s (commit: %s, built: %s)\n\n", Version, CommitSHA, BuildDate)
		fmt.Fprintln(out, "Supported Postgres versions:")
		fmt.Fprintln(out, "  - PostgreSQL 13 - 17")
		fmt.Fprintln(out, "  - Amazon RDS / Aurora PostgreSQL (detected automatically)")
		fmt.Fprintln(out, "  - Streaming replication primary/replica topologies")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "PostgreSQL 12 and earlier are not supported (EOL).")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
