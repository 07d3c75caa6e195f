package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nethalo/indexadvisor/internal/maintenance"
	"github.com/nethalo/indexadvisor/internal/output"
	"github.com/nethalo/indexadvisor/internal/safety"
	"github.com/nethalo/indexadvisor/internal/topology"
)

var statusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Show topology, runtime switches, and safety-gate state",
	SilenceUsage: true,
	Long: `Connect to Postgres, detect its replication topology (standalone,
primary, replica, cloud-managed), and report the advisor's current runtime
switches, query-interceptor counters, rate-limiter headroom, and a one-shot
maintenance check (database/pool health, genome-catalog drift, predicted
index bloat).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, schemaName, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		logger := newLogger(verbose)
		defer logger.Sync()

		ctx := context.Background()
		a, err := newApp(ctx, cfg, logger, schemaName)
		if err != nil {
			return err
		}
		defer a.Close()

		topo, err := topology.Detect(ctx, a.pool)
		if err != nil {
			return fmt.Errorf("topology detection failed: %w", err)
		}

		fmt.Printf("Topology: %s", topo.Type)
		if topo.IsReplica {
			fmt.Printf(" (lag: %ds)", topo.LagSeconds(""))
		}
		if topo.ReplicaCount > 0 {
			fmt.Printf(", %d replica(s)", topo.ReplicaCount)
		}
		if topo.IsCloudManaged {
			fmt.Printf(", cloud-managed (%s)", topo.CloudProvider)
		}
		fmt.Println()
		fmt.Println()

		metrics := a.intercept.Metrics()
		maintReport := a.maint.Tick(ctx)
		report := output.StatusReport{
			Switches: a.switches.Status(),
			InterceptorMetrics: output.InterceptorMetricsView{
				TotalInterceptions: metrics.TotalInterceptions,
				TotalBlocked:       metrics.TotalBlocked,
				TotalAnalyzed:      metrics.TotalAnalyzed,
				CacheHits:          metrics.CacheHits,
				CacheMisses:        metrics.CacheMisses,
				BlockedByReason:    metrics.BlockedByReason,
			},
			RateLimiter: map[string]safety.Stats{
				"query":          a.limiter.Stats(""),
				"index_creation": {},
			},
			Maintenance: maintenanceView(maintReport),
		}

		format, _ := cmd.Flags().GetString("format")
		output.NewRenderer(format, os.Stdout).RenderStatus(report)

		return nil
	},
}

// maintenanceView converts a maintenance.Report into the output
// package's mirror type, flattening the OrphanedField/ReindexPrediction
// structs to display strings the way candidatesFromTelemetry flattens
// telemetry.Stat for the advise report.
func maintenanceView(report maintenance.Report) *output.MaintenanceView {
	v := &output.MaintenanceView{
		DatabaseHealthy: report.DatabaseHealthy,
		DatabaseLatency: report.DatabaseLatency.String(),
		PoolAcquired:    report.PoolAcquired,
		PoolIdle:        report.PoolIdle,
		PoolMax:         report.PoolMax,
		Warnings:        report.Warnings,
		Errors:          report.Errors,
	}
	for _, of := range report.OrphanedFields {
		v.OrphanedFields = append(v.OrphanedFields, fmt.Sprintf("%s.%s: %s", of.Table, of.Field, of.Reason))
	}
	for _, pr := range report.PredictedReindex {
		v.PredictedReindex = append(v.PredictedReindex, fmt.Sprintf("%s on %s: %d -> %d bytes (%.0f/day, %s confidence)",
			pr.IndexName, pr.Table, pr.CurrentSizeBytes, pr.PredictedSizeBytes, pr.GrowthBytesPerDay, pr.Confidence))
	}
	return v
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
