package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nethalo/indexadvisor/internal/candidate"
	"github.com/nethalo/indexadvisor/internal/executor"
	"github.com/nethalo/indexadvisor/internal/optimizer"
	"github.com/nethalo/indexadvisor/internal/scoring"
)

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Run the advisor as a background daemon",
	SilenceUsage: true,
	Long: `serve runs three loops concurrently: the telemetry collector's
periodic flush, an hourly advisor tick that scores and optionally creates
indexes, and a maintenance loop that checks database and connection-pool
health, flags genome-catalog drift, and predicts index bloat.

It runs until it receives SIGINT or SIGTERM, flushing any buffered
telemetry before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, schemaName, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		execute, _ := cmd.Flags().GetBool("execute")
		tickInterval, _ := cmd.Flags().GetDuration("tick-interval")
		verbose, _ := cmd.Flags().GetBool("verbose")
		logger := newLogger(verbose)
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger, schemaName)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ensureSchema(ctx); err != nil {
			return err
		}

		go a.telemetry.Run(ctx)
		go a.maint.Run(ctx)

		logger.Info("indexadvisor serving", zap.Duration("tick_interval", tickInterval), zap.Bool("execute", execute))

		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		runTick(ctx, a, execute, logger)

		for {
			select {
			case <-ctx.Done():
				logger.Info("shutting down, flushing telemetry")
				a.telemetry.Stop()
				a.maint.Stop()
				return nil
			case <-ticker.C:
				runTick(ctx, a, execute, logger)
			}
		}
	},
}

// runTick is the same scoring/optimizing pipeline advise.go runs
// one-shot, invoked here on a timer instead of once from the CLI.
func runTick(ctx context.Context, a *app, execute bool, logger *zap.Logger) {
	if !a.switches.Snapshot().RequireEnabled("auto_indexing") {
		return
	}

	stats, err := a.telemetry.LoadWindow(ctx, time.Now().Add(-a.cfg.AutoIndexer.WindowDuration))
	if err != nil {
		logger.Error("tick: loading telemetry window failed", zap.Error(err))
		return
	}

	gen := candidate.New(a.catalog, a.cfg.AutoIndexer.MinQueryThreshold)
	candidates, err := gen.Generate(ctx, a.schemaName, candidatesFromTelemetry(stats))
	if err != nil {
		logger.Error("tick: generating candidates failed", zap.Error(err))
		return
	}

	totalStorage, _ := a.catalog.TotalIndexSizeBytes(ctx, a.schemaName)

	for _, c := range candidates {
		exists, err := a.catalog.TableExists(ctx, a.schemaName, c.Table)
		if err != nil || !exists {
			continue
		}
		idxCount, _ := a.catalog.IndexCountForTable(ctx, a.schemaName, c.Table)

		scores := a.scorers.RunAll(ctx, c, scoring.Context{
			Schema:           a.schemaName,
			QueriesPerWindow: c.Count,
			ExistingIndexes:  idxCount,
		})
		heuristic, predictive := pick(scores)
		fusion := scoring.Fuse(heuristic, predictive, a.cfg.AutoIndexer.MLWeight)

		decision := a.optimizer.Evaluate(ctx, optimizer.Input{
			Table:                 c.Table,
			ImprovementPct:        heuristic.Score * 100,
			CurrentTableIdxCount:  idxCount,
			CurrentTotalStorageMB: float64(totalStorage) / (1024 * 1024),
			MaxTotalStorageMB:     a.cfg.StorageBudget.MaxStorageTotalMB,
			MaxIndexesPerTable:    a.cfg.WritePerformance.MaxIndexesPerTable,
			MinImprovementPct:     a.cfg.AutoIndexer.MinImprovementPct,
			ReadRatio:             0.8,
		})

		if !execute || !decision.Allow || !fusion.Decision {
			continue
		}

		result := a.executor.CreateIndex(ctx, executor.Plan{
			Schema: a.schemaName,
			Table:  c.Table,
			Fields: []string{c.Field},
		})
		if result.Err != nil {
			logger.Warn("tick: index creation failed", zap.String("table", c.Table), zap.String("field", c.Field), zap.Error(result.Err))
		} else if result.Applied {
			logger.Info("tick: index created", zap.String("table", c.Table), zap.String("index", result.IndexName))
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("execute", false, "Allow the advisor to actually create indexes, instead of observing only")
	serveCmd.Flags().Duration("tick-interval", time.Hour, "How often to run the scoring/optimizer pipeline")
}
