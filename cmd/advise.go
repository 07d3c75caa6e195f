package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nethalo/indexadvisor/internal/candidate"
	"github.com/nethalo/indexadvisor/internal/executor"
	"github.com/nethalo/indexadvisor/internal/optimizer"
	"github.com/nethalo/indexadvisor/internal/output"
	"github.com/nethalo/indexadvisor/internal/scoring"
)

var adviseCmd = &cobra.Command{
	Use:          "advise",
	Short:        "Run one advisor tick: score telemetry and propose or create indexes",
	SilenceUsage: true,
	Long: `advise reads the telemetry window collected since the last run, turns
it into index candidates, scores each with the full algorithm ensemble,
fuses the result, and runs the constraint optimizer.

By default this is read-only: nothing is created. Pass --execute to let the
mutation executor actually create the indexes the optimizer allows, subject
to the safety gate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, schemaName, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		execute, _ := cmd.Flags().GetBool("execute")
		logger := newLogger(verbose)
		defer logger.Sync()

		ctx := context.Background()
		a, err := newApp(ctx, cfg, logger, schemaName)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ensureSchema(ctx); err != nil {
			return err
		}

		if !a.switches.Snapshot().RequireEnabled("auto_indexing") {
			return fmt.Errorf("auto_indexing is disabled via runtime switch; nothing to advise")
		}

		stats, err := a.telemetry.LoadWindow(ctx, time.Now().Add(-a.cfg.AutoIndexer.WindowDuration))
		if err != nil {
			return fmt.Errorf("loading telemetry window: %w", err)
		}

		gen := candidate.New(a.catalog, a.cfg.AutoIndexer.MinQueryThreshold)
		candidates, err := gen.Generate(ctx, schemaName, candidatesFromTelemetry(stats))
		if err != nil {
			return fmt.Errorf("generating candidates: %w", err)
		}

		totalStorage, err := a.catalog.TotalIndexSizeBytes(ctx, schemaName)
		if err != nil {
			logger.Warn("failed to read total index storage, continuing with zero", zap.Error(err))
		}

		report := output.AdviseReport{Schema: schemaName, DryRun: !execute}

		for _, c := range candidates {
			exists, err := a.catalog.TableExists(ctx, schemaName, c.Table)
			if err != nil || !exists {
				continue
			}

			idxCount, _ := a.catalog.IndexCountForTable(ctx, schemaName, c.Table)

			scoreCtx := scoring.Context{
				Schema:           schemaName,
				QueriesPerWindow: c.Count,
				ExistingIndexes:  idxCount,
			}
			scores := a.scorers.RunAll(ctx, c, scoreCtx)

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

			cr := output.CandidateReport{Candidate: c, Scores: scores, Fusion: fusion, Decision: decision}

			if execute && decision.Allow && fusion.Decision {
				result := a.executor.CreateIndex(ctx, executor.Plan{
					Schema: schemaName,
					Table:  c.Table,
					Fields: []string{c.Field},
				})
				cr.Exec = &result
			}

			report.Candidates = append(report.Candidates, cr)
		}

		format, _ := cmd.Flags().GetString("format")
		output.NewRenderer(format, os.Stdout).RenderAdvise(report)

		return nil
	},
}

// pick separates the heuristic and predictive scorings out of the
// ensemble's results by algorithm name, since Fuse needs exactly those
// two regardless of how many other scorers ran alongside them.
func pick(scores []scoring.Scoring) (heuristic, predictive scoring.Scoring) {
	for _, s := range scores {
		switch s.Algorithm {
		case "heuristic":
			heuristic = s
		case "predictive":
			predictive = s
		}
	}
	return heuristic, predictive
}

func init() {
	rootCmd.AddCommand(adviseCmd)
	adviseCmd.Flags().Bool("execute", false, "Actually create indexes the optimizer allows, instead of only reporting them")
}
