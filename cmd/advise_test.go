package cmd

import (
	"testing"

	"github.com/nethalo/indexadvisor/internal/scoring"
)

func TestAdviseCmd_Structure(t *testing.T) {
	if adviseCmd == nil {
		t.Fatal("adviseCmd should not be nil")
	}
	if adviseCmd.Use != "advise" {
		t.Errorf("adviseCmd.Use = %q, want %q", adviseCmd.Use, "advise")
	}
	if adviseCmd.Flags().Lookup("execute") == nil {
		t.Error("adviseCmd should have an --execute flag")
	}

	found := false
	for _, c := range rootCmd.Commands() {
		if c.Use == "advise" {
			found = true
		}
	}
	if !found {
		t.Error("advise command should be registered with root command")
	}
}

func TestPick_SeparatesHeuristicAndPredictive(t *testing.T) {
	scores := []scoring.Scoring{
		{Algorithm: "cert", Score: 0.1},
		{Algorithm: "heuristic", Score: 0.8},
		{Algorithm: "qpg", Score: 0.3},
		{Algorithm: "predictive", Score: 0.6},
		{Algorithm: "cortex", Score: 0.2},
	}

	heuristic, predictive := pick(scores)

	if heuristic.Algorithm != "heuristic" || heuristic.Score != 0.8 {
		t.Errorf("pick() heuristic = %+v, want Algorithm=heuristic Score=0.8", heuristic)
	}
	if predictive.Algorithm != "predictive" || predictive.Score != 0.6 {
		t.Errorf("pick() predictive = %+v, want Algorithm=predictive Score=0.6", predictive)
	}
}

func TestPick_MissingAlgorithmsZeroValue(t *testing.T) {
	heuristic, predictive := pick([]scoring.Scoring{{Algorithm: "cert", Score: 0.9}})
	if heuristic.Algorithm != "" {
		t.Errorf("pick() heuristic should be zero value when absent, got %+v", heuristic)
	}
	if predictive.Algorithm != "" {
		t.Errorf("pick() predictive should be zero value when absent, got %+v", predictive)
	}
}
