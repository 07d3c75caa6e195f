package scoring

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nethalo/indexadvisor/internal/candidate"
	"github.com/nethalo/indexadvisor/internal/config"
	"github.com/nethalo/indexadvisor/internal/dbx"
)

// PlanFlag is one observation QPG raises about a plan node.
type PlanFlag struct {
	Kind     string // expensive_node, slow_operation, expensive_join, sequential_scan_with_filter
	Severity string // low, medium, high
	NodeType string
	Detail   string
}

// QPGScorer analyzes a candidate's query plans for cost bottlenecks,
// diversity across alternative shapes, and logic-bug signatures.
// Grounded on original_source/src/algorithms (the QPG module referenced
// by predictive_indexing.py and query_interceptor.py's plan-node walk).
type QPGScorer struct {
	pool *dbx.Pool
	cfg  config.QPGConfig
}

func NewQPGScorer(pool *dbx.Pool, cfg config.QPGConfig) *QPGScorer {
	return &QPGScorer{pool: pool, cfg: cfg}
}

func (s *QPGScorer) Name() string { return "qpg" }

func (s *QPGScorer) Score(ctx context.Context, c candidate.Candidate, info Context) (Scoring, error) {
	if !s.cfg.Enabled {
		return Scoring{Reason: "qpg_disabled", Decision: true, Score: 0.5, Confidence: 0.3}, nil
	}

	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = NULL", quoteIdent(c.Table), quoteIdent(c.Field))
	raw, err := s.pool.Explain(ctx, query)
	if err != nil {
		return Scoring{}, fmt.Errorf("qpg: explain: %w", err)
	}

	plan, err := parseExplainJSON(raw)
	if err != nil {
		return Scoring{}, fmt.Errorf("qpg: parse plan: %w", err)
	}

	flags := walkPlanFlags(plan, 0, s.cfg.BottleneckAnalysisDepth)

	recommendations := make([]string, 0, len(flags))
	highSeverity := 0
	for _, f := range flags {
		tag := "[QPG]"
		if f.Kind == "statistics_mismatch" || f.Kind == "potential_cartesian_product" {
			tag = "[QPG Logic Bug]"
		}
		recommendations = append(recommendations, fmt.Sprintf("%s %s on %s: %s", tag, f.Kind, f.NodeType, f.Detail))
		if f.Severity == "high" {
			highSeverity++
		}
	}

	score := clamp01(1 - float64(highSeverity)*0.2 - float64(len(flags))*0.05)
	decision := highSeverity == 0

	return Scoring{
		Score:      score,
		Confidence: 0.7,
		Decision:   decision,
		Reason:     "plan_guidance",
		Details: map[string]any{
			"flags":           len(flags),
			"high_severity":   highSeverity,
			"recommendations": recommendations,
		},
	}, nil
}

// planNode mirrors the fields Postgres's EXPLAIN (FORMAT JSON) emits
// that QPG's heuristics consume.
type planNode struct {
	NodeType          string     `json:"Node Type"`
	TotalCost         float64    `json:"Total Cost"`
	PlanRows          float64    `json:"Plan Rows"`
	ActualTotalTime   *float64   `json:"Actual Total Time"`
	Filter            string     `json:"Filter"`
	JoinFilter        string     `json:"Join Filter"`
	Plans             []planNode `json:"Plans"`
}

type explainRoot struct {
	Plan planNode `json:"Plan"`
}

func parseExplainJSON(raw string) (planNode, error) {
	var docs []explainRoot
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return planNode{}, err
	}
	if len(docs) == 0 {
		return planNode{}, fmt.Errorf("empty explain output")
	}
	return docs[0].Plan, nil
}

// walkPlanFlags recurses the plan tree to the configured depth,
// matching the thresholds documented in SPEC_FULL.md §4.3.3.
func walkPlanFlags(node planNode, depth, maxDepth int) []PlanFlag {
	var flags []PlanFlag
	if maxDepth > 0 && depth > maxDepth {
		return flags
	}

	if node.PlanRows > 0 {
		costPerRow := node.TotalCost / node.PlanRows
		if costPerRow > 100 {
			sev := "medium"
			if costPerRow > 1000 {
				sev = "high"
			}
			flags = append(flags, PlanFlag{Kind: "expensive_node", Severity: sev, NodeType: node.NodeType, Detail: fmt.Sprintf("cost/row=%.1f", costPerRow)})
		}
	}

	if node.ActualTotalTime != nil && *node.ActualTotalTime > 100 {
		sev := "medium"
		if *node.ActualTotalTime > 1000 {
			sev = "high"
		}
		flags = append(flags, PlanFlag{Kind: "slow_operation", Severity: sev, NodeType: node.NodeType, Detail: fmt.Sprintf("actual_time=%.1fms", *node.ActualTotalTime)})
	}

	switch node.NodeType {
	case "Nested Loop", "Hash Join", "Merge Join":
		if node.TotalCost > 1000 {
			flags = append(flags, PlanFlag{Kind: "expensive_join", Severity: "medium", NodeType: node.NodeType, Detail: fmt.Sprintf("cost=%.1f", node.TotalCost)})
		}
		if node.NodeType == "Nested Loop" && node.JoinFilter == "" && node.PlanRows > 10000 {
			flags = append(flags, PlanFlag{Kind: "potential_cartesian_product", Severity: "high", NodeType: node.NodeType, Detail: "nested loop with no join filter"})
		}
	case "Seq Scan":
		if node.Filter != "" {
			flags = append(flags, PlanFlag{Kind: "sequential_scan_with_filter", Severity: "medium", NodeType: node.NodeType, Detail: node.Filter})
		}
	}

	if node.ActualTotalTime != nil {
		plannedVsActual := abs(node.TotalCost-*node.ActualTotalTime) / max1(maxOf(node.TotalCost, *node.ActualTotalTime))
		if plannedVsActual > 0.5 {
			sev := "medium"
			if plannedVsActual > 2.0 {
				sev = "high"
			}
			flags = append(flags, PlanFlag{Kind: "statistics_mismatch", Severity: sev, NodeType: node.NodeType, Detail: fmt.Sprintf("ratio=%.2f", plannedVsActual)})
		}
	}

	for _, child := range node.Plans {
		flags = append(flags, walkPlanFlags(child, depth+1, maxDepth)...)
	}
	return flags
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}

// PlanDiversity computes the spread in total cost across alternative
// plan shapes for the same query, per SPEC_FULL.md §4.3.3:
// (max_cost - min_cost) / max_cost. Used when diverse_plan_generation is
// enabled and multiple candidate plans were collected for comparison.
func PlanDiversity(costs []float64) float64 {
	if len(costs) == 0 {
		return 0
	}
	min, max := costs[0], costs[0]
	for _, c := range costs[1:] {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	if max == 0 {
		return 0
	}
	return (max - min) / max
}
