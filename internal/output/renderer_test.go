package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nethalo/indexadvisor/internal/candidate"
	"github.com/nethalo/indexadvisor/internal/catalog"
	"github.com/nethalo/indexadvisor/internal/executor"
	"github.com/nethalo/indexadvisor/internal/optimizer"
	"github.com/nethalo/indexadvisor/internal/safety"
	"github.com/nethalo/indexadvisor/internal/schema"
	"github.com/nethalo/indexadvisor/internal/scoring"
)

// =============================================================
// Test Fixtures
// =============================================================

func candidateScoring() scoring.Scoring {
	return scoring.Scoring{
		Algorithm:  "heuristic",
		Score:      0.82,
		Confidence: 0.9,
		Decision:   true,
		Reason:     "benefit/build_cost > 1",
		Details:    map[string]any{"build_cost": 120.0, "benefit": 340.0},
	}
}

func certScoring() scoring.Scoring {
	return scoring.Scoring{
		Algorithm:  "cert",
		Score:      0.6,
		Confidence: 1.0,
		Decision:   true,
		Reason:     "selectivity within tolerance",
	}
}

func adviseReport() AdviseReport {
	return AdviseReport{
		Schema: "public",
		DryRun: false,
		Candidates: []CandidateReport{
			{
				Candidate: candidate.Candidate{
					Table:       "contacts",
					Field:       "email",
					Clause:      "where",
					Count:       5000,
					AvgMs:       42.5,
					P95Ms:       110.0,
					P99Ms:       180.0,
					TenantCount: 3,
				},
				Scores: []scoring.Scoring{candidateScoring(), certScoring()},
				Fusion: scoring.FusionResult{
					Decision:   true,
					Combined:   0.76,
					Confidence: 0.88,
					ReasonTag:  "heuristic_confirmed",
				},
				Decision: optimizer.Decision{
					Allow:      true,
					Overall:    0.71,
					Confidence: 0.85,
					Reason:     "all constraints satisfied",
					Constraints: map[string]optimizer.ConstraintResult{
						"storage": {Satisfied: true, Reason: "within budget", Score: 0.9},
					},
				},
				Exec: &executor.Result{
					Applied:     true,
					IndexName:   "idx_contacts_email",
					Attempts:    1,
					RollbackSQL: `DROP INDEX IF EXISTS "idx_contacts_email";`,
				},
			},
			{
				Candidate: candidate.Candidate{
					Table:  "orders",
					Field:  "status",
					Clause: "where",
					Count:  800,
				},
				Scores: []scoring.Scoring{candidateScoring()},
				Fusion: scoring.FusionResult{Decision: false, Combined: 0.3, Confidence: 0.5, ReasonTag: "heuristic_only_below_threshold"},
				Decision: optimizer.Decision{
					Allow:   false,
					Overall: 0.2,
					Reason:  "performance constraint unsatisfied",
				},
				Exec: nil,
			},
		},
	}
}

func schemaPreviewReport() SchemaReport {
	return SchemaReport{
		Preview: &schema.Preview{
			Table: "contacts",
			Field: "email",
			Kind:  schema.DropColumn,
			Valid: false,
			Errors: []string{
				"Cannot drop column email: 1 indexes depend on it",
			},
			Impact: schema.Impact{
				Table:           "contacts",
				Field:           "email",
				Kind:            schema.DropColumn,
				AffectedQueries: 1200,
				TenantCount:     4,
				AvgDurationMs:   12.3,
				P95DurationMs:   55.0,
				AffectedIndexes: []catalog.Index{{Name: "idx_contacts_email", Table: "contacts", Columns: []string{"email"}}},
				Warnings:        []string{"high query volume (>1000/wk)"},
				Errors:          []string{"Cannot drop column email: 1 indexes depend on it"},
			},
			RollbackPlan: schema.RollbackPlan{
				ChangeKind:   schema.DropColumn,
				Table:        "contacts",
				Field:        "email",
				RollbackSQL:  `ALTER TABLE "contacts" ADD COLUMN "email" TEXT;`,
				Instructions: []string{"Data cannot be restored"},
			},
		},
	}
}

func schemaResultReport() SchemaReport {
	return SchemaReport{
		Result: &schema.Result{
			Success: true,
			Table:   "contacts",
			Field:   "last_seen_at",
			Impact: schema.Impact{
				Table: "contacts",
				Field: "last_seen_at",
				Kind:  schema.AddColumn,
			},
			RollbackPlan: schema.RollbackPlan{
				ChangeKind:  schema.AddColumn,
				Table:       "contacts",
				Field:       "last_seen_at",
				RollbackSQL: `ALTER TABLE "contacts" DROP COLUMN "last_seen_at";`,
			},
		},
	}
}

func statusReport() StatusReport {
	return StatusReport{
		Switches: map[string]bool{
			"auto_indexing":    true,
			"stats_collection": true,
			"interceptor":      false,
		},
		InterceptorMetrics: InterceptorMetricsView{
			TotalInterceptions: 10523,
			TotalBlocked:       41,
			TotalAnalyzed:      9800,
			CacheHits:          9200,
			CacheMisses:        600,
			BlockedByReason: map[string]int64{
				"SEQUENTIAL_SCAN_TOO_EXPENSIVE": 30,
				"QUERY_COST_TOO_HIGH":           11,
			},
		},
		RateLimiter: map[string]safety.Stats{
			"query": {Remaining: 954, ResetIn: 37 * time.Second, Limit: 1000},
		},
		LastGateDecision: &safety.Decision{
			Allow:  false,
			Reason: "outside maintenance window",
			Checks: map[string]string{"maintenance_window": "seconds_until_window=14400"},
		},
		Maintenance: &MaintenanceView{
			DatabaseHealthy:  true,
			DatabaseLatency:  "2ms",
			PoolAcquired:     3,
			PoolIdle:         7,
			PoolMax:          10,
			OrphanedFields:   []string{"contacts.old_field: column no longer exists"},
			PredictedReindex: []string{"idx_contacts_email on contacts: 1048576 -> 2097152 bytes (12345/day, medium confidence)"},
		},
	}
}

// =============================================================
// JSON renderer
// =============================================================

func TestJSONRenderer_RenderAdvise(t *testing.T) {
	var buf bytes.Buffer
	r := &JSONRenderer{w: &buf}
	r.RenderAdvise(adviseReport())

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("RenderAdvise did not emit valid JSON: %v\n%s", err, buf.String())
	}
	if decoded["schema"] != "public" {
		t.Errorf("schema = %v, want public", decoded["schema"])
	}
	candidates, ok := decoded["candidates"].([]any)
	if !ok || len(candidates) != 2 {
		t.Fatalf("candidates = %v, want 2 entries", decoded["candidates"])
	}
}

func TestJSONRenderer_RenderSchema(t *testing.T) {
	var buf bytes.Buffer
	r := &JSONRenderer{w: &buf}
	r.RenderSchema(schemaPreviewReport())

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("RenderSchema did not emit valid JSON: %v\n%s", err, buf.String())
	}
}

func TestJSONRenderer_RenderStatus(t *testing.T) {
	var buf bytes.Buffer
	r := &JSONRenderer{w: &buf}
	r.RenderStatus(statusReport())

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("RenderStatus did not emit valid JSON: %v\n%s", err, buf.String())
	}
}

// =============================================================
// Markdown renderer
// =============================================================

func TestMarkdownRenderer_RenderAdvise(t *testing.T) {
	var buf bytes.Buffer
	r := &MarkdownRenderer{w: &buf}
	r.RenderAdvise(adviseReport())

	out := buf.String()
	for _, want := range []string{"contacts", "email", "orders"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown output missing %q:\n%s", want, out)
		}
	}
}

func TestMarkdownRenderer_RenderSchema(t *testing.T) {
	var buf bytes.Buffer
	r := &MarkdownRenderer{w: &buf}
	r.RenderSchema(schemaPreviewReport())

	out := buf.String()
	if !strings.Contains(out, "indexes depend on it") {
		t.Errorf("markdown output missing preflight error:\n%s", out)
	}
}

func TestMarkdownRenderer_RenderStatus(t *testing.T) {
	var buf bytes.Buffer
	r := &MarkdownRenderer{w: &buf}
	r.RenderStatus(statusReport())

	out := buf.String()
	if !strings.Contains(out, "auto_indexing") {
		t.Errorf("markdown output missing switch name:\n%s", out)
	}
	if !strings.Contains(out, "Predicted bloat") {
		t.Errorf("markdown output missing predicted reindex entry:\n%s", out)
	}
}

// =============================================================
// Plain renderer
// =============================================================

func TestPlainRenderer_RenderAdvise(t *testing.T) {
	var buf bytes.Buffer
	r := &PlainRenderer{w: &buf}
	r.RenderAdvise(adviseReport())

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Errorf("plain renderer must not emit ANSI escapes:\n%q", out)
	}
	if !strings.Contains(out, "contacts") {
		t.Errorf("plain output missing table name:\n%s", out)
	}
}

func TestPlainRenderer_RenderSchema(t *testing.T) {
	var buf bytes.Buffer
	r := &PlainRenderer{w: &buf}
	r.RenderSchema(schemaResultReport())

	out := buf.String()
	if !strings.Contains(out, "last_seen_at") {
		t.Errorf("plain output missing field name:\n%s", out)
	}
}

func TestPlainRenderer_RenderStatus(t *testing.T) {
	var buf bytes.Buffer
	r := &PlainRenderer{w: &buf}
	r.RenderStatus(statusReport())

	out := buf.String()
	if !strings.Contains(out, "maintenance window") {
		t.Errorf("plain output missing gate reason:\n%s", out)
	}
}

// =============================================================
// Lipgloss text renderer
// =============================================================

func TestTextRenderer_RenderAdvise(t *testing.T) {
	var buf bytes.Buffer
	r := &TextRenderer{w: &buf}
	r.RenderAdvise(adviseReport())

	if buf.Len() == 0 {
		t.Fatal("RenderAdvise produced no output")
	}
}

func TestTextRenderer_RenderSchema(t *testing.T) {
	var buf bytes.Buffer
	r := &TextRenderer{w: &buf}
	r.RenderSchema(schemaPreviewReport())

	if buf.Len() == 0 {
		t.Fatal("RenderSchema produced no output")
	}
}

func TestTextRenderer_RenderStatus(t *testing.T) {
	var buf bytes.Buffer
	r := &TextRenderer{w: &buf}
	r.RenderStatus(statusReport())

	if buf.Len() == 0 {
		t.Fatal("RenderStatus produced no output")
	}
}

// =============================================================
// NewRenderer factory
// =============================================================

func TestNewRenderer_SelectsByFormat(t *testing.T) {
	var buf bytes.Buffer

	if _, ok := NewRenderer("json", &buf).(*JSONRenderer); !ok {
		t.Error(`NewRenderer("json") did not return *JSONRenderer`)
	}
	if _, ok := NewRenderer("markdown", &buf).(*MarkdownRenderer); !ok {
		t.Error(`NewRenderer("markdown") did not return *MarkdownRenderer`)
	}
	if _, ok := NewRenderer("plain", &buf).(*PlainRenderer); !ok {
		t.Error(`NewRenderer("plain") did not return *PlainRenderer`)
	}
	if _, ok := NewRenderer("text", &buf).(*TextRenderer); !ok {
		t.Error(`NewRenderer("text") did not return *TextRenderer`)
	}
	if _, ok := NewRenderer("bogus-format", &buf).(*TextRenderer); !ok {
		t.Error(`NewRenderer("bogus-format") should default to *TextRenderer`)
	}
}
