package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nethalo/indexadvisor/internal/schema"
)

// TextRenderer produces Lip Gloss styled terminal output.
type TextRenderer struct {
	w io.Writer
}

func (r *TextRenderer) RenderAdvise(report AdviseReport) {
	width := 64
	fmt.Fprintln(r.w)

	mode := "live"
	if report.DryRun {
		mode = "dry run"
	}
	header := TitleStyle.Render(fmt.Sprintf("Index Advisor — %s (%s)", report.Schema, mode))
	fmt.Fprintln(r.w, header)

	if len(report.Candidates) == 0 {
		fmt.Fprintln(r.w, MutedText.Render("No candidates crossed the observation threshold this tick."))
		return
	}

	for _, cr := range report.Candidates {
		c := cr.Candidate
		lines := []string{
			r.labelValue("Clause:", c.Clause),
			r.labelValue("Count:", fmt.Sprintf("~%s", formatNumber(c.Count))),
			r.labelValue("Avg/P95/P99 ms:", fmt.Sprintf("%.1f / %.1f / %.1f", c.AvgMs, c.P95Ms, c.P99Ms)),
			r.labelValue("Tenants:", fmt.Sprintf("%d", c.TenantCount)),
		}
		title := TitleStyle.Render(fmt.Sprintf("%s.%s", c.Table, c.Field))
		box := BoxStyle.Width(width).Render(title + "\n" + strings.Join(lines, "\n"))
		fmt.Fprintln(r.w, box)

		if len(cr.Scores) > 0 {
			var scoreLines []string
			for _, s := range cr.Scores {
				scoreLines = append(scoreLines, r.labelValue(s.Algorithm+":", fmt.Sprintf("%.2f (conf %.2f) %s", s.Score, s.Confidence, s.Reason)))
			}
			scoreBox := BoxStyle.Width(width).Render(TitleStyle.Render("Scores") + "\n" + strings.Join(scoreLines, "\n"))
			fmt.Fprintln(r.w, scoreBox)
		}

		decStyle := r.decisionStyle(cr.Decision.Allow)
		decContent := fmt.Sprintf("%s\nAllow: %v  Overall: %.2f\n%s",
			TitleStyle.Render("Optimizer Decision"), cr.Decision.Allow, cr.Decision.Overall, cr.Decision.Reason)
		fmt.Fprintln(r.w, decStyle.Width(width).Render(decContent))

		if cr.Exec != nil {
			execStyle := SafeBoxStyle
			var execLine string
			switch {
			case cr.Exec.Err != nil:
				execStyle = DangerBoxStyle
				execLine = fmt.Sprintf("%s Failed after %d attempt(s): %s", IconDanger, cr.Exec.Attempts, cr.Exec.Err)
			case cr.Exec.Skipped:
				execLine = fmt.Sprintf("%s already exists, skipped", cr.Exec.IndexName)
			default:
				execLine = fmt.Sprintf("%s Created %s in %d attempt(s)", IconSafe, cr.Exec.IndexName, cr.Exec.Attempts)
			}
			fmt.Fprintln(r.w, execStyle.Width(width).Render(TitleStyle.Render("Execution")+"\n"+execLine))
		}
		fmt.Fprintln(r.w)
	}
}

func (r *TextRenderer) decisionStyle(allow bool) lipgloss.Style {
	if allow {
		return SafeBoxStyle
	}
	return WarningBoxStyle
}

// labelValue renders a left-aligned label/value pair.
func (r *TextRenderer) labelValue(label, value string) string {
	return LabelStyle.Render(label) + " " + ValueStyle.Render(value)
}

func (r *TextRenderer) RenderSchema(report SchemaReport) {
	width := 64
	fmt.Fprintln(r.w)

	var table, field string
	var impact schema.Impact
	var rollbackSQL string
	var instructions []string

	switch {
	case report.Preview != nil:
		p := report.Preview
		table, field, impact, rollbackSQL, instructions = p.Table, p.Field, p.Impact, p.RollbackPlan.RollbackSQL, p.RollbackPlan.Instructions
		style := SafeBoxStyle
		if !p.Valid {
			style = DangerBoxStyle
		}
		lines := []string{r.labelValue("Target:", fmt.Sprintf("%s.%s", table, field)), r.labelValue("Kind:", string(p.Kind)), r.labelValue("Valid:", fmt.Sprintf("%v", p.Valid))}
		fkErrSet := make(map[string]bool, len(p.Impact.FKErrors))
		for _, e := range p.Impact.FKErrors {
			fkErrSet[e] = true
			lines = append(lines, BlockedText.Render(IconBlocked+" "+e))
		}
		for _, e := range p.Errors {
			if fkErrSet[e] {
				continue
			}
			lines = append(lines, DangerText.Render(IconDanger+" "+e))
		}
		title := TitleStyle.Render("Schema Change Preview")
		fmt.Fprintln(r.w, style.Width(width).Render(title+"\n"+strings.Join(lines, "\n")))
	case report.Result != nil:
		res := report.Result
		table, field, impact, rollbackSQL, instructions = res.Table, res.Field, res.Impact, res.RollbackPlan.RollbackSQL, res.RollbackPlan.Instructions
		style := SafeBoxStyle
		if !res.Success {
			style = DangerBoxStyle
		}
		lines := []string{r.labelValue("Target:", fmt.Sprintf("%s.%s", table, field)), r.labelValue("Success:", fmt.Sprintf("%v", res.Success))}
		if len(res.DroppedIndexes) > 0 {
			lines = append(lines, r.labelValue("Dropped indexes:", strings.Join(res.DroppedIndexes, ", ")))
		}
		title := TitleStyle.Render("Schema Change Result")
		fmt.Fprintln(r.w, style.Width(width).Render(title+"\n"+strings.Join(lines, "\n")))
	}

	impactLines := []string{
		r.labelValue("Affected queries:", formatNumber(impact.AffectedQueries)),
		r.labelValue("Tenants touched:", fmt.Sprintf("%d", impact.TenantCount)),
		r.labelValue("Avg/P95 ms:", fmt.Sprintf("%.1f / %.1f", impact.AvgDurationMs, impact.P95DurationMs)),
		r.labelValue("Dependent idx/FK:", fmt.Sprintf("%d / %d", len(impact.AffectedIndexes), len(impact.ForeignKeys))),
	}
	fmt.Fprintln(r.w, BoxStyle.Width(width).Render(TitleStyle.Render("Impact")+"\n"+strings.Join(impactLines, "\n")))

	if len(impact.Warnings) > 0 {
		var ws []string
		for _, w := range impact.Warnings {
			ws = append(ws, w)
		}
		fmt.Fprintln(r.w, WarningBoxStyle.Width(width).Render(WarningText.Render(IconWarning+" Warnings")+"\n"+strings.Join(ws, "\n")))
	}

	var rbContent strings.Builder
	rbContent.WriteString(TitleStyle.Render("Rollback") + "\n")
	if rollbackSQL != "" {
		rbContent.WriteString(CodeStyle.Render(rollbackSQL) + "\n")
	}
	for _, instr := range instructions {
		rbContent.WriteString(MutedText.Render("- "+instr) + "\n")
	}
	fmt.Fprintln(r.w, BoxStyle.Width(width).Render(rbContent.String()))
	fmt.Fprintln(r.w)
}

func (r *TextRenderer) RenderStatus(report StatusReport) {
	width := 64
	fmt.Fprintln(r.w)

	var swLines []string
	for _, name := range switchOrder {
		if v, ok := report.Switches[name]; ok {
			valStyle := SafeText
			if !v {
				valStyle = DangerText
			}
			swLines = append(swLines, LabelStyle.Render(name+":")+" "+valStyle.Render(fmt.Sprintf("%v", v)))
		}
	}
	fmt.Fprintln(r.w, BoxStyle.Width(width).Render(TitleStyle.Render("Runtime Switches")+"\n"+strings.Join(swLines, "\n")))

	m := report.InterceptorMetrics
	interLines := []string{
		r.labelValue("Interceptions:", fmt.Sprintf("%d", m.TotalInterceptions)),
		r.labelValue("Blocked:", fmt.Sprintf("%d", m.TotalBlocked)),
		r.labelValue("Analyzed:", fmt.Sprintf("%d", m.TotalAnalyzed)),
		r.labelValue("Cache hit/miss:", fmt.Sprintf("%d / %d", m.CacheHits, m.CacheMisses)),
	}
	fmt.Fprintln(r.w, BoxStyle.Width(width).Render(TitleStyle.Render("Interceptor")+"\n"+strings.Join(interLines, "\n")))

	if report.LastGateDecision != nil {
		d := report.LastGateDecision
		style := SafeBoxStyle
		if !d.Allow {
			style = DangerBoxStyle
		}
		lines := []string{r.labelValue("Allow:", fmt.Sprintf("%v", d.Allow)), r.labelValue("Reason:", d.Reason)}
		fmt.Fprintln(r.w, style.Width(width).Render(TitleStyle.Render("Last Safety Gate Decision")+"\n"+strings.Join(lines, "\n")))
	}

	if mv := report.Maintenance; mv != nil {
		style := SafeBoxStyle
		if !mv.DatabaseHealthy || len(mv.Errors) > 0 {
			style = DangerBoxStyle
		} else if len(mv.Warnings) > 0 || len(mv.PredictedReindex) > 0 {
			style = WarningBoxStyle
		}
		lines := []string{
			r.labelValue("DB healthy:", fmt.Sprintf("%v (%s)", mv.DatabaseHealthy, mv.DatabaseLatency)),
			r.labelValue("Pool acq/idle/max:", fmt.Sprintf("%d / %d / %d", mv.PoolAcquired, mv.PoolIdle, mv.PoolMax)),
		}
		for _, of := range mv.OrphanedFields {
			lines = append(lines, WarningText.Render(IconWarning+" "+of))
		}
		for _, pr := range mv.PredictedReindex {
			lines = append(lines, BloatText.Render(IconBloat+" "+pr))
		}
		for _, e := range mv.Errors {
			lines = append(lines, DangerText.Render(IconDanger+" "+e))
		}
		fmt.Fprintln(r.w, style.Width(width).Render(TitleStyle.Render("Maintenance")+"\n"+strings.Join(lines, "\n")))
	}

	fmt.Fprintln(r.w)
}

func formatNumber(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.0f,000,000,000+", float64(n)/1_000_000_000)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}
