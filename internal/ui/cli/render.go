package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"cprqa/internal/core/ports"
	"cprqa/internal/data/reports"
	"cprqa/internal/engine/scoring"
	"cprqa/internal/engine/wizard"
	"cprqa/internal/shared/util"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	greenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	yellowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	redStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

// emit writes v in the requested format. text renders the human view.
func emit(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		return writeYAML(w, v)
	default:
		text(w)
		return nil
	}
}

// writeYAML goes through JSON first so json tags and custom marshalers
// shape the YAML keys too.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func bandStyle(band scoring.Band) lipgloss.Style {
	switch band {
	case scoring.BandGreen:
		return greenStyle
	case scoring.BandYellow:
		return yellowStyle
	}
	return redStyle
}

func statusStyle(status reports.Status) lipgloss.Style {
	switch status {
	case reports.StatusComplete:
		return greenStyle
	case reports.StatusFailed:
		return redStyle
	}
	return yellowStyle
}

func renderReport(w io.Writer, r *reports.Report) {
	fmt.Fprintln(w, titleStyle.Render("Report "+r.ID))
	fmt.Fprintf(w, "  kind:      %s\n", r.Kind)
	fmt.Fprintf(w, "  status:    %s\n", statusStyle(r.Status).Render(string(r.Status)))
	if r.Error != "" {
		fmt.Fprintf(w, "  error:     %s\n", r.Error)
	}
	if r.EventDate != "" {
		fmt.Fprintf(w, "  date:      %s\n", r.EventDate)
	}
	fmt.Fprintf(w, "  artifact:  %s\n", r.ArtifactPath)
	if r.Score != nil {
		fmt.Fprintf(w, "  jcls:      %s\n", scoreBadge(r.Score))
	}
	for _, id := range util.SortedStringKeys(r.Wizards) {
		st := r.Wizards[id]
		fmt.Fprintf(w, "  wizard %-4s %s %.1f%%\n", id, st.Status, st.CompletionPercent)
	}
}

func scoreBadge(res *scoring.Result) string {
	return bandStyle(res.ColorBand).Render(fmt.Sprintf("%d/100 (%s)", res.Score, res.ColorBand))
}

func renderScore(w io.Writer, res *scoring.Result) {
	fmt.Fprintln(w, titleStyle.Render("JcLS score"))
	fmt.Fprintf(w, "  score:     %s\n", scoreBadge(res))
	fmt.Fprintf(w, "  raw:       %d of %d available points\n", res.RawScore, res.AvailablePoints)
	tiers := []struct {
		name        string
		earned, max int
	}{
		{res.Tier1.Name, res.Tier1.Earned, res.Tier1.Max},
		{res.Tier2.Name, res.Tier2.Earned, res.Tier2.Max},
		{res.Tier3.Name, res.Tier3.Earned, res.Tier3.Max},
		{res.Tier4.Name, res.Tier4.Earned, res.Tier4.Max},
	}
	for _, tier := range tiers {
		line := fmt.Sprintf("  %-28s %2d/%-2d", tier.name, tier.earned, tier.max)
		if tier.max == 0 {
			line = mutedStyle.Render(line + " not recorded")
		}
		fmt.Fprintln(w, line)
	}
}

func renderReportList(w io.Writer, list []*reports.Report) {
	if len(list) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no reports"))
		return
	}
	for _, r := range list {
		score := mutedStyle.Render("-")
		if r.Score != nil {
			score = scoreBadge(r.Score)
		}
		fmt.Fprintf(w, "%s  %-10s %-9s %-10s %s\n",
			r.ID, r.Kind, statusStyle(r.Status).Render(string(r.Status)), r.EventDate, score)
	}
}

func renderSummary(w io.Writer, s wizard.Summary) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s wizard for %s", s.TemplateName, s.ReportID)))
	progress := fmt.Sprintf("%.1f%%", s.CompletionPercent)
	if s.Status == wizard.StatusComplete {
		progress = greenStyle.Render(progress)
	}
	fmt.Fprintf(w, "  status:    %s, page %d of %d, %s\n", s.Status, s.CurrentPage, s.TotalPages, progress)
	for _, page := range s.Pages {
		marker := " "
		if page.AutoFilled {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %2d %-30s %-12s %d/%d\n", marker, page.PageID, page.PageLabel, page.Status, page.FieldsFilled, page.FieldsTotal)
	}
	if len(s.MissingRequired) > 0 {
		fmt.Fprintln(w, redStyle.Render("  missing required: "+strings.Join(s.MissingRequired, ", ")))
	}
}

func renderProblems(w io.Writer, problems []string) {
	if len(problems) == 0 {
		fmt.Fprintln(w, greenStyle.Render("page saved"))
		return
	}
	fmt.Fprintln(w, yellowStyle.Render(fmt.Sprintf("page saved with %d problem(s)", len(problems))))
	for _, p := range problems {
		fmt.Fprintf(w, "  - %s\n", p)
	}
}

func renderField(w io.Writer, fv wizard.FieldValue) {
	fmt.Fprintf(w, "%s = %q (%s, %s)\n", fv.FieldID, fv.Value, fv.State, fv.Provenance)
}

func renderValidation(w io.Writer, results map[string][]string) {
	ids := util.SortedStringKeys(results)
	if len(ids) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no templates checked"))
	}
	for _, id := range ids {
		warnings := results[id]
		if len(warnings) == 0 {
			fmt.Fprintf(w, "%s %s\n", id, greenStyle.Render("ok"))
			continue
		}
		fmt.Fprintf(w, "%s %s\n", id, yellowStyle.Render(fmt.Sprintf("%d warning(s)", len(warnings))))
		for _, warning := range warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
}

func renderHealth(w io.Writer, h ports.HealthStatus) {
	style := greenStyle
	if h.Status != "up" {
		style = yellowStyle
	}
	fmt.Fprintf(w, "%s tenant=%s\n", style.Render(h.Status), h.Tenant)
	for _, k := range util.SortedStringKeys(h.Components) {
		fmt.Fprintf(w, "  %-16s %s\n", k, h.Components[k])
	}
}
