package app

import (
	"log/slog"

	"cprqa/internal/core/config"
	"cprqa/internal/data/reports"
	"cprqa/internal/engine/ingest"
	"cprqa/internal/engine/wizard"
)

// autofillSources returns the autofill maps for a template, highest priority first.
func (a *App) autofillSources(templateID string, r *reports.Report) []map[string]any {
	switch templateID {
	case config.TemplatePCO:
		sources := []map[string]any{r.Payload.Values()}
		if r.Metrics != nil {
			sources = append(sources, pcoMetricFields(&r.Metrics.Summary))
		}
		return sources
	case config.TemplateMaster:
		if r.EventDate == "" {
			return nil
		}
		return []map[string]any{{a.Config.Wizard.AutofillDateField: r.EventDate}}
	}
	return nil
}

func pcoMetricFields(s *ingest.SummaryMetrics) map[string]any {
	return map[string]any{
		"cr_duration": s.Duration.Value(),
		"cr_comprtag": s.CompressionRate.Value(),
		"cr_cmpfrag":  s.CompressionFraction.Value(),
	}
}

// initWizards builds a fresh state for every configured template. A template
// that fails to load is skipped with a warning.
func (a *App) initWizards(r *reports.Report) {
	for _, templateID := range a.Config.Wizard.Templates {
		def, err := a.schemas.Get(templateID)
		if err != nil {
			slog.Warn("wizard initialization skipped", "report_id", r.ID, "template", templateID, "error", err)
			continue
		}
		m := wizard.New(def, wizard.WithClock(a.now))
		r.SetWizard(m.Initialize(r.ID, a.autofillSources(templateID, r)...))
	}
}
