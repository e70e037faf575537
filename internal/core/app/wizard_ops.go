package app

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domainerrors "cprqa/internal/core/errors"
	"cprqa/internal/data/reports"
	"cprqa/internal/engine/wizard"
	"cprqa/internal/shared/observability"
)

// wizardSession is one loaded report with the machine and state for a template.
type wizardSession struct {
	report  *reports.Report
	machine *wizard.Machine
	state   *wizard.State
	fresh   bool
}

// openWizard loads the report and its wizard state, initializing the state
// from the report when it was never created.
func (a *App) openWizard(ctx context.Context, reportID, templateID string) (*wizardSession, error) {
	r, err := a.store.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	def, err := a.schemas.Get(templateID)
	if err != nil {
		return nil, wizardError(err, reportID, templateID)
	}
	m := wizard.New(def, wizard.WithClock(a.now))

	sess := &wizardSession{report: r, machine: m, state: r.Wizard(templateID)}
	if sess.state == nil {
		sess.state = m.Initialize(r.ID, a.autofillSources(templateID, r)...)
		sess.fresh = true
	}
	return sess, nil
}

func (a *App) saveWizard(ctx context.Context, sess *wizardSession) error {
	sess.report.SetWizard(sess.state)
	if err := a.store.Save(ctx, sess.report); err != nil {
		return domainerrors.AddContext(err, domainerrors.CtxReport, sess.report.ID)
	}
	return nil
}

func startWizardSpan(ctx context.Context, op, reportID, templateID string) (context.Context, trace.Span) {
	return observability.Tracer.Start(ctx, "reportService."+op, trace.WithAttributes(
		attribute.String("report_id", reportID),
		attribute.String("template", templateID),
	))
}

// SavePage stores one page. Validation messages come back as a value; the
// valid fields on the page are persisted regardless.
func (s *reportService) SavePage(ctx context.Context, reportID, templateID string, pageID int, inputs map[string]wizard.Input) ([]string, error) {
	ctx, span := startWizardSpan(ctx, "SavePage", reportID, templateID)
	defer span.End()

	a := s.app
	sess, err := a.openWizard(ctx, reportID, templateID)
	if err != nil {
		return nil, err
	}
	problems, err := sess.machine.SavePage(sess.state, pageID, inputs)
	if err != nil {
		return nil, wizardError(err, reportID, templateID)
	}
	if err := a.saveWizard(ctx, sess); err != nil {
		return nil, err
	}
	a.activity.Record(ctx, sess.report.Tenant, "wizard_save", map[string]any{
		"report_id": reportID, "template": templateID, "page": pageID, "errors": len(problems),
	})
	return problems, nil
}

func (s *reportService) UpsertField(ctx context.Context, reportID, templateID, fieldID string, value any) (wizard.FieldValue, error) {
	ctx, span := startWizardSpan(ctx, "UpsertField", reportID, templateID)
	defer span.End()

	return s.mutateField(ctx, reportID, templateID, func(sess *wizardSession) (wizard.FieldValue, error) {
		return sess.machine.Upsert(sess.state, fieldID, value, wizard.ProvenanceManual, "")
	})
}

func (s *reportService) MarkCNO(ctx context.Context, reportID, templateID, fieldID, reason string) (wizard.FieldValue, error) {
	ctx, span := startWizardSpan(ctx, "MarkCNO", reportID, templateID)
	defer span.End()

	return s.mutateField(ctx, reportID, templateID, func(sess *wizardSession) (wizard.FieldValue, error) {
		return sess.machine.MarkCNO(sess.state, fieldID, reason)
	})
}

func (s *reportService) ClearCNO(ctx context.Context, reportID, templateID, fieldID string) (wizard.FieldValue, error) {
	ctx, span := startWizardSpan(ctx, "ClearCNO", reportID, templateID)
	defer span.End()

	return s.mutateField(ctx, reportID, templateID, func(sess *wizardSession) (wizard.FieldValue, error) {
		return sess.machine.ClearCNO(sess.state, fieldID)
	})
}

func (s *reportService) mutateField(ctx context.Context, reportID, templateID string, fn func(*wizardSession) (wizard.FieldValue, error)) (wizard.FieldValue, error) {
	a := s.app
	sess, err := a.openWizard(ctx, reportID, templateID)
	if err != nil {
		return wizard.FieldValue{}, err
	}
	fv, err := fn(sess)
	if err != nil {
		return wizard.FieldValue{}, wizardError(err, reportID, templateID)
	}
	if err := a.saveWizard(ctx, sess); err != nil {
		return wizard.FieldValue{}, err
	}
	return fv, nil
}

// CompleteWizard applies the completion gate. Missing fields are reported in
// the error's details and nothing is persisted.
func (s *reportService) CompleteWizard(ctx context.Context, reportID, templateID string) error {
	ctx, span := startWizardSpan(ctx, "CompleteWizard", reportID, templateID)
	defer span.End()

	a := s.app
	sess, err := a.openWizard(ctx, reportID, templateID)
	if err != nil {
		return err
	}
	if err := sess.machine.Complete(sess.state); err != nil {
		return wizardError(err, reportID, templateID)
	}
	if err := a.saveWizard(ctx, sess); err != nil {
		return err
	}
	a.activity.Record(ctx, sess.report.Tenant, "wizard_complete", map[string]any{"report_id": reportID, "template": templateID})
	return nil
}

func (s *reportService) WizardSummary(ctx context.Context, reportID, templateID string) (wizard.Summary, error) {
	a := s.app
	sess, err := a.openWizard(ctx, reportID, templateID)
	if err != nil {
		return wizard.Summary{}, err
	}
	if sess.fresh {
		if err := a.saveWizard(ctx, sess); err != nil {
			return wizard.Summary{}, err
		}
	}
	return sess.machine.Summary(sess.state), nil
}

func (s *reportService) ExportPayload(ctx context.Context, reportID, templateID string) (map[string]string, error) {
	sess, err := s.app.openWizard(ctx, reportID, templateID)
	if err != nil {
		return nil, err
	}
	return sess.machine.ExportPayload(sess.state), nil
}

// ExportWorkbook writes the wizard payload into the template workbook. The
// report itself must have imported successfully.
func (s *reportService) ExportWorkbook(ctx context.Context, reportID, templateID string) (string, error) {
	ctx, span := startWizardSpan(ctx, "ExportWorkbook", reportID, templateID)
	defer span.End()

	a := s.app
	if a.exporter == nil {
		return "", domainerrors.New(domainerrors.CodeNotAllowed, "Workbook export is not configured")
	}
	sess, err := a.openWizard(ctx, reportID, templateID)
	if err != nil {
		return "", err
	}
	if sess.report.Status != reports.StatusComplete {
		return "", domainerrors.Newf(domainerrors.CodeNotAllowed,
			"Cannot export: report status is '%s', not '%s'", sess.report.Status, reports.StatusComplete).
			WithContext(domainerrors.CtxReport, reportID)
	}

	path, err := a.exporter.Export(templateID, sess.machine.ExportPayload(sess.state), sess.report.EventDate, reportID)
	if err != nil {
		return "", wizardError(err, reportID, templateID)
	}
	a.activity.Record(ctx, sess.report.Tenant, "export", map[string]any{"report_id": reportID, "template": templateID, "path": path})
	return path, nil
}
