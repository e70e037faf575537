package app

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domainerrors "cprqa/internal/core/errors"
	"cprqa/internal/core/ports"
	"cprqa/internal/data/reports"
	"cprqa/internal/engine/ingest"
	"cprqa/internal/shared/observability"
)

// ImportSimulated stores one complete, unscored simulated report per manikin
// row. Rows with no date and no fallback date are skipped. Reports saved
// before a store failure are returned with the error.
func (s *reportService) ImportSimulated(ctx context.Context, req ports.SimulatedImportRequest) ([]*reports.Report, error) {
	ctx, span := observability.Tracer.Start(ctx, "reportService.ImportSimulated",
		trace.WithAttributes(attribute.String("source", req.Source)))
	defer span.End()

	a := s.app
	tenant := a.tenants.Active()
	sessions, err := ingest.ParseSimulated(req.Content)
	if err != nil {
		observability.IngestTotal.WithLabelValues("failed").Inc()
		a.activity.Record(ctx, tenant, "import_failed", map[string]any{"source": req.Source, "error": domainerrors.Message(err)})
		return nil, err
	}

	fallback := strings.TrimSpace(req.EventDate)
	created := make([]*reports.Report, 0, len(sessions))
	for _, sess := range sessions {
		date := sess.Date
		if date == "" {
			date = fallback
		}
		if date == "" {
			slog.Warn("simulated row skipped: no date", "provider", sess.Provider)
			continue
		}

		metrics := sess.Metrics()
		r := &reports.Report{
			ID:           a.newID(),
			Tenant:       tenant,
			Kind:         reports.KindSimulated,
			Status:       reports.StatusComplete,
			EventDate:    date,
			Provider:     sess.Provider,
			Notes:        sess.Notes,
			ArtifactPath: req.Source,
			Metrics:      &metrics,
		}
		a.initWizards(r)
		if err := a.store.Save(ctx, r); err != nil {
			return created, domainerrors.AddContext(err, domainerrors.CtxOperation, "save_report")
		}
		a.activity.Record(ctx, tenant, "import", map[string]any{"report_id": r.ID, "kind": string(r.Kind), "source": "simulated_text"})
		created = append(created, r)
	}

	if len(created) == 0 {
		observability.IngestTotal.WithLabelValues("failed").Inc()
		return nil, domainerrors.New(domainerrors.CodeIngestion, "No sessions could be created from the input data")
	}
	observability.IngestTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("sessions", len(created)))
	slog.Info("simulated sessions imported", "count", len(created), "source", req.Source)
	return created, nil
}
