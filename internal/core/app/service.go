package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domainerrors "cprqa/internal/core/errors"
	"cprqa/internal/core/ports"
	"cprqa/internal/data/reports"
	"cprqa/internal/engine/ingest"
	"cprqa/internal/engine/scoring"
	"cprqa/internal/shared/observability"
)

type reportService struct {
	app *App
}

var _ ports.ReportService = (*reportService)(nil)

func NewReportService(app *App) ports.ReportService {
	return &reportService{app: app}
}

func (a *App) ReportService() ports.ReportService {
	return NewReportService(a)
}

// ImportBundle hashes, stores and parses a bundle. A bundle whose hash matches
// a completed report of the same tenant is not imported again. Ingestion
// errors are stored on the report and also returned.
func (s *reportService) ImportBundle(ctx context.Context, req ports.ImportRequest) (ports.ImportResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "reportService.ImportBundle",
		trace.WithAttributes(attribute.String("path", req.Path)))
	defer span.End()

	a := s.app
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return ports.ImportResult{}, domainerrors.New(domainerrors.CodeValidationError, "bundle path must not be empty")
	}
	kind := req.Kind
	if kind == "" {
		kind = reports.KindRealCall
	}
	if kind != reports.KindRealCall && kind != reports.KindSimulated {
		return ports.ImportResult{}, domainerrors.Newf(domainerrors.CodeValidationError, "unknown report kind %q", kind)
	}
	if req.ShocksDelivered != nil && *req.ShocksDelivered < 0 {
		return ports.ImportResult{}, domainerrors.New(domainerrors.CodeValidationError, "shocks delivered must not be negative")
	}

	tenant := a.tenants.Active()
	if a.parser.Rejected(path) {
		observability.IngestTotal.WithLabelValues("rejected").Inc()
		err := ingest.RejectedError(path)
		a.activity.Record(ctx, tenant, "import_failed", map[string]any{"path": path, "error": domainerrors.Message(err)})
		return ports.ImportResult{}, err
	}

	hash, err := ingest.HashFile(path)
	if err != nil {
		slog.Warn("artifact hash unavailable", "path", path, "error", err)
	}
	if hash != "" {
		existing, err := a.store.FindByHash(ctx, tenant, hash)
		if err != nil {
			return ports.ImportResult{}, domainerrors.AddContext(err, domainerrors.CtxOperation, "find_by_hash")
		}
		if existing != nil && existing.Status == reports.StatusComplete {
			slog.Info("bundle already imported", "path", path, "report_id", existing.ID)
			return ports.ImportResult{Report: existing, Duplicate: true}, nil
		}
	}

	r := &reports.Report{
		ID:              a.newID(),
		Tenant:          tenant,
		Kind:            kind,
		Status:          reports.StatusImporting,
		EventDate:       strings.TrimSpace(req.EventDate),
		ShocksDelivered: req.ShocksDelivered,
		ArtifactPath:    path,
		ArtifactHash:    hash,
	}
	if hash != "" {
		if kept, err := a.keepArtifact(r.ID, path); err != nil {
			slog.Warn("artifact copy failed, using source path", "path", path, "error", err)
		} else {
			r.ArtifactPath = kept
		}
	}
	span.SetAttributes(attribute.String("report_id", r.ID))

	if err := a.store.Save(ctx, r); err != nil {
		return ports.ImportResult{}, domainerrors.AddContext(err, domainerrors.CtxOperation, "save_report")
	}

	err = a.process(ctx, r, "import")
	return ports.ImportResult{Report: r}, err
}

// RetryImport re-runs parsing, scoring and wizard setup against the stored
// artifact of a report that has not completed.
func (s *reportService) RetryImport(ctx context.Context, reportID string) (*reports.Report, error) {
	ctx, span := observability.Tracer.Start(ctx, "reportService.RetryImport",
		trace.WithAttributes(attribute.String("report_id", reportID)))
	defer span.End()

	r, err := s.app.store.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if r.Status == reports.StatusComplete {
		return nil, domainerrors.Newf(domainerrors.CodeConflict, "Report %s is already complete", reportID).
			WithContext(domainerrors.CtxReport, reportID)
	}
	err = s.app.process(ctx, r, "retry")
	return r, err
}

// process parses the report's artifact and persists the outcome.
func (a *App) process(ctx context.Context, r *reports.Report, activityType string) error {
	res, err := a.parser.Parse(ctx, r.ArtifactPath)
	if err != nil {
		r.Status = reports.StatusFailed
		r.Error = domainerrors.Message(err)
		if saveErr := a.store.Save(ctx, r); saveErr != nil {
			slog.Warn("failed report not persisted", "report_id", r.ID, "error", saveErr)
		}
		a.activity.Record(ctx, r.Tenant, activityType+"_failed", map[string]any{"report_id": r.ID, "error": r.Error})
		return err
	}

	r.Metrics = &res.Metrics
	r.Payload = res.Payload
	r.Error = ""
	r.Score = nil
	if r.Kind == reports.KindRealCall {
		r.Score = a.score(ctx, r)
	}
	r.Status = reports.StatusComplete
	a.initWizards(r)

	if err := a.store.Save(ctx, r); err != nil {
		return domainerrors.AddContext(err, domainerrors.CtxReport, r.ID)
	}
	a.activity.Record(ctx, r.Tenant, activityType, map[string]any{"report_id": r.ID, "kind": string(r.Kind)})
	slog.Info("bundle imported", "report_id", r.ID, "path", r.ArtifactPath, "kind", r.Kind)
	return nil
}

func (a *App) score(ctx context.Context, r *reports.Report) *scoring.Result {
	_, span := observability.Tracer.Start(ctx, "scoring.Score",
		trace.WithAttributes(attribute.String("report_id", r.ID)))
	defer span.End()

	res := scoring.Score(r.Metrics, r.ShocksDelivered)
	observability.ScorePoints.Observe(float64(res.Score))
	span.SetAttributes(attribute.Int("jcls_score", res.Score))
	return &res
}

// keepArtifact copies the bundle under the artifact directory so retries do
// not depend on the caller's file. The base name is kept.
func (a *App) keepArtifact(reportID, src string) (string, error) {
	dir := strings.TrimSpace(a.Paths.ArtifactDir)
	if dir == "" {
		return src, nil
	}
	dst := filepath.Join(dir, reportID, filepath.Base(src))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

// Rescore recomputes the score of a completed real-call report.
func (s *reportService) Rescore(ctx context.Context, reportID string) (*scoring.Result, error) {
	a := s.app
	r, err := a.store.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if r.Kind != reports.KindRealCall {
		return nil, domainerrors.Newf(domainerrors.CodeNotAllowed, "Scoring applies to %s reports only", reports.KindRealCall).
			WithContext(domainerrors.CtxReport, reportID)
	}
	if r.Metrics == nil {
		return nil, domainerrors.Newf(domainerrors.CodeConflict, "Report %s has no parsed metrics", reportID).
			WithContext(domainerrors.CtxReport, reportID)
	}
	r.Score = a.score(ctx, r)
	if err := a.store.Save(ctx, r); err != nil {
		return nil, err
	}
	a.activity.Record(ctx, r.Tenant, "score", map[string]any{"report_id": r.ID, "jcls_score": r.Score.Score})
	return r.Score, nil
}

func (s *reportService) Backfill(ctx context.Context) (int, error) {
	return s.app.backfill(ctx, s.app.tenants.Active())
}

// backfill scores every completed real-call report of the tenant that has
// metrics but no score yet.
func (a *App) backfill(ctx context.Context, tenant string) (int, error) {
	list, err := a.store.List(ctx, tenant, reports.Filter{Kind: reports.KindRealCall, Status: reports.StatusComplete})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range list {
		if r.Score != nil || r.Metrics == nil {
			continue
		}
		r.Score = a.score(ctx, r)
		if err := a.store.Save(ctx, r); err != nil {
			return count, domainerrors.AddContext(err, domainerrors.CtxReport, r.ID)
		}
		count++
	}
	if count > 0 {
		slog.Info("scores backfilled", "tenant", tenant, "count", count)
	}
	return count, nil
}

func (s *reportService) Report(ctx context.Context, reportID string) (*reports.Report, error) {
	return s.app.store.Get(ctx, reportID)
}

func (s *reportService) ListReports(ctx context.Context, filter reports.Filter) ([]*reports.Report, error) {
	return s.app.store.List(ctx, s.app.tenants.Active(), filter)
}

// ValidateTemplates runs the schema drift check against every configured workbook.
func (s *reportService) ValidateTemplates(ctx context.Context) map[string][]string {
	a := s.app
	if a.headers == nil {
		return map[string][]string{}
	}
	_, span := observability.Tracer.Start(ctx, "reportService.ValidateTemplates")
	defer span.End()
	return a.schemas.ValidateAll(a.templateRefs(), a.headers)
}

func (s *reportService) Health(ctx context.Context) ports.HealthStatus {
	return NewHealthService(s.app).Check(ctx)
}

func wizardError(err error, reportID, templateID string) error {
	if err == nil {
		return nil
	}
	return domainerrors.AddContext(domainerrors.AddContext(err, domainerrors.CtxReport, reportID), domainerrors.CtxTemplate, templateID)
}
