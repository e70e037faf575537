package ports

import (
	"context"
	"time"

	"cprqa/internal/data/reports"
	"cprqa/internal/engine/ingest"
	"cprqa/internal/engine/schema"
	"cprqa/internal/engine/scoring"
	"cprqa/internal/engine/wizard"
)

// ReportStore abstracts report persistence. Wizard states travel inside the report.
type ReportStore interface {
	Save(ctx context.Context, r *reports.Report) error
	Get(ctx context.Context, id string) (*reports.Report, error)
	List(ctx context.Context, tenant string, filter reports.Filter) ([]*reports.Report, error)
	FindByHash(ctx context.Context, tenant, hash string) (*reports.Report, error)
	Delete(ctx context.Context, id string) error
}

// ActivityStore abstracts the per-tenant activity log.
type ActivityStore interface {
	AppendActivity(ctx context.Context, tenant, typ string, detail map[string]any) error
	ListActivity(ctx context.Context, tenant string, limit int, typ string) ([]reports.Activity, error)
	LastActive(ctx context.Context, tenant string) (time.Time, error)
}

// BundleParser abstracts device bundle ingestion. Rejected must not touch
// the file.
type BundleParser interface {
	Parse(ctx context.Context, path string) (*ingest.Result, error)
	Rejected(path string) bool
}

// HeaderSource reads worksheet header rows for template drift checks.
type HeaderSource = schema.HeaderSource

// Exporter writes a finished wizard payload into a copy of the template
// workbook and returns the written path.
type Exporter interface {
	Export(templateID string, payload map[string]string, eventDate, reportID string) (string, error)
}

// SchemaCache is the injected schema cache; tenant switches reload it atomically.
type SchemaCache interface {
	Get(templateID string) (*schema.Definition, error)
	Reload(dir string) error
	Clear()
	Dir() string
	Loaded() int
	ValidateAll(refs []schema.TemplateRef, headers schema.HeaderSource) map[string][]string
}

// ActivityEvent is one queued activity log write.
type ActivityEvent struct {
	Tenant string
	Type   string
	Detail map[string]any
}

// ImportRequest describes one bundle to ingest.
type ImportRequest struct {
	Path            string
	EventDate       string
	Kind            reports.Kind
	ShocksDelivered *int
}

// SimulatedImportRequest carries manikin session rows as CSV or pasted
// text. EventDate is used for rows without a date; Source is kept as the
// artifact label.
type SimulatedImportRequest struct {
	Content   string
	EventDate string
	Source    string
}

// ImportResult is the persisted report plus whether it was already imported.
type ImportResult struct {
	Report    *reports.Report `json:"report"`
	Duplicate bool            `json:"duplicate"`
}

// HealthStatus summarizes dependency availability for driving adapters.
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Tenant     string            `json:"tenant"`
	LastActive *time.Time        `json:"last_active,omitempty"`
	Components map[string]string `json:"components"`
}

// ReportService is the driving-port surface over import, scoring and wizard use cases.
type ReportService interface {
	ImportBundle(ctx context.Context, req ImportRequest) (ImportResult, error)
	ImportSimulated(ctx context.Context, req SimulatedImportRequest) ([]*reports.Report, error)
	RetryImport(ctx context.Context, reportID string) (*reports.Report, error)
	Rescore(ctx context.Context, reportID string) (*scoring.Result, error)
	Backfill(ctx context.Context) (int, error)
	Report(ctx context.Context, reportID string) (*reports.Report, error)
	ListReports(ctx context.Context, filter reports.Filter) ([]*reports.Report, error)

	SavePage(ctx context.Context, reportID, templateID string, pageID int, inputs map[string]wizard.Input) ([]string, error)
	UpsertField(ctx context.Context, reportID, templateID, fieldID string, value any) (wizard.FieldValue, error)
	MarkCNO(ctx context.Context, reportID, templateID, fieldID, reason string) (wizard.FieldValue, error)
	ClearCNO(ctx context.Context, reportID, templateID, fieldID string) (wizard.FieldValue, error)
	CompleteWizard(ctx context.Context, reportID, templateID string) error
	WizardSummary(ctx context.Context, reportID, templateID string) (wizard.Summary, error)
	ExportPayload(ctx context.Context, reportID, templateID string) (map[string]string, error)
	ExportWorkbook(ctx context.Context, reportID, templateID string) (string, error)

	ValidateTemplates(ctx context.Context) map[string][]string
	Health(ctx context.Context) HealthStatus
}
