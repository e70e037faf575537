package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"cprqa/internal/core/config"
	"cprqa/internal/core/ports"
	"cprqa/internal/core/watcher"
	"cprqa/internal/data/export"
	"cprqa/internal/data/reports"
	"cprqa/internal/engine/ingest"
	"cprqa/internal/engine/schema"
)

const activityQueueCapacity = 256

// Store is the persistence the app needs: reports plus the activity log.
type Store interface {
	ports.ReportStore
	ports.ActivityStore
}

// Dependencies lets callers and tests replace the default adapters.
type Dependencies struct {
	Store    Store
	Parser   ports.BundleParser
	Schemas  ports.SchemaCache
	Exporter ports.Exporter
	Headers  ports.HeaderSource
	Clock    func() time.Time
	NewID    func() string
}

type App struct {
	Config *config.Config
	Paths  config.ResolvedPaths

	store    Store
	parser   ports.BundleParser
	schemas  ports.SchemaCache
	exporter ports.Exporter
	headers  ports.HeaderSource
	activity *ActivityRecorder
	tenants  *Tenants

	now   func() time.Time
	newID func() string

	watchMu       sync.Mutex
	activeWatcher *watcher.Watcher
}

// New wires the sqlite store, bundle parser, schema cache and workbook
// exporter from configuration.
func New(cfg *config.Config, paths config.ResolvedPaths) (*App, error) {
	store, err := reports.Open(paths.DBPath, reports.WithMaxActivity(cfg.Activity.MaxEntries))
	if err != nil {
		return nil, err
	}

	a, err := NewWithDependencies(cfg, paths, Dependencies{
		Store:    store,
		Parser:   ingest.NewParser(ParserOptions(cfg)),
		Schemas:  schema.NewCache(paths.SchemaDir, SchemaFiles(cfg), cfg.Wizard.MissingMarker),
		Exporter: export.NewExporter(paths.TemplateDir, paths.ExportDir, ExportTemplates(cfg)),
		Headers:  export.HeaderReader{},
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func NewWithDependencies(cfg *config.Config, paths config.ResolvedPaths, deps Dependencies) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("report store dependency is required")
	}
	if deps.Parser == nil {
		return nil, fmt.Errorf("bundle parser dependency is required")
	}
	if deps.Schemas == nil {
		return nil, fmt.Errorf("schema cache dependency is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	a := &App{
		Config:   cfg,
		Paths:    paths,
		store:    deps.Store,
		parser:   deps.Parser,
		schemas:  deps.Schemas,
		exporter: deps.Exporter,
		headers:  deps.Headers,
		now:      deps.Clock,
		newID:    deps.NewID,
	}
	a.activity = NewActivityRecorder(deps.Store, activityQueueCapacity)
	a.tenants = newTenants(a)
	return a, nil
}

// ParserOptions maps the [ingest] section onto parser options.
func ParserOptions(cfg *config.Config) ingest.Options {
	return ingest.Options{
		LongPauseThreshold: cfg.Ingest.LongPauseThreshold,
		MinuteWindow:       cfg.Ingest.MinuteWindow,
		RejectMarker:       cfg.Ingest.RejectMarker,
		MaxSegments:        cfg.Ingest.MaxSegments,
		PayloadSegments:    cfg.Ingest.PayloadSegments,
	}
}

// SchemaFiles maps each configured wizard template to its schema file name.
func SchemaFiles(cfg *config.Config) map[string]string {
	out := make(map[string]string, len(cfg.Wizard.Templates))
	for _, id := range cfg.Wizard.Templates {
		if tpl, ok := cfg.Templates[id]; ok {
			out[id] = tpl.SchemaFile
		}
	}
	return out
}

func ExportTemplates(cfg *config.Config) []export.Template {
	out := make([]export.Template, 0, len(cfg.Wizard.Templates))
	for _, id := range cfg.Wizard.Templates {
		tpl, ok := cfg.Templates[id]
		if !ok {
			continue
		}
		out = append(out, export.Template{
			ID:          id,
			Workbook:    tpl.Workbook,
			Sheet:       tpl.Sheet,
			MonthTabs:   tpl.MonthTabs,
			StartRow:    tpl.StartRow,
			CheckColumn: tpl.CheckColumn,
			Label:       tpl.ExportLabel,
		})
	}
	return out
}

func (a *App) Tenants() *Tenants {
	return a.tenants
}

func (a *App) Schemas() ports.SchemaCache {
	return a.schemas
}

// templateRefs lists the drift-check targets for the active template directory.
func (a *App) templateRefs() []schema.TemplateRef {
	dir := a.tenants.TemplateDir()
	refs := make([]schema.TemplateRef, 0, len(a.Config.Wizard.Templates))
	for _, id := range a.Config.Wizard.Templates {
		tpl, ok := a.Config.Templates[id]
		if !ok {
			continue
		}
		workbook := tpl.Workbook
		if !filepath.IsAbs(workbook) {
			workbook = filepath.Join(dir, workbook)
		}
		refs = append(refs, schema.TemplateRef{TemplateID: id, Workbook: workbook, Sheet: tpl.Sheet})
	}
	return refs
}

// Close stops the watcher, drains queued activity and closes the store.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error

	a.watchMu.Lock()
	if a.activeWatcher != nil {
		if err := a.activeWatcher.Close(); err != nil {
			errs = append(errs, err)
		}
		a.activeWatcher = nil
	}
	a.watchMu.Unlock()

	if err := a.activity.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if closer, ok := a.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		slog.Warn("app close completed with errors", "count", len(errs))
	}
	return errors.Join(errs...)
}
