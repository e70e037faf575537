package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"cprqa/internal/core/config"
	domainerrors "cprqa/internal/core/errors"
	"cprqa/internal/data/reports"
)

// templateDirSetter is implemented by exporters whose workbooks move with the tenant.
type templateDirSetter interface {
	SetTemplateDir(dir string)
}

// Tenants tracks the active tenant. Switching reloads the schema cache in
// one step so no reader observes a half-cleared cache.
type Tenants struct {
	app *App

	mu          sync.RWMutex
	active      string
	templateDir string
}

func newTenants(a *App) *Tenants {
	return &Tenants{app: a, templateDir: a.Paths.TemplateDir}
}

// Active returns the active tenant name, or the default tenant when none is set.
func (t *Tenants) Active() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.active == "" {
		return reports.DefaultTenant
	}
	return t.active
}

func (t *Tenants) LoggedIn() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active != ""
}

func (t *Tenants) TemplateDir() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.templateDir
}

// Switch activates a tenant: its schema and template directories replace the
// current ones, unscored reports are backfilled and a login is recorded.
func (t *Tenants) Switch(ctx context.Context, name string) (config.Tenant, error) {
	a := t.app
	tenant, err := config.ResolveTenant(a.Config, a.Paths, name)
	if err != nil {
		return config.Tenant{}, domainerrors.Wrap(err, domainerrors.CodeNotFound, "Unknown tenant").
			WithContext(domainerrors.CtxOperation, "switch_tenant")
	}

	if err := a.schemas.Reload(tenant.SchemaDir); err != nil {
		return config.Tenant{}, domainerrors.AddContext(err, domainerrors.CtxOperation, "switch_tenant")
	}
	if setter, ok := a.exporter.(templateDirSetter); ok {
		setter.SetTemplateDir(tenant.TemplateDir)
	}

	t.mu.Lock()
	t.active = tenant.Name
	t.templateDir = tenant.TemplateDir
	t.mu.Unlock()

	a.rewatchSchemas(tenant.SchemaDir)

	backfilled, err := a.backfill(ctx, tenant.Name)
	if err != nil {
		slog.Warn("score backfill failed", "tenant", tenant.Name, "error", err)
	}
	a.activity.Record(ctx, tenant.Name, "login", map[string]any{"backfilled": backfilled})
	slog.Info("tenant activated", "tenant", tenant.Name, "schema_dir", tenant.SchemaDir, "backfilled", backfilled)
	return tenant, nil
}

// Clear logs the active tenant out and empties the schema cache.
func (t *Tenants) Clear(ctx context.Context) {
	t.mu.Lock()
	previous := t.active
	t.active = ""
	t.mu.Unlock()

	t.app.schemas.Clear()
	if strings.TrimSpace(previous) != "" {
		t.app.activity.Record(ctx, previous, "logout", nil)
	}
}
