package app

import (
	"context"
	"fmt"
	"os"

	"cprqa/internal/core/ports"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthService struct {
	app *App
}

func NewHealthService(app *App) *HealthService {
	return &HealthService{app: app}
}

func (s *HealthService) Check(ctx context.Context) ports.HealthStatus {
	a := s.app
	status := ports.HealthStatus{
		Status:     "up",
		Timestamp:  a.now().UTC(),
		Tenant:     a.tenants.Active(),
		Components: make(map[string]string),
	}

	// Store
	if p, ok := a.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Components["store"] = fmt.Sprintf("unavailable: %v", err)
		} else {
			status.Components["store"] = "ok"
		}
	} else {
		status.Components["store"] = "ok"
	}
	if last, err := a.store.LastActive(ctx, status.Tenant); err == nil && !last.IsZero() {
		status.LastActive = &last
	}

	// Schemas
	for _, id := range a.Config.Wizard.Templates {
		key := "schema:" + id
		if _, err := a.schemas.Get(id); err != nil {
			status.Status = "degraded"
			status.Components[key] = fmt.Sprintf("error: %v", err)
			continue
		}
		status.Components[key] = "ok"
	}

	// Templates
	for _, ref := range a.templateRefs() {
		key := "template:" + ref.TemplateID
		if _, err := os.Stat(ref.Workbook); err != nil {
			status.Status = "degraded"
			status.Components[key] = "missing " + ref.Workbook
			continue
		}
		status.Components[key] = "ok"
	}

	return status
}
