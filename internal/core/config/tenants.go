package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

const DefaultTenant = "default"

// Tenant is one deployment's view of the schema and workbook directories.
type Tenant struct {
	Name        string
	Root        string
	SchemaDir   string
	TemplateDir string
}

// TenantNames lists configured tenants in declaration order.
func TenantNames(cfg *Config) []string {
	if len(cfg.Tenants.Entries) == 0 {
		return []string{DefaultTenant}
	}
	out := make([]string, 0, len(cfg.Tenants.Entries))
	for _, entry := range cfg.Tenants.Entries {
		out = append(out, strings.TrimSpace(entry.Name))
	}
	return out
}

// ResolveTenant maps a tenant name to its directories. An empty name selects
// tenants.active, then the first entry. Without entries the default tenant
// uses the configured paths directly.
func ResolveTenant(cfg *Config, paths ResolvedPaths, name string) (Tenant, error) {
	name = strings.TrimSpace(name)
	if len(cfg.Tenants.Entries) == 0 {
		if name != "" && name != DefaultTenant {
			return Tenant{}, fmt.Errorf("unknown tenant %q", name)
		}
		return Tenant{
			Name:        DefaultTenant,
			Root:        paths.ProjectRoot,
			SchemaDir:   paths.SchemaDir,
			TemplateDir: paths.TemplateDir,
		}, nil
	}

	if name == "" {
		name = strings.TrimSpace(cfg.Tenants.Active)
	}
	if name == "" {
		name = strings.TrimSpace(cfg.Tenants.Entries[0].Name)
	}

	for _, entry := range cfg.Tenants.Entries {
		if strings.TrimSpace(entry.Name) != name {
			continue
		}
		root := ResolveRelative(paths.ProjectRoot, entry.Root)
		return Tenant{
			Name:        name,
			Root:        root,
			SchemaDir:   filepath.Join(root, "data", "schemas"),
			TemplateDir: filepath.Join(root, "templates_canroc"),
		}, nil
	}
	return Tenant{}, fmt.Errorf("unknown tenant %q", name)
}
