package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)

	if err := validateVersion(&cfg); err != nil {
		return nil, err
	}
	if err := validateDatabase(&cfg); err != nil {
		return nil, err
	}
	if err := validateIngest(&cfg); err != nil {
		return nil, err
	}
	if err := validateWizard(&cfg); err != nil {
		return nil, err
	}
	if err := validateTenants(&cfg); err != nil {
		return nil, err
	}
	if err := validateObservability(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.DataDir) == "" {
		cfg.Paths.DataDir = "data"
	}
	if strings.TrimSpace(cfg.Paths.SchemaDir) == "" {
		cfg.Paths.SchemaDir = "data/schemas"
	}
	if strings.TrimSpace(cfg.Paths.TemplateDir) == "" {
		cfg.Paths.TemplateDir = "templates_canroc"
	}
	if strings.TrimSpace(cfg.Paths.ArtifactDir) == "" {
		cfg.Paths.ArtifactDir = "data/artifacts"
	}
	if strings.TrimSpace(cfg.Paths.ExportDir) == "" {
		cfg.Paths.ExportDir = "data/exports"
	}

	if strings.TrimSpace(cfg.DB.Driver) == "" {
		cfg.DB.Driver = "sqlite"
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "reports.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}

	if cfg.Ingest.LongPauseThreshold <= 0 {
		cfg.Ingest.LongPauseThreshold = 10.0
	}
	if cfg.Ingest.MinuteWindow <= 0 {
		cfg.Ingest.MinuteWindow = 10
	}
	if strings.TrimSpace(cfg.Ingest.RejectMarker) == "" {
		cfg.Ingest.RejectMarker = "canroc"
	}
	if cfg.Ingest.MaxSegments <= 0 {
		cfg.Ingest.MaxSegments = 26
	}
	if cfg.Ingest.PayloadSegments <= 0 {
		cfg.Ingest.PayloadSegments = 6
	}

	if cfg.Wizard.MissingMarker == "" {
		cfg.Wizard.MissingMarker = "."
	}
	if len(cfg.Wizard.Templates) == 0 {
		cfg.Wizard.Templates = []string{TemplateMaster, TemplatePCO}
	}
	if strings.TrimSpace(cfg.Wizard.AutofillDateField) == "" {
		cfg.Wizard.AutofillDateField = "cr_epdt"
	}

	if cfg.Templates == nil {
		cfg.Templates = make(map[string]Template)
	}
	applyTemplateDefaults(cfg.Templates, TemplateMaster, Template{
		SchemaFile:  "canroc_master_schema.json",
		Workbook:    "1.Master_CanROC_Sheet_Update_August 2025.xlsx",
		Sheet:       "Master",
		StartRow:    4,
		CheckColumn: "pcofile",
		ExportLabel: "Master",
	})
	applyTemplateDefaults(cfg.Templates, TemplatePCO, Template{
		SchemaFile:  "canroc_pco_schema.json",
		Workbook:    "4. CanROC_Variables_PCO_Files_Master_Update_June2025.xlsx",
		Sheet:       "Jan ",
		MonthTabs:   true,
		StartRow:    4,
		CheckColumn: "cr_cmprt1",
		ExportLabel: "PCO",
	})

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if len(cfg.Watch.SchemaPatterns) == 0 {
		cfg.Watch.SchemaPatterns = []string{"*.json", "*.yaml", "*.yml"}
	}

	if cfg.Observability.Port == 0 {
		cfg.Observability.Port = 9464
	}

	if cfg.Activity.MaxEntries <= 0 {
		cfg.Activity.MaxEntries = 5000
	}
}

// applyTemplateDefaults fills unset fields of a known template without
// discarding values the file did set.
func applyTemplateDefaults(templates map[string]Template, id string, def Template) {
	tpl, ok := templates[id]
	if !ok {
		templates[id] = def
		return
	}
	if strings.TrimSpace(tpl.SchemaFile) == "" {
		tpl.SchemaFile = def.SchemaFile
	}
	if strings.TrimSpace(tpl.Workbook) == "" {
		tpl.Workbook = def.Workbook
	}
	if tpl.Sheet == "" {
		tpl.Sheet = def.Sheet
		tpl.MonthTabs = def.MonthTabs
	}
	if tpl.StartRow <= 0 {
		tpl.StartRow = def.StartRow
	}
	if strings.TrimSpace(tpl.CheckColumn) == "" {
		tpl.CheckColumn = def.CheckColumn
	}
	if strings.TrimSpace(tpl.ExportLabel) == "" {
		tpl.ExportLabel = def.ExportLabel
	}
	templates[id] = tpl
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	if driver != "sqlite" {
		return fmt.Errorf("db.driver must be sqlite, got %q", cfg.DB.Driver)
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	return nil
}

func validateIngest(cfg *Config) error {
	if cfg.Ingest.MinuteWindow > 60 {
		return fmt.Errorf("ingest.minute_window must be <= 60, got %d", cfg.Ingest.MinuteWindow)
	}
	if cfg.Ingest.PayloadSegments > cfg.Ingest.MaxSegments {
		return fmt.Errorf("ingest.payload_segments (%d) must not exceed ingest.max_segments (%d)",
			cfg.Ingest.PayloadSegments, cfg.Ingest.MaxSegments)
	}
	return nil
}

func validateWizard(cfg *Config) error {
	if strings.TrimSpace(cfg.Wizard.MissingMarker) == "" {
		return fmt.Errorf("wizard.missing_marker must not be blank")
	}
	seen := make(map[string]bool, len(cfg.Wizard.Templates))
	for i, id := range cfg.Wizard.Templates {
		id = strings.TrimSpace(id)
		if id == "" {
			return fmt.Errorf("wizard.templates[%d] must not be empty", i)
		}
		if seen[id] {
			return fmt.Errorf("duplicate wizard template %q", id)
		}
		seen[id] = true
		tpl, ok := cfg.Templates[id]
		if !ok {
			return fmt.Errorf("wizard.templates[%d] references unknown template %q", i, id)
		}
		if strings.TrimSpace(tpl.SchemaFile) == "" {
			return fmt.Errorf("templates.%s.schema_file must not be empty", id)
		}
	}
	return nil
}

func validateTenants(cfg *Config) error {
	entries := cfg.Tenants.Entries
	if len(entries) == 0 {
		if strings.TrimSpace(cfg.Tenants.Active) != "" {
			return fmt.Errorf("tenants.active is set to %q but tenants.entries is empty", cfg.Tenants.Active)
		}
		return nil
	}

	seen := make(map[string]bool, len(entries))
	for i, entry := range entries {
		ref := fmt.Sprintf("tenants.entries[%d]", i)
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return fmt.Errorf("%s.name must not be empty", ref)
		}
		if strings.TrimSpace(entry.Root) == "" {
			return fmt.Errorf("%s.root must not be empty", ref)
		}
		if seen[name] {
			return fmt.Errorf("duplicate tenant name %q", name)
		}
		seen[name] = true
	}

	active := strings.TrimSpace(cfg.Tenants.Active)
	if active != "" && !seen[active] {
		return fmt.Errorf("tenants.active references unknown tenant %q", active)
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.Port < 0 || cfg.Observability.Port > 65535 {
		return fmt.Errorf("observability.port must be between 0 and 65535, got %d", cfg.Observability.Port)
	}
	if cfg.Observability.EnableTracing && strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		return fmt.Errorf("observability.otlp_endpoint must be set when enable_tracing=true")
	}
	return nil
}
