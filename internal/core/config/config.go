package config

import (
	"time"
)

const (
	TemplateMaster = "master"
	TemplatePCO    = "pco"
)

type Config struct {
	Version       int                 `toml:"version"`
	Paths         Paths               `toml:"paths"`
	DB            Database            `toml:"db"`
	Ingest        Ingest              `toml:"ingest"`
	Wizard        Wizard              `toml:"wizard"`
	Templates     map[string]Template `toml:"templates"`
	Watch         Watch               `toml:"watch"`
	Tenants       Tenants             `toml:"tenants"`
	Observability Observability       `toml:"observability"`
	Activity      Activity            `toml:"activity"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	DataDir     string `toml:"data_dir"`
	SchemaDir   string `toml:"schema_dir"`
	TemplateDir string `toml:"template_dir"`
	ArtifactDir string `toml:"artifact_dir"`
	ExportDir   string `toml:"export_dir"`
}

type Database struct {
	Driver      string        `toml:"driver"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

type Ingest struct {
	// LongPauseThreshold is in seconds; pauses strictly longer are counted.
	LongPauseThreshold float64 `toml:"long_pause_threshold"`
	MinuteWindow       int     `toml:"minute_window"`
	RejectMarker       string  `toml:"reject_marker"`
	MaxSegments        int     `toml:"max_segments"`
	PayloadSegments    int     `toml:"payload_segments"`
}

type Wizard struct {
	MissingMarker     string   `toml:"missing_marker"`
	Templates         []string `toml:"templates"`
	AutofillDateField string   `toml:"autofill_date_field"`
}

// Template binds a template id to its schema file and export workbook.
type Template struct {
	SchemaFile  string `toml:"schema_file"`
	Workbook    string `toml:"workbook"`
	Sheet       string `toml:"sheet"`
	MonthTabs   bool   `toml:"month_tabs"`
	StartRow    int    `toml:"start_row"`
	CheckColumn string `toml:"check_column"`
	ExportLabel string `toml:"export_label"`
}

type Watch struct {
	Debounce       time.Duration `toml:"debounce"`
	SchemaPatterns []string      `toml:"schema_patterns"`
}

type Tenants struct {
	Active  string        `toml:"active"`
	Entries []TenantEntry `toml:"entries"`
}

type TenantEntry struct {
	Name string `toml:"name"`
	Root string `toml:"root"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Port          int    `toml:"port"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	EnableTracing bool   `toml:"enable_tracing"`
	EnableMetrics bool   `toml:"enable_metrics"`
}

type Activity struct {
	MaxEntries int `toml:"max_entries"`
}

// Default returns a fully defaulted configuration, used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
