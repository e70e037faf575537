package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cprqa.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version = 1

[paths]
schema_dir = "schemas"
export_dir = "out"

[db]
path = "qa.db"

[ingest]
long_pause_threshold = 8.5
minute_window = 12

[wizard]
missing_marker = "."
templates = ["master", "pco"]

[templates.pco]
workbook = "pco.xlsx"

[watch]
debounce = "1s"

[activity]
max_entries = 100
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Paths.SchemaDir != "schemas" {
		t.Errorf("Expected schema_dir schemas, got %s", cfg.Paths.SchemaDir)
	}
	if cfg.Paths.DataDir != "data" {
		t.Errorf("Expected default data_dir data, got %s", cfg.Paths.DataDir)
	}
	if cfg.DB.Path != "qa.db" {
		t.Errorf("Expected db path qa.db, got %s", cfg.DB.Path)
	}
	if cfg.Ingest.LongPauseThreshold != 8.5 {
		t.Errorf("Expected threshold 8.5, got %v", cfg.Ingest.LongPauseThreshold)
	}
	if cfg.Ingest.MinuteWindow != 12 {
		t.Errorf("Expected minute window 12, got %d", cfg.Ingest.MinuteWindow)
	}
	if cfg.Ingest.RejectMarker != "canroc" {
		t.Errorf("Expected default reject marker, got %q", cfg.Ingest.RejectMarker)
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("Expected debounce 1s, got %v", cfg.Watch.Debounce)
	}
	if cfg.Activity.MaxEntries != 100 {
		t.Errorf("Expected max_entries 100, got %d", cfg.Activity.MaxEntries)
	}

	pco := cfg.Templates[TemplatePCO]
	if pco.Workbook != "pco.xlsx" {
		t.Errorf("Expected pco workbook override, got %q", pco.Workbook)
	}
	if pco.SchemaFile != "canroc_pco_schema.json" || pco.CheckColumn != "cr_cmprt1" || !pco.MonthTabs {
		t.Errorf("Expected pco defaults to be filled, got %+v", pco)
	}
	master := cfg.Templates[TemplateMaster]
	if master.Sheet != "Master" || master.CheckColumn != "pcofile" || master.StartRow != 4 {
		t.Errorf("Expected master defaults, got %+v", master)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, ".", cfg.Wizard.MissingMarker)
	assert.Equal(t, []string{TemplateMaster, TemplatePCO}, cfg.Wizard.Templates)
	assert.Equal(t, 10.0, cfg.Ingest.LongPauseThreshold)
	assert.Equal(t, 26, cfg.Ingest.MaxSegments)
	assert.Equal(t, 6, cfg.Ingest.PayloadSegments)
	assert.Equal(t, 5000, cfg.Activity.MaxEntries)
	assert.Equal(t, "cr_epdt", cfg.Wizard.AutofillDateField)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "UnsupportedVersion",
			content: "version = 2\n",
			wantErr: "unsupported config version 2",
		},
		{
			name:    "BadDriver",
			content: "[db]\ndriver = \"postgres\"\n",
			wantErr: "db.driver must be sqlite",
		},
		{
			name:    "UnknownWizardTemplate",
			content: "[wizard]\ntemplates = [\"master\", \"pcr\"]\n",
			wantErr: "unknown template \"pcr\"",
		},
		{
			name:    "DuplicateWizardTemplate",
			content: "[wizard]\ntemplates = [\"pco\", \"pco\"]\n",
			wantErr: "duplicate wizard template",
		},
		{
			name:    "PayloadSegmentsExceedMax",
			content: "[ingest]\nmax_segments = 4\npayload_segments = 6\n",
			wantErr: "must not exceed ingest.max_segments",
		},
		{
			name: "DuplicateTenant",
			content: `
[[tenants.entries]]
name = "north"
root = "tenants/north"

[[tenants.entries]]
name = "north"
root = "tenants/north2"
`,
			wantErr: "duplicate tenant name",
		},
		{
			name: "UnknownActiveTenant",
			content: `
[tenants]
active = "south"

[[tenants.entries]]
name = "north"
root = "tenants/north"
`,
			wantErr: "unknown tenant \"south\"",
		},
		{
			name:    "TracingWithoutEndpoint",
			content: "[observability]\nenable_tracing = true\n",
			wantErr: "otlp_endpoint must be set",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CPRQA_INGEST_LONG_PAUSE_THRESHOLD", "12.5")
	t.Setenv("CPRQA_OBSERVABILITY_PORT", "9999")
	t.Setenv("CPRQA_WATCH_DEBOUNCE", "250ms")
	t.Setenv("CPRQA_OBSERVABILITY_ENABLED", "TRUE")
	t.Setenv("CPRQA_ACTIVITY_MAX_ENTRIES", "not-a-number")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, 12.5, cfg.Ingest.LongPauseThreshold)
	assert.Equal(t, 9999, cfg.Observability.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.True(t, cfg.Observability.Enabled)
	assert.Equal(t, 5000, cfg.Activity.MaxEntries, "invalid values are ignored")
}

func TestResolvePaths(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "cprqa.toml"), []byte("version = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Paths.ExportDir = filepath.Join(root, "abs-exports")

	paths, err := ResolvePaths(cfg, nested)
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean(root), paths.ProjectRoot)
	assert.Equal(t, filepath.Join(root, "data", "schemas"), paths.SchemaDir)
	assert.Equal(t, filepath.Join(root, "templates_canroc"), paths.TemplateDir)
	assert.Equal(t, filepath.Join(root, "abs-exports"), paths.ExportDir)
	assert.Equal(t, filepath.Join(root, "data", "reports.db"), paths.DBPath)
}

func TestResolvePathsExplicitRoot(t *testing.T) {
	cwd := t.TempDir()
	cfg := Default()
	cfg.Paths.ProjectRoot = "site"
	cfg.DB.Path = filepath.Join(cwd, "elsewhere.db")

	paths, err := ResolvePaths(cfg, cwd)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "site"), paths.ProjectRoot)
	assert.Equal(t, filepath.Join(cwd, "elsewhere.db"), paths.DBPath)

	_, err = ResolvePaths(cfg, "  ")
	require.Error(t, err)
}

func TestResolveRelative(t *testing.T) {
	base := filepath.Join(string(filepath.Separator), "srv", "cprqa")
	assert.Equal(t, base, ResolveRelative(base, ""))
	assert.Equal(t, filepath.Join(base, "data"), ResolveRelative(base, " data "))
	abs := filepath.Join(string(filepath.Separator), "var", "lib")
	assert.Equal(t, abs, ResolveRelative(base, abs))
}
