package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cprqa/internal/core/ports"
	"cprqa/internal/engine/scoring"
)

func TestParseInputs(t *testing.T) {
	inputs, err := parseInputs([]string{"cr_sex=1", "notes=a=b", "cr_age="}, []string{"cr_wt"})
	if err != nil {
		t.Fatal(err)
	}
	if got := *inputs["cr_sex"].Value; got != "1" {
		t.Fatalf("expected cr_sex=1, got %q", got)
	}
	if got := *inputs["notes"].Value; got != "a=b" {
		t.Fatalf("expected value split on first '=', got %q", got)
	}
	if inputs["cr_age"].Value == nil || *inputs["cr_age"].Value != "" {
		t.Fatal("expected empty submitted value for cr_age")
	}
	if in, ok := inputs["cr_wt"]; !ok || in.Value != nil {
		t.Fatal("expected explicit clear for cr_wt")
	}

	for _, bad := range [][2][]string{
		{{"novalue"}, nil},
		{{"=1"}, nil},
		{{"cr_sex=1"}, {"cr_sex"}},
	} {
		if _, err := parseInputs(bad[0], bad[1]); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "cprqa v"+versionString+"\n" {
		t.Fatalf("unexpected version output %q", got)
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	if code := Run([]string{"--format", "xml", "version"}); code != 2 {
		t.Fatalf("expected exit code 2 for unknown format, got %d", code)
	}
	if code := Run([]string{"--no-such-flag"}); code != 2 {
		t.Fatalf("expected exit code 2 for unknown flag, got %d", code)
	}
}

func TestEmitFormats(t *testing.T) {
	v := map[string]any{"jcls_score": 84, "color_band": scoring.BandGreen}

	var js bytes.Buffer
	if err := emit(&js, formatJSON, v, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js.String(), `"color_band": "green"`) {
		t.Fatalf("unexpected json: %s", js.String())
	}

	var ym bytes.Buffer
	if err := emit(&ym, formatYAML, v, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ym.String(), "color_band: green") || !strings.Contains(ym.String(), "jcls_score: 84") {
		t.Fatalf("unexpected yaml: %s", ym.String())
	}

	var txt bytes.Buffer
	if err := emit(&txt, formatText, v, func(w io.Writer) { fmt.Fprint(w, "rendered") }); err != nil {
		t.Fatal(err)
	}
	if txt.String() != "rendered" {
		t.Fatalf("expected text renderer output, got %q", txt.String())
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	cfg, path, err := loadConfig(defaultConfigPath, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Fatalf("expected no config path, got %q", path)
	}
	if cfg.Ingest.MinuteWindow != 10 {
		t.Fatalf("expected default minute window, got %d", cfg.Ingest.MinuteWindow)
	}
}

func TestLoadConfigDiscoversDataConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "data", "config", "cprqa.toml")
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfgPath, []byte("version = 1\n[ingest]\nminute_window = 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, path, err := loadConfig(defaultConfigPath, dir)
	if err != nil {
		t.Fatal(err)
	}
	if path != cfgPath || cfg.Ingest.MinuteWindow != 8 {
		t.Fatalf("expected discovered config, got path=%q window=%d", path, cfg.Ingest.MinuteWindow)
	}

	if _, _, err := loadConfig(filepath.Join(dir, "missing.toml"), dir); err == nil {
		t.Fatal("expected error for explicit missing config")
	}
}

func TestReportsListOnEmptyStore(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cprqa.toml")
	body := fmt.Sprintf("version = 1\n[paths]\nproject_root = %q\n", dir)
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"--config", cfgPath, "--format", "json", "reports", "list"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Fatalf("expected empty json list, got %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "data", "reports.db")); err != nil {
		t.Fatalf("expected store created under project root: %v", err)
	}
}

func TestImportSimulatedFromStdin(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cprqa.toml")
	body := fmt.Sprintf("version = 1\n[paths]\nproject_root = %q\n", dir)
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetIn(strings.NewReader("Date,Provider,Duration,Depth,Rate\n2025-03-01,Avery,120,5.4,110\n"))
	root.SetArgs([]string{"--config", cfgPath, "--format", "json", "import", "-", "--simulated"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}

	var created []map[string]any
	if err := json.Unmarshal(out.Bytes(), &created); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if len(created) != 1 {
		t.Fatalf("expected one report, got %d", len(created))
	}
	if created[0]["kind"] != "simulated" || created[0]["provider"] != "Avery" || created[0]["event_date"] != "2025-03-01" {
		t.Fatalf("unexpected report %v", created[0])
	}
}

func TestImportSimulatedRejectsBundleFlags(t *testing.T) {
	if code := Run([]string{"import", "sessions.csv", "--simulated", "--shocks", "2"}); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

type fixedHealth struct {
	status ports.HealthStatus
}

func (f fixedHealth) Check(ctx context.Context) ports.HealthStatus {
	return f.status
}

func TestObservabilityServerHealth(t *testing.T) {
	server := NewObservabilityServer("127.0.0.1:0", fixedHealth{ports.HealthStatus{
		Status:     "degraded",
		Tenant:     "default",
		Components: map[string]string{"store": "ok", "template:pco": "missing pco.xlsx"},
	}})
	if err := server.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer server.Stop(context.Background())

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for degraded status, got %d", resp.StatusCode)
	}
	var got ports.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Components["template:pco"] != "missing pco.xlsx" {
		t.Fatalf("unexpected components: %v", got.Components)
	}

	metrics, err := client.Get("http://" + server.Addr() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	metrics.Body.Close()
	if metrics.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", metrics.StatusCode)
	}
}
