package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: CPRQA_[SECTION]_[KEY] (e.g., CPRQA_INGEST_LONG_PAUSE_THRESHOLD).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, "CPRQA_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.DataDir, "CPRQA_PATHS_DATA_DIR")
	setEnvString(&cfg.Paths.SchemaDir, "CPRQA_PATHS_SCHEMA_DIR")
	setEnvString(&cfg.Paths.TemplateDir, "CPRQA_PATHS_TEMPLATE_DIR")
	setEnvString(&cfg.Paths.ArtifactDir, "CPRQA_PATHS_ARTIFACT_DIR")
	setEnvString(&cfg.Paths.ExportDir, "CPRQA_PATHS_EXPORT_DIR")

	// Database
	setEnvString(&cfg.DB.Driver, "CPRQA_DB_DRIVER")
	setEnvString(&cfg.DB.Path, "CPRQA_DB_PATH")
	setEnvDuration(&cfg.DB.BusyTimeout, "CPRQA_DB_BUSY_TIMEOUT")

	// Ingest
	setEnvFloat64(&cfg.Ingest.LongPauseThreshold, "CPRQA_INGEST_LONG_PAUSE_THRESHOLD")
	setEnvInt(&cfg.Ingest.MinuteWindow, "CPRQA_INGEST_MINUTE_WINDOW")
	setEnvString(&cfg.Ingest.RejectMarker, "CPRQA_INGEST_REJECT_MARKER")

	// Wizard
	setEnvString(&cfg.Wizard.MissingMarker, "CPRQA_WIZARD_MISSING_MARKER")
	setEnvString(&cfg.Wizard.AutofillDateField, "CPRQA_WIZARD_AUTOFILL_DATE_FIELD")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "CPRQA_WATCH_DEBOUNCE")

	// Tenants
	setEnvString(&cfg.Tenants.Active, "CPRQA_TENANTS_ACTIVE")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "CPRQA_OBSERVABILITY_ENABLED")
	setEnvInt(&cfg.Observability.Port, "CPRQA_OBSERVABILITY_PORT")
	setEnvString(&cfg.Observability.OTLPEndpoint, "CPRQA_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "CPRQA_OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, "CPRQA_OBSERVABILITY_ENABLE_METRICS")

	// Activity
	setEnvInt(&cfg.Activity.MaxEntries, "CPRQA_ACTIVITY_MAX_ENTRIES")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			slog.Warn("ignoring env override", "key", key, "value", val, "error", err)
			return
		}
		slog.Debug("applying env override", "key", key, "value", val)
		*target = i
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(val)))
		if err != nil {
			slog.Warn("ignoring env override", "key", key, "value", val, "error", err)
			return
		}
		slog.Debug("applying env override", "key", key, "value", val)
		*target = b
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			slog.Warn("ignoring env override", "key", key, "value", val, "error", err)
			return
		}
		slog.Debug("applying env override", "key", key, "value", val)
		*target = f
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			slog.Warn("ignoring env override", "key", key, "value", val, "error", err)
			return
		}
		slog.Debug("applying env override", "key", key, "value", val)
		*target = d
	}
}
