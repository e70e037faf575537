package reports

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

const SchemaVersion = 3

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS reports (
  id TEXT PRIMARY KEY,
  tenant TEXT NOT NULL DEFAULT 'default',
  kind TEXT NOT NULL,
  status TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  event_date TEXT NOT NULL DEFAULT '',
  shocks_delivered INTEGER,
  artifact_path TEXT NOT NULL DEFAULT '',
  artifact_hash TEXT NOT NULL DEFAULT '',
  metrics_json TEXT,
  payload_json TEXT,
  score_json TEXT,
  wizards_json TEXT,
  created_at_utc TEXT NOT NULL,
  updated_at_utc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_tenant ON reports(tenant, created_at_utc);
CREATE INDEX IF NOT EXISTS idx_reports_hash ON reports(tenant, artifact_hash);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS activity (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  tenant TEXT NOT NULL DEFAULT 'default',
  type TEXT NOT NULL,
  ts_utc TEXT NOT NULL,
  detail_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_activity_tenant_ts ON activity(tenant, ts_utc);
`,
	},
	{
		version: 3,
		sql: `
ALTER TABLE reports ADD COLUMN provider TEXT NOT NULL DEFAULT '';
ALTER TABLE reports ADD COLUMN notes TEXT NOT NULL DEFAULT '';
`,
	},
}

// EnsureSchema applies pending migrations, one transaction each.
func EnsureSchema(db *sqlx.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	if err := db.Get(&current, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return fmt.Errorf("read schema_migrations version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
