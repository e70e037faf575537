package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type activityRow struct {
	ID         int64          `db:"id"`
	Tenant     string         `db:"tenant"`
	Type       string         `db:"type"`
	Timestamp  string         `db:"ts_utc"`
	DetailJSON sql.NullString `db:"detail_json"`
}

// AppendActivity records one event and prunes the tenant's log to its newest
// maxActivity entries.
func (s *Store) AppendActivity(ctx context.Context, tenant, typ string, detail map[string]any) error {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return fmt.Errorf("activity type must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tenant = tenantOrDefault(tenant)
	var detailJSON sql.NullString
	if len(detail) > 0 {
		var err error
		if detailJSON, err = encodeJSON("activity detail", detail); err != nil {
			return err
		}
	}
	ts := s.now().UTC().Format(time.RFC3339Nano)

	return s.withRetry("append activity", func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO activity (tenant, type, ts_utc, detail_json) VALUES (?, ?, ?, ?)`,
			tenant, typ, ts, detailJSON,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `
DELETE FROM activity
WHERE tenant = ? AND id NOT IN (
  SELECT id FROM activity WHERE tenant = ? ORDER BY id DESC LIMIT ?
)`, tenant, tenant, s.maxActivity); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// ListActivity returns newest entries first. An empty typ matches every type;
// a limit of zero returns everything retained.
func (s *Store) ListActivity(ctx context.Context, tenant string, limit int, typ string) ([]Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, tenant, type, ts_utc, detail_json FROM activity WHERE tenant = ?`
	args := []any{tenantOrDefault(tenant)}
	if typ = strings.TrimSpace(typ); typ != "" {
		query += " AND type = ?"
		args = append(args, typ)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []activityRow
	if err := s.withRetry("list activity", func() error {
		rows = rows[:0]
		return s.db.SelectContext(ctx, &rows, query, args...)
	}); err != nil {
		return nil, err
	}

	out := make([]Activity, 0, len(rows))
	for _, row := range rows {
		ts, err := parseTimestamp(row.Timestamp)
		if err != nil {
			return nil, err
		}
		entry := Activity{ID: row.ID, Tenant: row.Tenant, Type: row.Type, Timestamp: ts}
		if row.DetailJSON.Valid {
			if err := decodeJSON("activity detail", row.DetailJSON.String, &entry.Detail); err != nil {
				return nil, err
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// LastActive returns the timestamp of the tenant's newest entry, or the zero
// time when the log is empty.
func (s *Store) LastActive(ctx context.Context, tenant string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.withRetry("last activity", func() error {
		return s.db.GetContext(ctx, &raw,
			`SELECT ts_utc FROM activity WHERE tenant = ? ORDER BY id DESC LIMIT 1`, tenantOrDefault(tenant))
	})
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseTimestamp(raw)
}
