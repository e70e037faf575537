package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	domainerrors "cprqa/internal/core/errors"
	"cprqa/internal/engine/ingest"
	"cprqa/internal/engine/scoring"
	"cprqa/internal/engine/wizard"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5

	DefaultTenant      = "default"
	DefaultMaxActivity = 5000
)

type Store struct {
	path        string
	db          *sqlx.DB
	mu          sync.Mutex
	maxActivity int
	now         func() time.Time
}

type Option func(*Store)

// WithMaxActivity caps the activity log per tenant. Values below one keep the default.
func WithMaxActivity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxActivity = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func Open(path string, opts ...Option) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("report store path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("report store path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create report store directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite report store %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite report store %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	s := &Store{
		path:        cleanPath,
		db:          db,
		maxActivity: DefaultMaxActivity,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Ping checks the connection; used by health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type reportRow struct {
	ID              string         `db:"id"`
	Tenant          string         `db:"tenant"`
	Kind            string         `db:"kind"`
	Status          string         `db:"status"`
	Error           string         `db:"error"`
	EventDate       string         `db:"event_date"`
	ShocksDelivered sql.NullInt64  `db:"shocks_delivered"`
	ArtifactPath    string         `db:"artifact_path"`
	ArtifactHash    string         `db:"artifact_hash"`
	Provider        string         `db:"provider"`
	Notes           string         `db:"notes"`
	MetricsJSON     sql.NullString `db:"metrics_json"`
	PayloadJSON     sql.NullString `db:"payload_json"`
	ScoreJSON       sql.NullString `db:"score_json"`
	WizardsJSON     sql.NullString `db:"wizards_json"`
	CreatedAt       string         `db:"created_at_utc"`
	UpdatedAt       string         `db:"updated_at_utc"`
}

const reportColumns = `id, tenant, kind, status, error, event_date, shocks_delivered, artifact_path,
  artifact_hash, provider, notes, metrics_json, payload_json, score_json, wizards_json, created_at_utc, updated_at_utc`

// Save inserts or replaces a report. CreatedAt is kept from the first save;
// UpdatedAt is always refreshed.
func (s *Store) Save(ctx context.Context, r *Report) error {
	if r == nil || strings.TrimSpace(r.ID) == "" {
		return domainerrors.New(domainerrors.CodeValidationError, "report id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(r.Tenant) == "" {
		r.Tenant = DefaultTenant
	}
	now := s.now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	row, err := toRow(r)
	if err != nil {
		return err
	}

	query := `
INSERT INTO reports (` + reportColumns + `) VALUES (
  :id, :tenant, :kind, :status, :error, :event_date, :shocks_delivered, :artifact_path,
  :artifact_hash, :provider, :notes, :metrics_json, :payload_json, :score_json, :wizards_json, :created_at_utc, :updated_at_utc
)
ON CONFLICT(id) DO UPDATE SET
  tenant=excluded.tenant,
  kind=excluded.kind,
  status=excluded.status,
  error=excluded.error,
  event_date=excluded.event_date,
  shocks_delivered=excluded.shocks_delivered,
  artifact_path=excluded.artifact_path,
  artifact_hash=excluded.artifact_hash,
  provider=excluded.provider,
  notes=excluded.notes,
  metrics_json=excluded.metrics_json,
  payload_json=excluded.payload_json,
  score_json=excluded.score_json,
  wizards_json=excluded.wizards_json,
  updated_at_utc=excluded.updated_at_utc
`
	return s.withRetry("save report", func() error {
		_, err := s.db.NamedExecContext(ctx, query, row)
		return err
	})
}

func (s *Store) Get(ctx context.Context, id string) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row reportRow
	err := s.withRetry("get report", func() error {
		return s.db.GetContext(ctx, &row, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "Report not found: %s", id).
			WithContext(domainerrors.CtxReport, id)
	}
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

// List returns a tenant's reports, newest first.
func (s *Store) List(ctx context.Context, tenant string, filter Filter) ([]*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT ` + reportColumns + ` FROM reports WHERE tenant = ?`
	args := []any{tenantOrDefault(tenant)}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at_utc DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []reportRow
	if err := s.withRetry("list reports", func() error {
		rows = rows[:0]
		return s.db.SelectContext(ctx, &rows, query, args...)
	}); err != nil {
		return nil, err
	}

	out := make([]*Report, 0, len(rows))
	for _, row := range rows {
		r, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// FindByHash returns the newest report of the tenant with the given artifact
// hash, or nil when there is none.
func (s *Store) FindByHash(ctx context.Context, tenant, hash string) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row reportRow
	err := s.withRetry("find report by hash", func() error {
		return s.db.GetContext(ctx, &row,
			`SELECT `+reportColumns+` FROM reports WHERE tenant = ? AND artifact_hash = ? ORDER BY created_at_utc DESC LIMIT 1`,
			tenantOrDefault(tenant), hash)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	err := s.withRetry("delete report", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return domainerrors.Newf(domainerrors.CodeNotFound, "Report not found: %s", id).
			WithContext(domainerrors.CtxReport, id)
	}
	return nil
}

func toRow(r *Report) (reportRow, error) {
	row := reportRow{
		ID:           r.ID,
		Tenant:       r.Tenant,
		Kind:         string(r.Kind),
		Status:       string(r.Status),
		Error:        r.Error,
		EventDate:    r.EventDate,
		ArtifactPath: r.ArtifactPath,
		ArtifactHash: r.ArtifactHash,
		Provider:     r.Provider,
		Notes:        r.Notes,
		CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.ShocksDelivered != nil {
		row.ShocksDelivered = sql.NullInt64{Int64: int64(*r.ShocksDelivered), Valid: true}
	}

	var err error
	if r.Metrics != nil {
		if row.MetricsJSON, err = encodeJSON("metrics", r.Metrics); err != nil {
			return row, err
		}
	}
	if len(r.Payload) > 0 {
		if row.PayloadJSON, err = encodeJSON("payload", r.Payload); err != nil {
			return row, err
		}
	}
	if r.Score != nil {
		if row.ScoreJSON, err = encodeJSON("score", r.Score); err != nil {
			return row, err
		}
	}
	if len(r.Wizards) > 0 {
		if row.WizardsJSON, err = encodeJSON("wizards", r.Wizards); err != nil {
			return row, err
		}
	}
	return row, nil
}

func fromRow(row reportRow) (*Report, error) {
	r := &Report{
		ID:           row.ID,
		Tenant:       row.Tenant,
		Kind:         Kind(row.Kind),
		Status:       Status(row.Status),
		Error:        row.Error,
		EventDate:    row.EventDate,
		ArtifactPath: row.ArtifactPath,
		ArtifactHash: row.ArtifactHash,
		Provider:     row.Provider,
		Notes:        row.Notes,
	}
	if row.ShocksDelivered.Valid {
		n := int(row.ShocksDelivered.Int64)
		r.ShocksDelivered = &n
	}

	var err error
	if r.CreatedAt, err = parseTimestamp(row.CreatedAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTimestamp(row.UpdatedAt); err != nil {
		return nil, err
	}

	if row.MetricsJSON.Valid {
		r.Metrics = &ingest.NormalizedMetrics{}
		if err := decodeJSON("metrics", row.MetricsJSON.String, r.Metrics); err != nil {
			return nil, err
		}
	}
	if row.PayloadJSON.Valid {
		if err := decodeJSON("payload", row.PayloadJSON.String, &r.Payload); err != nil {
			return nil, err
		}
	}
	if row.ScoreJSON.Valid {
		r.Score = &scoring.Result{}
		if err := decodeJSON("score", row.ScoreJSON.String, r.Score); err != nil {
			return nil, err
		}
	}
	if row.WizardsJSON.Valid {
		r.Wizards = make(map[string]*wizard.State)
		if err := decodeJSON("wizards", row.WizardsJSON.String, &r.Wizards); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func encodeJSON(column string, v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode %s: %w", column, err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeJSON(column, raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", column, err)
	}
	return nil
}

func parseTimestamp(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return ts.UTC(), nil
}

func tenantOrDefault(tenant string) string {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return DefaultTenant
	}
	return tenant
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
