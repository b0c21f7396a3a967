package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"synthmon/internal/models"
	"synthmon/internal/storage"
)

// Store implements the storage.Storer interface for SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database file and runs migrations.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// migrate ensures the database schema is created.
func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS monitors (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL UNIQUE,
	url             TEXT NOT NULL,
	schedule_cron   TEXT NOT NULL DEFAULT '* * * * *',
	enabled         INTEGER NOT NULL DEFAULT 1,
	timeout_seconds INTEGER NOT NULL DEFAULT 30,
	tags            TEXT NOT NULL DEFAULT '[]',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_logs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	monitor_id    INTEGER NOT NULL,
	started_at    TEXT NOT NULL,
	completed_at  TEXT NOT NULL,
	status        TEXT NOT NULL,
	error_message TEXT,
	har_data      TEXT,
	FOREIGN KEY(monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_execution_logs_monitor_started ON execution_logs (monitor_id, started_at DESC);

CREATE TABLE IF NOT EXISTS performance_metrics (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_log_id INTEGER NOT NULL,
	metric_name      TEXT NOT NULL,
	metric_value     REAL,
	recorded_at      TEXT NOT NULL,
	FOREIGN KEY(execution_log_id) REFERENCES execution_logs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_performance_metrics_log ON performance_metrics (execution_log_id);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const monitorColumns = "id, name, url, schedule_cron, enabled, timeout_seconds, tags, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitor(rs rowScanner) (*models.Monitor, error) {
	var m models.Monitor
	var tagsJSON, createdAt, updatedAt string
	err := rs.Scan(&m.ID, &m.Name, &m.URL, &m.ScheduleCron, &m.Enabled, &m.TimeoutSeconds, &tagsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode monitor tags: %w", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &m, nil
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

// CreateMonitor inserts a new monitor; the name must be unique.
func (s *Store) CreateMonitor(ctx context.Context, m *models.Monitor) (*models.Monitor, error) {
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	query := `
INSERT INTO monitors (name, url, schedule_cron, enabled, timeout_seconds, tags, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query, m.Name, m.URL, m.ScheduleCron, m.Enabled, m.TimeoutSeconds,
		encodeTags(m.Tags), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to insert monitor: %w", err)
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return nil, storage.ErrDuplicateName
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read monitor id: %w", err)
	}
	m.ID = id
	return m, nil
}

// GetMonitor retrieves a single monitor by id.
func (s *Store) GetMonitor(ctx context.Context, id int64) (*models.Monitor, error) {
	query := "SELECT " + monitorColumns + " FROM monitors WHERE id = ?"
	m, err := scanMonitor(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor: %w", err)
	}
	return m, nil
}

// GetMonitorByName retrieves a single monitor by its unique name.
func (s *Store) GetMonitorByName(ctx context.Context, name string) (*models.Monitor, error) {
	query := "SELECT " + monitorColumns + " FROM monitors WHERE name = ?"
	m, err := scanMonitor(s.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor by name: %w", err)
	}
	return m, nil
}

func (s *Store) listMonitors(ctx context.Context, query string) ([]models.Monitor, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}
	defer rows.Close()
	var monitors []models.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitor row: %w", err)
		}
		monitors = append(monitors, *m)
	}
	return monitors, rows.Err()
}

// ListMonitors retrieves all monitors ordered by id.
func (s *Store) ListMonitors(ctx context.Context) ([]models.Monitor, error) {
	return s.listMonitors(ctx, "SELECT "+monitorColumns+" FROM monitors ORDER BY id")
}

// ListEnabledMonitors retrieves the monitors the scheduled loop should run.
func (s *Store) ListEnabledMonitors(ctx context.Context) ([]models.Monitor, error) {
	return s.listMonitors(ctx, "SELECT "+monitorColumns+" FROM monitors WHERE enabled = 1 ORDER BY id")
}

// UpdateMonitor overwrites a monitor's definition.
func (s *Store) UpdateMonitor(ctx context.Context, m *models.Monitor) (*models.Monitor, error) {
	m.UpdatedAt = time.Now().UTC()
	query := `
UPDATE monitors
SET name = ?, url = ?, schedule_cron = ?, enabled = ?, timeout_seconds = ?, tags = ?, updated_at = ?
WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, m.Name, m.URL, m.ScheduleCron, m.Enabled, m.TimeoutSeconds,
		encodeTags(m.Tags), m.UpdatedAt.Format(time.RFC3339Nano), m.ID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, storage.ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to update monitor: %w", err)
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return nil, storage.ErrNotFound
	}
	return s.GetMonitor(ctx, m.ID)
}

// DeleteMonitor removes a monitor and, via foreign keys, its execution history.
func (s *Store) DeleteMonitor(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM monitors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete monitor: %w", err)
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// InsertExecutionRecord persists one record and returns its id.
func (s *Store) InsertExecutionRecord(ctx context.Context, rec *models.ExecutionRecord) (int64, error) {
	var errMsg, trace any
	if rec.ErrorMessage != "" {
		errMsg = rec.ErrorMessage
	}
	if len(rec.Trace) > 0 {
		trace = string(rec.Trace)
	}
	query := `
INSERT INTO execution_logs (monitor_id, started_at, completed_at, status, error_message, har_data)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, rec.MonitorID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.CompletedAt.UTC().Format(time.RFC3339Nano),
		string(rec.Status), errMsg, trace)
	if err != nil {
		return 0, fmt.Errorf("failed to insert execution record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read execution record id: %w", err)
	}
	rec.ID = id
	return id, nil
}

// InsertMetricRows writes a batch of metric rows in one transaction.
func (s *Store) InsertMetricRows(ctx context.Context, recordID int64, rows []models.MetricRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
INSERT INTO performance_metrics (execution_log_id, metric_name, metric_value, recorded_at)
VALUES (?, ?, ?, ?)`
	for _, row := range rows {
		var value any
		if row.Value != nil {
			value = *row.Value
		}
		if _, err := tx.ExecContext(ctx, query, recordID, row.Name, value,
			row.RecordedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("failed to insert metric row %s: %w", row.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metric rows: %w", err)
	}
	return nil
}

// AttachTrace stores a trace against an already-inserted record.
func (s *Store) AttachTrace(ctx context.Context, recordID int64, trace json.RawMessage) error {
	res, err := s.db.ExecContext(ctx, "UPDATE execution_logs SET har_data = ? WHERE id = ?", string(trace), recordID)
	if err != nil {
		return fmt.Errorf("failed to attach trace: %w", err)
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListExecutions retrieves recent records with their metric rows pivoted
// into columns, newest first.
func (s *Store) ListExecutions(ctx context.Context, params storage.ListExecutionsParams) ([]models.ExecutionLogEntry, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	var args []any
	qb := strings.Builder{}
	qb.WriteString(`
SELECT el.id, el.monitor_id, el.started_at, el.completed_at, el.status, el.error_message,
	MAX(CASE WHEN pm.metric_name = 'ttfb_ms' THEN pm.metric_value END) AS ttfb_ms,
	MAX(CASE WHEN pm.metric_name = 'dom_content_loaded_ms' THEN pm.metric_value END) AS dom_content_loaded_ms,
	MAX(CASE WHEN pm.metric_name = 'page_load_time_ms' THEN pm.metric_value END) AS page_load_time_ms,
	el.har_data IS NOT NULL AS has_trace
FROM execution_logs el
LEFT JOIN performance_metrics pm ON pm.execution_log_id = el.id`)
	if params.MonitorID != 0 {
		qb.WriteString(" WHERE el.monitor_id = ?")
		args = append(args, params.MonitorID)
	}
	qb.WriteString(" GROUP BY el.id ORDER BY el.started_at DESC, el.id DESC LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()
	var entries []models.ExecutionLogEntry
	for rows.Next() {
		var e models.ExecutionLogEntry
		var startedAt, completedAt string
		var errMsg sql.NullString
		var ttfb, dcl, load sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.MonitorID, &startedAt, &completedAt, &e.Status, &errMsg,
			&ttfb, &dcl, &load, &e.HasTrace); err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		e.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		e.ErrorMessage = errMsg.String
		e.TTFBMs = nullableFloat(ttfb)
		e.DOMContentLoadedMs = nullableFloat(dcl)
		e.PageLoadMs = nullableFloat(load)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetTrace returns the trace attached to a record. ErrNotFound is returned
// both for unknown records and records without a trace.
func (s *Store) GetTrace(ctx context.Context, recordID int64) (json.RawMessage, error) {
	var trace sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT har_data FROM execution_logs WHERE id = ?", recordID).Scan(&trace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trace: %w", err)
	}
	if !trace.Valid {
		return nil, storage.ErrNotFound
	}
	return json.RawMessage(trace.String), nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
