package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"synthmon/internal/models"
	"synthmon/internal/storage"
)

// Store implements the storage.Storer interface for PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

// New creates a connection pool and runs migrations.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	store := &Store{db: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// migrate ensures the database schema is created. Table and column names
// match what the shipped Grafana dashboard queries.
func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS monitors (
		id              BIGSERIAL PRIMARY KEY,
		name            TEXT NOT NULL UNIQUE,
		url             TEXT NOT NULL,
		schedule_cron   TEXT NOT NULL DEFAULT '* * * * *',
		enabled         BOOLEAN NOT NULL DEFAULT true,
		timeout_seconds INTEGER NOT NULL DEFAULT 30,
		tags            JSONB NOT NULL DEFAULT '[]',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS execution_logs (
		id            BIGSERIAL PRIMARY KEY,
		monitor_id    BIGINT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
		started_at    TIMESTAMPTZ NOT NULL,
		completed_at  TIMESTAMPTZ NOT NULL,
		status        TEXT NOT NULL,
		error_message TEXT,
		har_data      JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_execution_logs_monitor_started ON execution_logs (monitor_id, started_at DESC);

	CREATE TABLE IF NOT EXISTS performance_metrics (
		id               BIGSERIAL PRIMARY KEY,
		execution_log_id BIGINT NOT NULL REFERENCES execution_logs(id) ON DELETE CASCADE,
		metric_name      TEXT NOT NULL,
		metric_value     DOUBLE PRECISION,
		recorded_at      TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_performance_metrics_log ON performance_metrics (execution_log_id);
	`
	_, err := s.db.Exec(ctx, schema)
	return err
}

const monitorColumns = "id, name, url, schedule_cron, enabled, timeout_seconds, tags, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitor(rs rowScanner) (*models.Monitor, error) {
	var m models.Monitor
	var tagsJSON []byte
	err := rs.Scan(&m.ID, &m.Name, &m.URL, &m.ScheduleCron, &m.Enabled, &m.TimeoutSeconds, &tagsJSON, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tagsJSON, &m.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode monitor tags: %w", err)
	}
	return &m, nil
}

func encodeTags(tags []string) []byte {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return b
}

// CreateMonitor inserts a new monitor; the name must be unique.
func (s *Store) CreateMonitor(ctx context.Context, m *models.Monitor) (*models.Monitor, error) {
	query := `
INSERT INTO monitors (name, url, schedule_cron, enabled, timeout_seconds, tags)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name) DO NOTHING
RETURNING ` + monitorColumns
	created, err := scanMonitor(s.db.QueryRow(ctx, query, m.Name, m.URL, m.ScheduleCron, m.Enabled, m.TimeoutSeconds, encodeTags(m.Tags)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrDuplicateName
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert monitor: %w", err)
	}
	return created, nil
}

// GetMonitor retrieves a single monitor by id.
func (s *Store) GetMonitor(ctx context.Context, id int64) (*models.Monitor, error) {
	query := "SELECT " + monitorColumns + " FROM monitors WHERE id = $1"
	m, err := scanMonitor(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor: %w", err)
	}
	return m, nil
}

// GetMonitorByName retrieves a single monitor by its unique name.
func (s *Store) GetMonitorByName(ctx context.Context, name string) (*models.Monitor, error) {
	query := "SELECT " + monitorColumns + " FROM monitors WHERE name = $1"
	m, err := scanMonitor(s.db.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor by name: %w", err)
	}
	return m, nil
}

func (s *Store) listMonitors(ctx context.Context, query string) ([]models.Monitor, error) {
	rows, err := s.db.Query(ctx, query)
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
	return s.listMonitors(ctx, "SELECT "+monitorColumns+" FROM monitors WHERE enabled ORDER BY id")
}

// UpdateMonitor overwrites a monitor's definition.
func (s *Store) UpdateMonitor(ctx context.Context, m *models.Monitor) (*models.Monitor, error) {
	query := `
UPDATE monitors
SET name = $1, url = $2, schedule_cron = $3, enabled = $4, timeout_seconds = $5, tags = $6, updated_at = NOW()
WHERE id = $7
RETURNING ` + monitorColumns
	updated, err := scanMonitor(s.db.QueryRow(ctx, query, m.Name, m.URL, m.ScheduleCron, m.Enabled, m.TimeoutSeconds, encodeTags(m.Tags), m.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		if strings.Contains(err.Error(), "23505") {
			return nil, storage.ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to update monitor: %w", err)
	}
	return updated, nil
}

// DeleteMonitor removes a monitor and, via foreign keys, its execution history.
func (s *Store) DeleteMonitor(ctx context.Context, id int64) error {
	res, err := s.db.Exec(ctx, "DELETE FROM monitors WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete monitor: %w", err)
	}
	if res.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// InsertExecutionRecord persists one record and returns its id.
func (s *Store) InsertExecutionRecord(ctx context.Context, rec *models.ExecutionRecord) (int64, error) {
	var errMsg *string
	if rec.ErrorMessage != "" {
		errMsg = &rec.ErrorMessage
	}
	var trace []byte
	if len(rec.Trace) > 0 {
		trace = rec.Trace
	}
	query := `
INSERT INTO execution_logs (monitor_id, started_at, completed_at, status, error_message, har_data)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	var id int64
	err := s.db.QueryRow(ctx, query, rec.MonitorID, rec.StartedAt, rec.CompletedAt, string(rec.Status), errMsg, trace).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert execution record: %w", err)
	}
	rec.ID = id
	return id, nil
}

// InsertMetricRows writes a batch of metric rows in one transaction.
func (s *Store) InsertMetricRows(ctx context.Context, recordID int64, rows []models.MetricRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
INSERT INTO performance_metrics (execution_log_id, metric_name, metric_value, recorded_at)
VALUES ($1, $2, $3, $4)`
	for _, row := range rows {
		if _, err := tx.Exec(ctx, query, recordID, row.Name, row.Value, row.RecordedAt); err != nil {
			return fmt.Errorf("failed to insert metric row %s: %w", row.Name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit metric rows: %w", err)
	}
	return nil
}

// AttachTrace stores a trace against an already-inserted record.
func (s *Store) AttachTrace(ctx context.Context, recordID int64, trace json.RawMessage) error {
	res, err := s.db.Exec(ctx, "UPDATE execution_logs SET har_data = $1 WHERE id = $2", []byte(trace), recordID)
	if err != nil {
		return fmt.Errorf("failed to attach trace: %w", err)
	}
	if res.RowsAffected() == 0 {
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
		args = append(args, params.MonitorID)
		qb.WriteString(" WHERE el.monitor_id = $1")
		qb.WriteString(" GROUP BY el.id ORDER BY el.started_at DESC, el.id DESC LIMIT $2")
	} else {
		qb.WriteString(" GROUP BY el.id ORDER BY el.started_at DESC, el.id DESC LIMIT $1")
	}
	args = append(args, limit)

	rows, err := s.db.Query(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()
	var entries []models.ExecutionLogEntry
	for rows.Next() {
		var e models.ExecutionLogEntry
		var errMsg *string
		if err := rows.Scan(&e.ID, &e.MonitorID, &e.StartedAt, &e.CompletedAt, &e.Status, &errMsg,
			&e.TTFBMs, &e.DOMContentLoadedMs, &e.PageLoadMs, &e.HasTrace); err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		if errMsg != nil {
			e.ErrorMessage = *errMsg
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetTrace returns the trace attached to a record. ErrNotFound is returned
// both for unknown records and records without a trace.
func (s *Store) GetTrace(ctx context.Context, recordID int64) (json.RawMessage, error) {
	var trace []byte
	err := s.db.QueryRow(ctx, "SELECT har_data FROM execution_logs WHERE id = $1", recordID).Scan(&trace)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trace: %w", err)
	}
	if len(trace) == 0 {
		return nil, storage.ErrNotFound
	}
	return json.RawMessage(trace), nil
}
