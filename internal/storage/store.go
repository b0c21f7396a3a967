// Package storage defines the persistence contract shared by the
// scheduling engine and the API layer. Two implementations exist:
// sqlite (default, zero-config) and postgres.
package storage

import (
	"context"
	"encoding/json"
	"errors"

	"synthmon/internal/models"
)

var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName is returned when creating a monitor whose name is taken
	ErrDuplicateName = errors.New("duplicate monitor name")
)

// ListExecutionsParams contains parameters for listing execution records
type ListExecutionsParams struct {
	MonitorID int64
	Limit     int
}

// Storer defines storage operations over monitors, execution records and
// metric rows. The scheduling engine consumes only a narrow slice of it
// (see scheduler.Registry and recorder.Store); the rest serves the API
// layer.
type Storer interface {
	CreateMonitor(ctx context.Context, m *models.Monitor) (*models.Monitor, error)
	GetMonitor(ctx context.Context, id int64) (*models.Monitor, error)
	GetMonitorByName(ctx context.Context, name string) (*models.Monitor, error)
	ListMonitors(ctx context.Context) ([]models.Monitor, error)
	ListEnabledMonitors(ctx context.Context) ([]models.Monitor, error)
	UpdateMonitor(ctx context.Context, m *models.Monitor) (*models.Monitor, error)
	DeleteMonitor(ctx context.Context, id int64) error

	InsertExecutionRecord(ctx context.Context, rec *models.ExecutionRecord) (int64, error)
	InsertMetricRows(ctx context.Context, recordID int64, rows []models.MetricRow) error
	AttachTrace(ctx context.Context, recordID int64, trace json.RawMessage) error
	ListExecutions(ctx context.Context, params ListExecutionsParams) ([]models.ExecutionLogEntry, error)
	GetTrace(ctx context.Context, recordID int64) (json.RawMessage, error)
}
