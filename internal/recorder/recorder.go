// Package recorder persists finished checks: one execution record per
// check, metric rows for successful checks, and the network trace when
// one was captured.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"synthmon/internal/models"
)

// Store is the slice of storage the recorder writes through.
type Store interface {
	InsertExecutionRecord(ctx context.Context, rec models.ExecutionRecord) (int64, error)
	InsertMetricRows(ctx context.Context, recordID int64, rows []models.MetricRow) error
	AttachTrace(ctx context.Context, recordID int64, trace json.RawMessage) error
}

// Recorder writes check results to storage.
type Recorder struct {
	store Store
	log   *slog.Logger
}

// New creates a recorder backed by the given store.
func New(store Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log}
}

// Log persists one finished check and returns the execution record id.
// The record always lands first; metric rows and the trace follow, so a
// failure partway through still leaves the execution visible. The
// returned id is valid whenever the record insert succeeded, even if a
// later step failed.
func (r *Recorder) Log(ctx context.Context, result *models.ExecutionResult) (int64, error) {
	rec := models.ExecutionRecord{
		MonitorID:    result.MonitorID,
		StartedAt:    result.StartedAt,
		CompletedAt:  result.CompletedAt,
		Status:       result.Status,
		ErrorMessage: result.ErrorMessage,
	}

	id, err := r.store.InsertExecutionRecord(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("insert execution record: %w", err)
	}

	if rows := MetricRows(result); len(rows) > 0 {
		if err := r.store.InsertMetricRows(ctx, id, rows); err != nil {
			return id, fmt.Errorf("insert metric rows for record %d: %w", id, err)
		}
	}

	if len(result.Trace) > 0 {
		if err := r.store.AttachTrace(ctx, id, result.Trace); err != nil {
			return id, fmt.Errorf("attach trace to record %d: %w", id, err)
		}
	}

	r.log.Debug("check persisted",
		"monitor_id", result.MonitorID,
		"record_id", id,
		"status", result.Status)

	return id, nil
}

// MetricRows derives the metric rows for a result. A successful check
// with a time to first byte yields all three rows, absent values stored
// as NULLs. A success without a first byte time yields no rows at all,
// as does any timeout or error.
func MetricRows(result *models.ExecutionResult) []models.MetricRow {
	if result.Status != models.StatusSuccess || result.TTFBMs == nil {
		return nil
	}

	at := result.CompletedAt
	return []models.MetricRow{
		{Name: models.MetricTTFB, Value: result.TTFBMs, RecordedAt: at},
		{Name: models.MetricDOMContentLoaded, Value: result.DOMContentLoadedMs, RecordedAt: at},
		{Name: models.MetricPageLoad, Value: result.PageLoadMs, RecordedAt: at},
	}
}
