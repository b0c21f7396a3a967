package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"synthmon/internal/models"
)

type fakeStore struct {
	nextID  int64
	records []models.ExecutionRecord
	metrics map[int64][]models.MetricRow
	traces  map[int64]json.RawMessage

	recordErr error
	metricErr error
	traceErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		metrics: make(map[int64][]models.MetricRow),
		traces:  make(map[int64]json.RawMessage),
	}
}

func (f *fakeStore) InsertExecutionRecord(ctx context.Context, rec models.ExecutionRecord) (int64, error) {
	if f.recordErr != nil {
		return 0, f.recordErr
	}
	f.nextID++
	rec.ID = f.nextID
	f.records = append(f.records, rec)
	return rec.ID, nil
}

func (f *fakeStore) InsertMetricRows(ctx context.Context, recordID int64, rows []models.MetricRow) error {
	if f.metricErr != nil {
		return f.metricErr
	}
	f.metrics[recordID] = append(f.metrics[recordID], rows...)
	return nil
}

func (f *fakeStore) AttachTrace(ctx context.Context, recordID int64, trace json.RawMessage) error {
	if f.traceErr != nil {
		return f.traceErr
	}
	f.traces[recordID] = trace
	return nil
}

func fptr(v float64) *float64 { return &v }

func successResult() *models.ExecutionResult {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.ExecutionResult{
		CheckID:            "check-1",
		MonitorID:          7,
		Status:             models.StatusSuccess,
		TTFBMs:             fptr(120.5),
		DOMContentLoadedMs: fptr(450),
		PageLoadMs:         fptr(900.25),
		StartedAt:          started,
		CompletedAt:        started.Add(1 * time.Second),
	}
}

// TestLog_SuccessPersistsRecordAndMetrics verifies a fully-measured
// success produces one record and all three metric rows.
func TestLog_SuccessPersistsRecordAndMetrics(t *testing.T) {
	store := newFakeStore()
	rec := New(store, nil)

	result := successResult()
	id, err := rec.Log(context.Background(), result)

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if id != 1 {
		t.Errorf("Expected record id 1, got %d", id)
	}

	if len(store.records) != 1 {
		t.Fatalf("Expected 1 execution record, got %d", len(store.records))
	}
	saved := store.records[0]
	if saved.MonitorID != 7 {
		t.Errorf("Expected monitor id 7, got %d", saved.MonitorID)
	}
	if saved.Status != models.StatusSuccess {
		t.Errorf("Expected status success, got %s", saved.Status)
	}
	if !saved.StartedAt.Equal(result.StartedAt) || !saved.CompletedAt.Equal(result.CompletedAt) {
		t.Error("Expected record to carry the check's own timestamps")
	}

	rows := store.metrics[id]
	if len(rows) != 3 {
		t.Fatalf("Expected 3 metric rows, got %d", len(rows))
	}
	wantNames := []string{models.MetricTTFB, models.MetricDOMContentLoaded, models.MetricPageLoad}
	for i, name := range wantNames {
		if rows[i].Name != name {
			t.Errorf("Row %d: expected metric %s, got %s", i, name, rows[i].Name)
		}
		if !rows[i].RecordedAt.Equal(result.CompletedAt) {
			t.Errorf("Row %d: expected RecordedAt to match completion time", i)
		}
	}
	if *rows[0].Value != 120.5 || *rows[1].Value != 450 || *rows[2].Value != 900.25 {
		t.Errorf("Unexpected metric values: %v, %v, %v", *rows[0].Value, *rows[1].Value, *rows[2].Value)
	}
}

// TestLog_PartialMetricsKeepNulls verifies a success with only some
// timings still writes all three rows, missing values as nil.
func TestLog_PartialMetricsKeepNulls(t *testing.T) {
	store := newFakeStore()
	rec := New(store, nil)

	result := successResult()
	result.DOMContentLoadedMs = nil
	result.PageLoadMs = nil

	id, err := rec.Log(context.Background(), result)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	rows := store.metrics[id]
	if len(rows) != 3 {
		t.Fatalf("Expected 3 metric rows, got %d", len(rows))
	}
	if rows[0].Value == nil || *rows[0].Value != 120.5 {
		t.Error("Expected ttfb row to carry its value")
	}
	if rows[1].Value != nil {
		t.Error("Expected dom content loaded row to be nil")
	}
	if rows[2].Value != nil {
		t.Error("Expected page load row to be nil")
	}
}

// TestLog_SuccessWithoutTTFB verifies a success missing the first byte
// time writes the record but no metric rows at all.
func TestLog_SuccessWithoutTTFB(t *testing.T) {
	store := newFakeStore()
	rec := New(store, nil)

	result := successResult()
	result.TTFBMs = nil

	id, err := rec.Log(context.Background(), result)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(store.records) != 1 {
		t.Fatalf("Expected 1 execution record, got %d", len(store.records))
	}
	if len(store.metrics[id]) != 0 {
		t.Errorf("Expected no metric rows, got %d", len(store.metrics[id]))
	}
}

// TestLog_TimeoutKeepsTraceDropsMetrics verifies a timeout writes no
// metric rows but still attaches a captured trace.
func TestLog_TimeoutKeepsTraceDropsMetrics(t *testing.T) {
	store := newFakeStore()
	rec := New(store, nil)

	result := successResult()
	result.Status = models.StatusTimeout
	result.ErrorMessage = "page load timeout after 30s: context deadline exceeded"
	result.Trace = json.RawMessage(`{"log":{"version":"1.2"}}`)

	id, err := rec.Log(context.Background(), result)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(store.metrics[id]) != 0 {
		t.Errorf("Expected no metric rows for a timeout, got %d", len(store.metrics[id]))
	}
	if string(store.traces[id]) != `{"log":{"version":"1.2"}}` {
		t.Error("Expected trace to be attached for the timeout record")
	}

	saved := store.records[0]
	if saved.Status != models.StatusTimeout {
		t.Errorf("Expected status timeout, got %s", saved.Status)
	}
	if saved.ErrorMessage == "" {
		t.Error("Expected error message to be persisted")
	}
}

// TestLog_NoTraceNoAttach verifies the trace update is skipped entirely
// when nothing was captured.
func TestLog_NoTraceNoAttach(t *testing.T) {
	store := newFakeStore()
	store.traceErr = errors.New("attach should not be called")
	rec := New(store, nil)

	result := successResult()
	if _, err := rec.Log(context.Background(), result); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

// TestLog_RecordInsertFailure verifies nothing else is written when the
// record insert itself fails.
func TestLog_RecordInsertFailure(t *testing.T) {
	store := newFakeStore()
	store.recordErr = errors.New("disk full")
	rec := New(store, nil)

	id, err := rec.Log(context.Background(), successResult())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if id != 0 {
		t.Errorf("Expected id 0 on record failure, got %d", id)
	}
	if len(store.metrics) != 0 || len(store.traces) != 0 {
		t.Error("Expected no metric or trace writes after a failed record insert")
	}
}

// TestLog_MetricFailureStillReturnsID verifies the record id survives a
// metric insert failure so callers can still reference the execution.
func TestLog_MetricFailureStillReturnsID(t *testing.T) {
	store := newFakeStore()
	store.metricErr = errors.New("constraint violated")
	rec := New(store, nil)

	id, err := rec.Log(context.Background(), successResult())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if id != 1 {
		t.Errorf("Expected record id 1 despite metric failure, got %d", id)
	}
}

// TestMetricRows covers the derivation rules directly.
func TestMetricRows(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(r *models.ExecutionResult)
		wantRows int
	}{
		{
			name:     "success with all metrics",
			mutate:   func(r *models.ExecutionResult) {},
			wantRows: 3,
		},
		{
			name:     "success without ttfb",
			mutate:   func(r *models.ExecutionResult) { r.TTFBMs = nil },
			wantRows: 0,
		},
		{
			name: "timeout with metrics left over",
			mutate: func(r *models.ExecutionResult) {
				r.Status = models.StatusTimeout
			},
			wantRows: 0,
		},
		{
			name: "error",
			mutate: func(r *models.ExecutionResult) {
				r.Status = models.StatusError
				r.TTFBMs = nil
				r.DOMContentLoadedMs = nil
				r.PageLoadMs = nil
			},
			wantRows: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := successResult()
			tt.mutate(result)
			rows := MetricRows(result)
			if len(rows) != tt.wantRows {
				t.Errorf("Expected %d rows, got %d", tt.wantRows, len(rows))
			}
		})
	}
}
