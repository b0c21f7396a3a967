package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"synthmon/internal/health"
	"synthmon/internal/models"
	"synthmon/internal/scheduler"
	"synthmon/internal/storage"
)

// fakeStore is an in-memory Storer for handler tests.
type fakeStore struct {
	nextID     int64
	monitors   map[int64]*models.Monitor
	executions map[int64][]models.ExecutionLogEntry
	traces     map[int64]json.RawMessage
	failWith   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:     1,
		monitors:   make(map[int64]*models.Monitor),
		executions: make(map[int64][]models.ExecutionLogEntry),
		traces:     make(map[int64]json.RawMessage),
	}
}

func (f *fakeStore) CreateMonitor(_ context.Context, m *models.Monitor) (*models.Monitor, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, existing := range f.monitors {
		if existing.Name == m.Name {
			return nil, storage.ErrDuplicateName
		}
	}
	stored := *m
	stored.ID = f.nextID
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	f.monitors[stored.ID] = &stored
	f.nextID++
	return &stored, nil
}

func (f *fakeStore) GetMonitor(_ context.Context, id int64) (*models.Monitor, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	m, ok := f.monitors[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeStore) GetMonitorByName(_ context.Context, name string) (*models.Monitor, error) {
	for _, m := range f.monitors {
		if m.Name == name {
			copied := *m
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListMonitors(_ context.Context) ([]models.Monitor, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []models.Monitor
	for id := int64(1); id < f.nextID; id++ {
		if m, ok := f.monitors[id]; ok {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeStore) ListEnabledMonitors(ctx context.Context) ([]models.Monitor, error) {
	all, err := f.ListMonitors(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Monitor
	for _, m := range all {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateMonitor(_ context.Context, m *models.Monitor) (*models.Monitor, error) {
	existing, ok := f.monitors[m.ID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	for id, other := range f.monitors {
		if id != m.ID && other.Name == m.Name {
			return nil, storage.ErrDuplicateName
		}
	}
	updated := *m
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()
	f.monitors[m.ID] = &updated
	copied := updated
	return &copied, nil
}

func (f *fakeStore) DeleteMonitor(_ context.Context, id int64) error {
	if _, ok := f.monitors[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.monitors, id)
	return nil
}

func (f *fakeStore) InsertExecutionRecord(_ context.Context, rec *models.ExecutionRecord) (int64, error) {
	return 0, fmt.Errorf("not used by handler tests")
}

func (f *fakeStore) InsertMetricRows(_ context.Context, recordID int64, rows []models.MetricRow) error {
	return fmt.Errorf("not used by handler tests")
}

func (f *fakeStore) AttachTrace(_ context.Context, recordID int64, trace json.RawMessage) error {
	return fmt.Errorf("not used by handler tests")
}

func (f *fakeStore) ListExecutions(_ context.Context, params storage.ListExecutionsParams) ([]models.ExecutionLogEntry, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	entries := f.executions[params.MonitorID]
	if params.Limit > 0 && len(entries) > params.Limit {
		entries = entries[:params.Limit]
	}
	return entries, nil
}

func (f *fakeStore) GetTrace(_ context.Context, recordID int64) (json.RawMessage, error) {
	trace, ok := f.traces[recordID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return trace, nil
}

// fakeRunner implements CheckRunner with a canned response.
type fakeRunner struct {
	result    *models.ExecutionResult
	err       error
	lastRunID int64
}

func (f *fakeRunner) RunNow(_ context.Context, monitorID int64) (*models.ExecutionResult, error) {
	f.lastRunID = monitorID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type testAPI struct {
	store   *fakeStore
	runner  *fakeRunner
	tracker *health.Tracker
	clock   *clock.Mock
	router  http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := newFakeStore()
	runner := &fakeRunner{}
	clk := clock.NewMock()
	tracker := health.NewTracker(2*time.Minute, clk)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(store, runner, tracker, log)
	return &testAPI{
		store:   store,
		runner:  runner,
		tracker: tracker,
		clock:   clk,
		router:  NewRouter(h),
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Decode response body: %v", err)
	}
	return v
}

func createTestMonitor(t *testing.T, a *testAPI, name string) models.Monitor {
	t.Helper()

	body := fmt.Sprintf(`{"name": %q, "url": "https://example.com/%s"}`, name, name)
	rec := a.do(t, http.MethodPost, "/api/monitors", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Create monitor returned %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[models.Monitor](t, rec)
}

func TestListMonitorsEmpty(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/monitors", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("Expected empty array, got %q", got)
	}
}

func TestCreateMonitorDefaults(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/monitors", `{"name": "shop", "url": "https://shop.example.com"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	created := decodeBody[models.Monitor](t, rec)
	if created.ID != 1 {
		t.Errorf("Expected id 1, got %d", created.ID)
	}
	if !created.Enabled {
		t.Error("Expected enabled to default to true")
	}
	if created.TimeoutSeconds != models.DefaultTimeoutSeconds {
		t.Errorf("Expected default timeout %d, got %d", models.DefaultTimeoutSeconds, created.TimeoutSeconds)
	}

	rec = a.do(t, http.MethodGet, "/api/monitors/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from get, got %d", rec.Code)
	}
	got := decodeBody[models.Monitor](t, rec)
	if got.Name != "shop" {
		t.Errorf("Expected name shop, got %q", got.Name)
	}
}

func TestCreateMonitorExplicitlyDisabled(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/monitors",
		`{"name": "paused", "url": "https://example.com", "enabled": false, "timeout_seconds": 60}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	created := decodeBody[models.Monitor](t, rec)
	if created.Enabled {
		t.Error("Expected enabled false to be preserved")
	}
	if created.TimeoutSeconds != 60 {
		t.Errorf("Expected timeout 60, got %d", created.TimeoutSeconds)
	}
}

func TestCreateMonitorRejectsBadInput(t *testing.T) {
	a := newTestAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{"Malformed JSON", `{"name": `},
		{"Missing name", `{"url": "https://example.com"}`},
		{"Missing URL", `{"name": "nameless"}`},
		{"Non-HTTP URL", `{"name": "ftp", "url": "ftp://example.com"}`},
		{"Timeout out of range", `{"name": "slow", "url": "https://example.com", "timeout_seconds": 900}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/api/monitors", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListMonitorsStorageFailure(t *testing.T) {
	a := newTestAPI(t)
	a.store.failWith = fmt.Errorf("connection refused")

	rec := a.do(t, http.MethodGet, "/api/monitors", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}

	body := decodeBody[map[string]string](t, rec)
	if body["error"] == "" {
		t.Error("Expected an error message in the body")
	}
}

func TestCreateMonitorDuplicateName(t *testing.T) {
	a := newTestAPI(t)
	createTestMonitor(t, a, "dup")

	rec := a.do(t, http.MethodPost, "/api/monitors", `{"name": "dup", "url": "https://other.example.com"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetMonitorNotFound(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/monitors/42", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}

	rec = a.do(t, http.MethodGet, "/api/monitors/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric id, got %d", rec.Code)
	}
}

func TestUpdateMonitorPartial(t *testing.T) {
	a := newTestAPI(t)
	created := createTestMonitor(t, a, "docs")

	rec := a.do(t, http.MethodPut, fmt.Sprintf("/api/monitors/%d", created.ID), `{"enabled": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	updated := decodeBody[models.Monitor](t, rec)
	if updated.Enabled {
		t.Error("Expected enabled false after update")
	}
	if updated.Name != "docs" {
		t.Errorf("Expected name unchanged, got %q", updated.Name)
	}
	if updated.URL != created.URL {
		t.Errorf("Expected url unchanged, got %q", updated.URL)
	}
}

func TestUpdateMonitorNoFields(t *testing.T) {
	a := newTestAPI(t)
	created := createTestMonitor(t, a, "docs")

	rec := a.do(t, http.MethodPut, fmt.Sprintf("/api/monitors/%d", created.ID), `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	body := decodeBody[map[string]string](t, rec)
	if body["error"] != "no fields to update" {
		t.Errorf("Expected no-fields error, got %q", body["error"])
	}
}

func TestUpdateMonitorNotFound(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPut, "/api/monitors/42", `{"enabled": false}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestUpdateMonitorRejectsInvalidResult(t *testing.T) {
	a := newTestAPI(t)
	created := createTestMonitor(t, a, "docs")

	rec := a.do(t, http.MethodPut, fmt.Sprintf("/api/monitors/%d", created.ID), `{"url": "not a url"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteMonitor(t *testing.T) {
	a := newTestAPI(t)
	created := createTestMonitor(t, a, "gone")

	rec := a.do(t, http.MethodDelete, fmt.Sprintf("/api/monitors/%d", created.ID), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}

	rec = a.do(t, http.MethodDelete, fmt.Sprintf("/api/monitors/%d", created.ID), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", rec.Code)
	}
}

func TestExecuteMonitor(t *testing.T) {
	a := newTestAPI(t)
	created := createTestMonitor(t, a, "run-me")

	ttfb := 123.4
	a.runner.result = &models.ExecutionResult{
		CheckID:     "check-1",
		MonitorID:   created.ID,
		Status:      models.StatusSuccess,
		TTFBMs:      &ttfb,
		StartedAt:   time.Now(),
		CompletedAt: time.Now(),
		RecordID:    7,
	}

	rec := a.do(t, http.MethodPost, "/api/monitors/execute",
		fmt.Sprintf(`{"monitor_id": %d}`, created.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	result := decodeBody[models.ExecutionResult](t, rec)
	if result.CheckID != "check-1" {
		t.Errorf("Expected check-1, got %q", result.CheckID)
	}
	if result.RecordID != 7 {
		t.Errorf("Expected record id 7, got %d", result.RecordID)
	}
	if a.runner.lastRunID != created.ID {
		t.Errorf("Expected runner invoked with id %d, got %d", created.ID, a.runner.lastRunID)
	}
}

func TestExecuteMonitorUnknown(t *testing.T) {
	a := newTestAPI(t)
	a.runner.err = scheduler.ErrMonitorNotFound

	rec := a.do(t, http.MethodPost, "/api/monitors/execute", `{"monitor_id": 42}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestExecuteMonitorPersistenceFailure(t *testing.T) {
	a := newTestAPI(t)
	a.runner.err = fmt.Errorf("record check result: disk full")

	rec := a.do(t, http.MethodPost, "/api/monitors/execute", `{"monitor_id": 1}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

func TestExecuteMonitorBadRequest(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/monitors/execute", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing monitor_id, got %d", rec.Code)
	}
}

func TestListExecutions(t *testing.T) {
	a := newTestAPI(t)
	created := createTestMonitor(t, a, "history")

	ttfb := 100.0
	for i := 0; i < 5; i++ {
		a.store.executions[created.ID] = append(a.store.executions[created.ID], models.ExecutionLogEntry{
			ID:        int64(10 - i),
			MonitorID: created.ID,
			Status:    models.StatusSuccess,
			TTFBMs:    &ttfb,
			HasTrace:  true,
		})
	}

	rec := a.do(t, http.MethodGet, fmt.Sprintf("/api/monitors/%d/executions", created.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	entries := decodeBody[[]models.ExecutionLogEntry](t, rec)
	if len(entries) != 5 {
		t.Fatalf("Expected 5 entries, got %d", len(entries))
	}
	if entries[0].ID != 10 {
		t.Errorf("Expected newest entry first, got id %d", entries[0].ID)
	}
	if entries[0].TTFBMs == nil || *entries[0].TTFBMs != 100.0 {
		t.Error("Expected ttfb pivoted into the entry")
	}

	rec = a.do(t, http.MethodGet, fmt.Sprintf("/api/monitors/%d/executions?limit=2", created.ID), "")
	entries = decodeBody[[]models.ExecutionLogEntry](t, rec)
	if len(entries) != 2 {
		t.Errorf("Expected limit=2 honored, got %d entries", len(entries))
	}

	// Out-of-range limits fall back to the default.
	rec = a.do(t, http.MethodGet, fmt.Sprintf("/api/monitors/%d/executions?limit=9999", created.ID), "")
	entries = decodeBody[[]models.ExecutionLogEntry](t, rec)
	if len(entries) != 5 {
		t.Errorf("Expected default limit for out-of-range value, got %d entries", len(entries))
	}
}

func TestListExecutionsUnknownMonitor(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/monitors/42/executions", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestDownloadTrace(t *testing.T) {
	a := newTestAPI(t)
	har := json.RawMessage(`{"log": {"version": "1.2", "entries": []}}`)
	a.store.traces[7] = har

	rec := a.do(t, http.MethodGet, "/api/executions/7/trace", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "execution-7.har") {
		t.Errorf("Expected attachment filename in %q", cd)
	}
	if !bytes.Equal(rec.Body.Bytes(), har) {
		t.Errorf("Expected raw trace bytes, got %q", rec.Body.String())
	}

	rec = a.do(t, http.MethodGet, "/api/executions/8/trace", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing trace, got %d", rec.Code)
	}
}

func TestGrafanaDashboard(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/grafana/dashboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "synthetic-monitoring-dashboard.json") {
		t.Errorf("Expected attachment filename in %q", cd)
	}

	var dashboard map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &dashboard); err != nil {
		t.Fatalf("Dashboard is not valid JSON: %v", err)
	}
	if dashboard["uid"] != "synthetic-monitoring" {
		t.Errorf("Expected uid synthetic-monitoring, got %v", dashboard["uid"])
	}
	panels, ok := dashboard["panels"].([]any)
	if !ok || len(panels) != 4 {
		t.Errorf("Expected 4 panels, got %v", dashboard["panels"])
	}
}

func TestHealthzLifecycle(t *testing.T) {
	a := newTestAPI(t)

	// No checks yet: healthy until the first check establishes a baseline.
	rec := a.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 before first check, got %d", rec.Code)
	}

	a.tracker.RecordCheck(models.StatusSuccess)
	rec = a.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 after fresh check, got %d", rec.Code)
	}
	snap := decodeBody[health.Snapshot](t, rec)
	if snap.Status != "healthy" {
		t.Errorf("Expected healthy status, got %q", snap.Status)
	}
	if snap.CheckCount != 1 {
		t.Errorf("Expected check count 1, got %d", snap.CheckCount)
	}

	// Checks going stale flips readiness to 503.
	a.clock.Add(3 * time.Minute)
	rec = a.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 once stale, got %d", rec.Code)
	}
	snap = decodeBody[health.Snapshot](t, rec)
	if snap.Status != "unhealthy" {
		t.Errorf("Expected unhealthy status, got %q", snap.Status)
	}
}

func TestHealthzBrowserDown(t *testing.T) {
	a := newTestAPI(t)
	a.tracker.SetBrowserHealthy(false)

	rec := a.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when browser is down, got %d", rec.Code)
	}
}
