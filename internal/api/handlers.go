// Package api serves the monitor registry and engine control surface
// over HTTP. The engine itself never calls into this package; handlers
// talk to storage and to the scheduler's RunNow entry point only.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"synthmon/internal/health"
	"synthmon/internal/models"
	"synthmon/internal/scheduler"
	"synthmon/internal/storage"
)

// CheckRunner triggers a single on-demand check outside the scheduled
// loop. Satisfied by *scheduler.Scheduler.
type CheckRunner interface {
	RunNow(ctx context.Context, monitorID int64) (*models.ExecutionResult, error)
}

// Handlers holds the dependencies shared by all HTTP handlers.
type Handlers struct {
	store  storage.Storer
	runner CheckRunner
	health *health.Tracker
	log    *slog.Logger
}

// NewHandlers creates the handler set. runner and tracker may be nil,
// in which case execute-now returns 503 and healthz reports unhealthy.
func NewHandlers(store storage.Storer, runner CheckRunner, tracker *health.Tracker, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		store:  store,
		runner: runner,
		health: tracker,
		log:    log,
	}
}

// createMonitorRequest is the POST /api/monitors body. Enabled is a
// pointer so an absent field defaults to true rather than false.
type createMonitorRequest struct {
	Name           string   `json:"name"`
	URL            string   `json:"url"`
	ScheduleCron   string   `json:"schedule_cron"`
	Enabled        *bool    `json:"enabled"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Tags           []string `json:"tags"`
}

// updateMonitorRequest is the PUT /api/monitors/{id} body. Every field
// is optional; only the fields present are applied.
type updateMonitorRequest struct {
	Name           *string   `json:"name"`
	URL            *string   `json:"url"`
	ScheduleCron   *string   `json:"schedule_cron"`
	Enabled        *bool     `json:"enabled"`
	TimeoutSeconds *int      `json:"timeout_seconds"`
	Tags           *[]string `json:"tags"`
}

func (r *updateMonitorRequest) empty() bool {
	return r.Name == nil && r.URL == nil && r.ScheduleCron == nil &&
		r.Enabled == nil && r.TimeoutSeconds == nil && r.Tags == nil
}

type executeNowRequest struct {
	MonitorID int64 `json:"monitor_id"`
}

// ListMonitors handles GET /api/monitors.
func (h *Handlers) ListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := h.store.ListMonitors(r.Context())
	if err != nil {
		h.log.Error("List monitors failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list monitors")
		return
	}
	if monitors == nil {
		monitors = []models.Monitor{}
	}
	writeJSON(w, http.StatusOK, monitors)
}

// CreateMonitor handles POST /api/monitors.
func (h *Handlers) CreateMonitor(w http.ResponseWriter, r *http.Request) {
	var req createMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	monitor := &models.Monitor{
		Name:           req.Name,
		URL:            req.URL,
		ScheduleCron:   req.ScheduleCron,
		Enabled:        req.Enabled == nil || *req.Enabled,
		TimeoutSeconds: req.TimeoutSeconds,
		Tags:           req.Tags,
	}
	if err := monitor.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.store.CreateMonitor(r.Context(), monitor)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateName) {
			writeError(w, http.StatusConflict, fmt.Sprintf("monitor named %q already exists", monitor.Name))
			return
		}
		h.log.Error("Create monitor failed", "monitor", monitor.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create monitor")
		return
	}

	h.log.Info("Monitor created", "id", created.ID, "monitor", created.Name, "url", created.URL)
	writeJSON(w, http.StatusCreated, created)
}

// GetMonitor handles GET /api/monitors/{id}.
func (h *Handlers) GetMonitor(w http.ResponseWriter, r *http.Request) {
	id, ok := monitorID(w, r)
	if !ok {
		return
	}

	monitor, err := h.store.GetMonitor(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		h.log.Error("Get monitor failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load monitor")
		return
	}
	writeJSON(w, http.StatusOK, monitor)
}

// UpdateMonitor handles PUT /api/monitors/{id}. Only the fields present
// in the body are changed; a body with no known fields is rejected.
func (h *Handlers) UpdateMonitor(w http.ResponseWriter, r *http.Request) {
	id, ok := monitorID(w, r)
	if !ok {
		return
	}

	var req updateMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.empty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	monitor, err := h.store.GetMonitor(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		h.log.Error("Get monitor failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load monitor")
		return
	}

	if req.Name != nil {
		monitor.Name = *req.Name
	}
	if req.URL != nil {
		monitor.URL = *req.URL
	}
	if req.ScheduleCron != nil {
		monitor.ScheduleCron = *req.ScheduleCron
	}
	if req.Enabled != nil {
		monitor.Enabled = *req.Enabled
	}
	if req.TimeoutSeconds != nil {
		monitor.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.Tags != nil {
		monitor.Tags = *req.Tags
	}
	if err := monitor.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.store.UpdateMonitor(r.Context(), monitor)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "monitor not found")
		case errors.Is(err, storage.ErrDuplicateName):
			writeError(w, http.StatusConflict, fmt.Sprintf("monitor named %q already exists", monitor.Name))
		default:
			h.log.Error("Update monitor failed", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update monitor")
		}
		return
	}

	h.log.Info("Monitor updated", "id", updated.ID, "monitor", updated.Name)
	writeJSON(w, http.StatusOK, updated)
}

// DeleteMonitor handles DELETE /api/monitors/{id}.
func (h *Handlers) DeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id, ok := monitorID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteMonitor(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		h.log.Error("Delete monitor failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete monitor")
		return
	}

	h.log.Info("Monitor deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// ExecuteMonitor handles POST /api/monitors/execute. The check runs
// synchronously and the full result, trace included, is returned.
func (h *Handlers) ExecuteMonitor(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is not running")
		return
	}

	var req executeNowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MonitorID <= 0 {
		writeError(w, http.StatusBadRequest, "monitor_id is required")
		return
	}

	result, err := h.runner.RunNow(r.Context(), req.MonitorID)
	if err != nil {
		if errors.Is(err, scheduler.ErrMonitorNotFound) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		h.log.Error("On-demand check failed", "id", req.MonitorID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record check result")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListExecutions handles GET /api/monitors/{id}/executions. Results are
// newest first with the three metrics pivoted into columns; the raw
// trace is served separately by DownloadTrace.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := monitorID(w, r)
	if !ok {
		return
	}

	if _, err := h.store.GetMonitor(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		h.log.Error("Get monitor failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load monitor")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	entries, err := h.store.ListExecutions(r.Context(), storage.ListExecutionsParams{
		MonitorID: id,
		Limit:     limit,
	})
	if err != nil {
		h.log.Error("List executions failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if entries == nil {
		entries = []models.ExecutionLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// DownloadTrace handles GET /api/executions/{id}/trace and serves the
// stored HAR document for one execution record.
func (h *Handlers) DownloadTrace(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid execution id")
		return
	}

	trace, err := h.store.GetTrace(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no trace recorded for this execution")
			return
		}
		h.log.Error("Get trace failed", "record_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load trace")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=execution-%d.har", id))
	w.WriteHeader(http.StatusOK)
	w.Write(trace)
}

// GrafanaDashboard handles GET /api/grafana/dashboard and serves an
// importable dashboard wired to the persisted schema.
func (h *Handlers) GrafanaDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=synthetic-monitoring-dashboard.json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(grafanaDashboardJSON))
}

// Healthz handles GET /healthz. Returns 503 once checks go stale or the
// browser stops launching, so orchestrators restart the engine.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeError(w, http.StatusServiceUnavailable, "health tracking is not configured")
		return
	}

	snap := h.health.Snapshot()
	status := http.StatusOK
	if snap.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}

// monitorID parses the {id} path segment, writing a 400 on bad input.
func monitorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid monitor id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
