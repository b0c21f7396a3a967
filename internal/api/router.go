package api

import "net/http"

// NewRouter builds the route table for the control API.
func NewRouter(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/monitors", h.ListMonitors)
	mux.HandleFunc("POST /api/monitors", h.CreateMonitor)
	mux.HandleFunc("POST /api/monitors/execute", h.ExecuteMonitor)
	mux.HandleFunc("GET /api/monitors/{id}", h.GetMonitor)
	mux.HandleFunc("PUT /api/monitors/{id}", h.UpdateMonitor)
	mux.HandleFunc("DELETE /api/monitors/{id}", h.DeleteMonitor)
	mux.HandleFunc("GET /api/monitors/{id}/executions", h.ListExecutions)
	mux.HandleFunc("GET /api/executions/{id}/trace", h.DownloadTrace)
	mux.HandleFunc("GET /api/grafana/dashboard", h.GrafanaDashboard)
	mux.HandleFunc("GET /healthz", h.Healthz)

	return mux
}
