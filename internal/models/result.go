package models

import (
	"encoding/json"
	"time"
)

// Status classifies the outcome of a single check.
type Status string

const (
	// StatusSuccess means navigation completed within the timeout
	StatusSuccess Status = "success"

	// StatusTimeout means navigation exceeded the monitor's timeout
	StatusTimeout Status = "timeout"

	// StatusError covers every other session or navigation failure
	StatusError Status = "error"
)

// Metric names as persisted; downstream dashboards query these literals.
const (
	MetricTTFB             = "ttfb_ms"
	MetricDOMContentLoaded = "dom_content_loaded_ms"
	MetricPageLoad         = "page_load_time_ms"
)

// ExecutionResult represents the outcome of one check. It is created by
// the checker, owned by it until handed to the result logger, and never
// persisted directly.
type ExecutionResult struct {
	// CheckID is a unique identifier for this check
	CheckID string `json:"check_id"`

	// MonitorID identifies the monitor that was checked
	MonitorID int64 `json:"monitor_id"`

	Status Status `json:"status"`

	// ErrorMessage is set whenever Status is timeout or error
	ErrorMessage string `json:"error_message,omitempty"`

	// Timing metrics in milliseconds; nil when the browser did not
	// expose the underlying value. Absence is not an error.
	TTFBMs             *float64 `json:"ttfb_ms,omitempty"`
	DOMContentLoadedMs *float64 `json:"dom_content_loaded_ms,omitempty"`
	PageLoadMs         *float64 `json:"page_load_time_ms,omitempty"`

	// Trace is the HAR captured during the check, if any
	Trace json.RawMessage `json:"har_data,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// RecordID is filled in after the result has been logged, so
	// on-demand callers can correlate the persisted record
	RecordID int64 `json:"record_id,omitempty"`

	// TraceError notes a trace-capture failure for observability.
	// It never fails the check and is never persisted.
	TraceError string `json:"-"`
}

// Duration returns the wall-clock time the check took
func (r *ExecutionResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// ExecutionRecord is the persisted form of a result: exactly one row per
// check, immutable once written except for a later trace-attach update.
type ExecutionRecord struct {
	ID           int64           `json:"id"`
	MonitorID    int64           `json:"monitor_id"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  time.Time       `json:"completed_at"`
	Status       Status          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Trace        json.RawMessage `json:"har_data,omitempty"`
}

// MetricRow is one persisted metric value; zero to three rows accompany
// each ExecutionRecord.
type MetricRow struct {
	Name       string    `json:"metric_name"`
	Value      *float64  `json:"metric_value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ExecutionLogEntry is the API view of a record with its metric rows
// pivoted into columns.
type ExecutionLogEntry struct {
	ID                 int64     `json:"id"`
	MonitorID          int64     `json:"monitor_id"`
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at"`
	Status             Status    `json:"status"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	TTFBMs             *float64  `json:"ttfb_ms"`
	DOMContentLoadedMs *float64  `json:"dom_content_loaded_ms"`
	PageLoadMs         *float64  `json:"page_load_time_ms"`
	HasTrace           bool      `json:"has_trace"`
}

// CheckEvent pairs a result with the monitor it was produced for; this is
// what gets fanned out to the secondary outputs.
type CheckEvent struct {
	Monitor Monitor          `json:"monitor"`
	Result  *ExecutionResult `json:"result"`
}
