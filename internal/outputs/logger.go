package outputs

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"synthmon/internal/config"
	"synthmon/internal/models"
)

// Logger outputs check results as JSON lines to stdout
type Logger struct {
	logger *slog.Logger
	config *config.LoggingConfig
}

// NewLogger creates a new JSON logger
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	// Create a structured logger (only used for text format)
	// For JSON format, we write raw JSON directly in Write() method
	var logger *slog.Logger

	if cfg.Format != "json" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: ParseLogLevel(cfg.Level),
		}))
	}

	return &Logger{
		logger: logger,
		config: cfg,
	}, nil
}

// checkLine is the JSON shape of one logged check. The HAR is replaced
// by a has_trace flag to keep log lines bounded.
type checkLine struct {
	CheckID            string    `json:"check_id"`
	MonitorID          int64     `json:"monitor_id"`
	Monitor            string    `json:"monitor"`
	URL                string    `json:"url"`
	Status             string    `json:"status"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	TTFBMs             *float64  `json:"ttfb_ms,omitempty"`
	DOMContentLoadedMs *float64  `json:"dom_content_loaded_ms,omitempty"`
	PageLoadMs         *float64  `json:"page_load_time_ms,omitempty"`
	DurationMs         int64     `json:"duration_ms"`
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at"`
	RecordID           int64     `json:"record_id,omitempty"`
	HasTrace           bool      `json:"has_trace"`
}

// Write outputs a check event to stdout
func (l *Logger) Write(event *models.CheckEvent) error {
	res := event.Result

	// For JSON format, output one raw JSON line per check
	if l.config.Format == "json" {
		line := checkLine{
			CheckID:            res.CheckID,
			MonitorID:          res.MonitorID,
			Monitor:            event.Monitor.Name,
			URL:                event.Monitor.URL,
			Status:             string(res.Status),
			ErrorMessage:       res.ErrorMessage,
			TTFBMs:             res.TTFBMs,
			DOMContentLoadedMs: res.DOMContentLoadedMs,
			PageLoadMs:         res.PageLoadMs,
			DurationMs:         res.Duration().Milliseconds(),
			StartedAt:          res.StartedAt,
			CompletedAt:        res.CompletedAt,
			RecordID:           res.RecordID,
			HasTrace:           len(res.Trace) > 0,
		}
		data, err := json.Marshal(line)
		if err != nil {
			return err
		}
		// Write directly to stdout for clean JSON lines
		os.Stdout.Write(data)
		os.Stdout.Write([]byte("\n"))
		return nil
	}

	// For text format, use structured logging
	l.logger.Info("check_result",
		"monitor", event.Monitor.Name,
		"status", res.Status,
		"duration_ms", res.Duration().Milliseconds(),
		"record_id", res.RecordID,
	)

	return nil
}

// Name returns the output module name
func (l *Logger) Name() string {
	return "logger"
}

// NewRootLogger builds the process-wide slog logger from the logging
// config. The serve command installs it as the slog default.
func NewRootLogger(cfg *config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// ParseLogLevel converts string to slog.Level
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
