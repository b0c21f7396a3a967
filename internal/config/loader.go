package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"synthmon/internal/models"
)

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) error {
	// Scheduler settings
	if v := os.Getenv("CHECK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CHECK_INTERVAL: %w", err)
		}
		cfg.Scheduler.CheckInterval = Duration(d)
	}

	if v := os.Getenv("RECOVERY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RECOVERY_DELAY: %w", err)
		}
		cfg.Scheduler.RecoveryDelay = Duration(d)
	}

	if v := os.Getenv("CACHE_SIZE"); v != "" {
		var size int
		fmt.Sscanf(v, "%d", &size)
		if size > 0 {
			cfg.Scheduler.CacheSize = size
		}
	}

	// Monitors from comma-separated list
	if v := os.Getenv("MONITORS"); v != "" {
		monitors, err := ParseSimpleMonitorList(v)
		if err != nil {
			return fmt.Errorf("invalid MONITORS: %w", err)
		}
		cfg.Monitors.List = monitors
	}

	// Database
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("DB_URL"); v != "" {
		cfg.Database.URL = v
	}

	// Browser settings
	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		cfg.Browser.Headless = v == "true" || v == "1"
	}

	if v := os.Getenv("BROWSER_USER_AGENT"); v != "" {
		cfg.Browser.UserAgent = v
	}

	if v := os.Getenv("BROWSER_DISABLE_IMAGES"); v != "" {
		cfg.Browser.DisableImages = v == "true" || v == "1"
	}

	if v := os.Getenv("BROWSER_EXEC_PATH"); v != "" {
		cfg.Browser.ExecPath = v
	}

	// Trace capture
	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		cfg.Trace.Enabled = v == "true" || v == "1"
	}

	// Logging
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// API
	if v := os.Getenv("API_ENABLED"); v != "" {
		cfg.API.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("API_PORT"); v != "" {
		var port int
		fmt.Sscanf(v, "%d", &port)
		if port > 0 {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("API_LISTEN_ADDRESS"); v != "" {
		cfg.API.ListenAddress = v
	}

	// Elasticsearch
	if v := os.Getenv("ES_ENABLED"); v != "" {
		cfg.Elasticsearch.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("ES_ENDPOINT"); v != "" {
		cfg.Elasticsearch.Endpoint = v
	}

	if v := os.Getenv("ES_INDEX_PATTERN"); v != "" {
		cfg.Elasticsearch.IndexPattern = v
	}

	if v := os.Getenv("ES_USERNAME"); v != "" {
		cfg.Elasticsearch.Username = v
	}

	if v := os.Getenv("ES_PASSWORD"); v != "" {
		cfg.Elasticsearch.Password = v
	}

	if v := os.Getenv("ES_API_KEY"); v != "" {
		cfg.Elasticsearch.APIKey = v
	}

	if v := os.Getenv("ES_BULK_SIZE"); v != "" {
		var size int
		fmt.Sscanf(v, "%d", &size)
		if size > 0 {
			cfg.Elasticsearch.BulkSize = size
		}
	}

	if v := os.Getenv("ES_FLUSH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ES_FLUSH_INTERVAL: %w", err)
		}
		cfg.Elasticsearch.FlushInterval = Duration(d)
	}

	if v := os.Getenv("ES_TLS_SKIP_VERIFY"); v != "" {
		cfg.Elasticsearch.TLSSkipVerify = v == "true" || v == "1"
	}

	// SNMP
	if v := os.Getenv("SNMP_ENABLED"); v != "" {
		cfg.SNMP.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("SNMP_PORT"); v != "" {
		var port int
		fmt.Sscanf(v, "%d", &port)
		if port > 0 {
			cfg.SNMP.Port = port
		}
	}

	if v := os.Getenv("SNMP_COMMUNITY"); v != "" {
		cfg.SNMP.Community = v
	}

	if v := os.Getenv("SNMP_LISTEN_ADDRESS"); v != "" {
		cfg.SNMP.ListenAddress = v
	}

	// Prometheus
	if v := os.Getenv("PROM_ENABLED"); v != "" {
		cfg.Prometheus.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("PROM_PORT"); v != "" {
		var port int
		fmt.Sscanf(v, "%d", &port)
		if port > 0 {
			cfg.Prometheus.Port = port
		}
	}

	if v := os.Getenv("PROM_PATH"); v != "" {
		cfg.Prometheus.Path = v
	}

	if v := os.Getenv("PROM_LISTEN_ADDRESS"); v != "" {
		cfg.Prometheus.ListenAddress = v
	}

	// Advanced
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.Advanced.ShutdownTimeout = Duration(d)
	}

	if v := os.Getenv("STALE_THRESHOLD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid STALE_THRESHOLD: %w", err)
		}
		cfg.Advanced.StaleThreshold = Duration(d)
	}

	return nil
}

// ParseSimpleMonitorList parses a comma-separated list of domains/URLs
// into monitor seeds. Bare domains are normalized to https URLs and the
// monitor name is derived from the host.
func ParseSimpleMonitorList(monitorsStr string) ([]models.Monitor, error) {
	if monitorsStr == "" {
		return nil, nil
	}

	parts := strings.Split(monitorsStr, ",")
	monitors := make([]models.Monitor, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		// Normalize to full URL
		url := part
		if !strings.HasPrefix(part, "http://") && !strings.HasPrefix(part, "https://") {
			url = "https://" + part
		}

		// Derive name from domain
		name := part
		name = strings.TrimPrefix(name, "https://")
		name = strings.TrimPrefix(name, "http://")
		name = strings.TrimPrefix(name, "www.")
		if idx := strings.Index(name, "/"); idx > 0 {
			name = name[:idx]
		}
		if idx := strings.Index(name, "."); idx > 0 {
			name = name[:idx]
		}

		monitors = append(monitors, models.Monitor{
			URL:            url,
			Name:           name,
			Enabled:        true,
			TimeoutSeconds: models.DefaultTimeoutSeconds,
		})
	}

	return monitors, nil
}
