package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"synthmon/internal/models"
)

// Duration is a time.Duration that unmarshals from YAML scalars written
// in Go duration syntax ("90s", "2m") or as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Config represents the complete application configuration
type Config struct {
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Monitors      MonitorsConfig      `yaml:"monitors"`
	Database      DatabaseConfig      `yaml:"database"`
	Browser       BrowserConfig       `yaml:"browser"`
	Trace         TraceConfig         `yaml:"trace"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	SNMP          SNMPConfig          `yaml:"snmp"`
	Prometheus    PrometheusConfig    `yaml:"prometheus"`
	Advanced      AdvancedConfig      `yaml:"advanced"`
}

// SchedulerConfig contains check loop settings
type SchedulerConfig struct {
	CheckInterval Duration `yaml:"check_interval"`
	RecoveryDelay Duration `yaml:"recovery_delay"`
	CacheSize     int      `yaml:"cache_size"`
}

// MonitorsConfig contains monitors seeded into storage at startup
type MonitorsConfig struct {
	List []models.Monitor `yaml:"list"`
}

// DatabaseConfig selects and configures the storage backend
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

// BrowserConfig contains browser-specific settings
type BrowserConfig struct {
	Headless      bool   `yaml:"headless"`
	UserAgent     string `yaml:"user_agent"`
	WindowWidth   int    `yaml:"window_width"`
	WindowHeight  int    `yaml:"window_height"`
	DisableImages bool   `yaml:"disable_images"`
	ExecPath      string `yaml:"exec_path"`
}

// TraceConfig controls network trace capture
type TraceConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Port          int    `yaml:"port"`
	ListenAddress string `yaml:"listen_address"`
}

// ElasticsearchConfig contains Elasticsearch output settings
type ElasticsearchConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Endpoint      string   `yaml:"endpoint"`
	IndexPattern  string   `yaml:"index_pattern"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	APIKey        string   `yaml:"api_key"`
	BulkSize      int      `yaml:"bulk_size"`
	FlushInterval Duration `yaml:"flush_interval"`
	MaxRetries    int      `yaml:"max_retries"`
	TLSSkipVerify bool     `yaml:"tls_skip_verify"`
}

// SNMPConfig contains SNMP agent settings
type SNMPConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Port          int    `yaml:"port"`
	Community     string `yaml:"community"`
	ListenAddress string `yaml:"listen_address"`
	EnterpriseOID string `yaml:"enterprise_oid"`
}

// PrometheusConfig contains Prometheus exporter settings
type PrometheusConfig struct {
	Enabled          bool      `yaml:"enabled"`
	Port             int       `yaml:"port"`
	Path             string    `yaml:"path"`
	ListenAddress    string    `yaml:"listen_address"`
	IncludeGoMetrics bool      `yaml:"include_go_metrics"`
	LatencyBuckets   []float64 `yaml:"latency_buckets"`
}

// AdvancedConfig contains shutdown and health settings
type AdvancedConfig struct {
	ShutdownTimeout         Duration `yaml:"shutdown_timeout"`
	StaleThreshold          Duration `yaml:"stale_threshold"`
	BrowserFailureThreshold int      `yaml:"browser_failure_threshold"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configFile, err)
		}
	}

	// Override with environment variables
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			CheckInterval: Duration(60 * time.Second),
			RecoveryDelay: Duration(10 * time.Second),
			CacheSize:     100,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "synthmon.db",
		},
		Browser: BrowserConfig{
			Headless:     true,
			UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Trace: TraceConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		API: APIConfig{
			Enabled:       true,
			Port:          8080,
			ListenAddress: "0.0.0.0",
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:       false,
			IndexPattern:  "synthmon-checks-%{+yyyy.MM.dd}",
			BulkSize:      50,
			FlushInterval: Duration(10 * time.Second),
			MaxRetries:    3,
		},
		SNMP: SNMPConfig{
			Enabled:       false,
			Port:          161,
			Community:     "public",
			ListenAddress: "0.0.0.0",
			EnterpriseOID: ".1.3.6.1.4.1.99999",
		},
		Prometheus: PrometheusConfig{
			Enabled:          true,
			Port:             9090,
			Path:             "/metrics",
			ListenAddress:    "0.0.0.0",
			IncludeGoMetrics: true,
			LatencyBuckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		Advanced: AdvancedConfig{
			ShutdownTimeout:         Duration(30 * time.Second),
			StaleThreshold:          Duration(5 * time.Minute),
			BrowserFailureThreshold: 5,
		},
	}
}
