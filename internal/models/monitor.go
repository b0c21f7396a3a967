package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Timeout bounds enforced on create/update, matching what the API accepts.
const (
	MinTimeoutSeconds     = 5
	MaxTimeoutSeconds     = 300
	DefaultTimeoutSeconds = 30
)

// Monitor represents a registered URL to check on the scheduled loop.
// The scheduling engine treats monitors as read-only; they are created
// and mutated only through the registry.
type Monitor struct {
	// ID is assigned by the registry on creation
	ID int64 `yaml:"-" json:"id"`

	// Name is a short, human-readable identifier (e.g., "marketing-home")
	Name string `yaml:"name" json:"name"`

	// URL is the full URL to drive the browser against
	URL string `yaml:"url" json:"url"`

	// ScheduleCron is stored and served for operators but never evaluated;
	// the loop runs every monitor on a fixed interval
	ScheduleCron string `yaml:"schedule_cron" json:"schedule_cron,omitempty"`

	// Enabled controls whether the scheduled loop picks this monitor up
	Enabled bool `yaml:"enabled" json:"enabled"`

	// TimeoutSeconds bounds a single navigation attempt
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`

	// Tags group monitors for filtering in downstream dashboards
	Tags []string `yaml:"tags" json:"tags,omitempty"`

	CreatedAt time.Time `yaml:"-" json:"created_at"`
	UpdatedAt time.Time `yaml:"-" json:"updated_at"`
}

// GetTimeout returns the navigation timeout for this monitor
func (m *Monitor) GetTimeout() time.Duration {
	if m.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// Validate normalizes defaults and rejects definitions the engine
// cannot execute. Called on API create/update and on config seeds.
func (m *Monitor) Validate() error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("monitor name is required")
	}
	u, err := url.Parse(strings.TrimSpace(m.URL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("monitor url must be a valid http(s) URL, got %q", m.URL)
	}
	m.URL = u.String()
	if m.ScheduleCron == "" {
		m.ScheduleCron = "* * * * *"
	}
	if m.TimeoutSeconds == 0 {
		m.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if m.TimeoutSeconds < MinTimeoutSeconds || m.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("timeout_seconds must be between %d and %d, got %d",
			MinTimeoutSeconds, MaxTimeoutSeconds, m.TimeoutSeconds)
	}
	return nil
}
