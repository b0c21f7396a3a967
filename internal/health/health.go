// Package health tracks check activity for the readiness endpoint. The
// tracker holds counters only; serving them over HTTP is the API
// server's job.
package health

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"synthmon/internal/models"
)

// Tracker accumulates check activity. Safe for concurrent use.
type Tracker struct {
	clock          clock.Clock
	staleThreshold time.Duration
	startedAt      time.Time

	mu             sync.RWMutex
	lastCheckTime  time.Time
	checkCount     int64
	successCount   int64
	timeoutCount   int64
	errorCount     int64
	browserHealthy bool
}

// Snapshot is the JSON shape served by the readiness endpoint.
type Snapshot struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	LastCheckTime  time.Time `json:"last_check_time,omitempty"`
	CheckCount     int64     `json:"check_count"`
	SuccessCount   int64     `json:"success_count"`
	TimeoutCount   int64     `json:"timeout_count"`
	ErrorCount     int64     `json:"error_count"`
	BrowserHealthy bool      `json:"browser_healthy"`
	Uptime         string    `json:"uptime"`
}

// NewTracker creates a tracker. Checks older than staleThreshold mark
// the service unhealthy once at least one check has run.
func NewTracker(staleThreshold time.Duration, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		clock:          clk,
		staleThreshold: staleThreshold,
		startedAt:      clk.Now(),
		browserHealthy: true,
	}
}

// RecordCheck records one finished check.
func (t *Tracker) RecordCheck(status models.Status) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastCheckTime = t.clock.Now()
	t.checkCount++

	switch status {
	case models.StatusSuccess:
		t.successCount++
	case models.StatusTimeout:
		t.timeoutCount++
	default:
		t.errorCount++
	}
}

// SetBrowserHealthy flags whether Chrome can currently be started.
func (t *Tracker) SetBrowserHealthy(healthy bool) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.browserHealthy = healthy
}

// Healthy reports whether the service should pass readiness.
func (t *Tracker) Healthy() bool {
	return t.Snapshot().Status == "healthy"
}

// Snapshot returns the current state. Unhealthy when the browser is
// down or the last check is older than the stale threshold.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := "healthy"
	if t.checkCount > 0 && t.clock.Since(t.lastCheckTime) > t.staleThreshold {
		status = "unhealthy"
	}
	if !t.browserHealthy {
		status = "unhealthy"
	}

	return Snapshot{
		Status:         status,
		Timestamp:      t.clock.Now(),
		LastCheckTime:  t.lastCheckTime,
		CheckCount:     t.checkCount,
		SuccessCount:   t.successCount,
		TimeoutCount:   t.timeoutCount,
		ErrorCount:     t.errorCount,
		BrowserHealthy: t.browserHealthy,
		Uptime:         t.clock.Since(t.startedAt).String(),
	}
}
