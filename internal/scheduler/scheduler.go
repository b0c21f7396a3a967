// Package scheduler owns the fixed-interval check loop and on-demand
// check execution. The loop drains a snapshot of enabled monitors
// sequentially each tick; nothing short of an explicit Stop terminates
// it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"synthmon/internal/checker"
	"synthmon/internal/models"
	"synthmon/internal/storage"
)

// State of the loop. Transitions happen only in Start and Stop.
type State int32

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// ErrMonitorNotFound is returned by RunNow for unknown monitor ids.
// Nothing is executed or persisted in that case.
var ErrMonitorNotFound = errors.New("monitor not found")

// ErrAlreadyRunning is returned by Start when the loop is active.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Registry supplies the monitors the loop operates on.
type Registry interface {
	ListEnabledMonitors(ctx context.Context) ([]models.Monitor, error)
	GetMonitor(ctx context.Context, id int64) (models.Monitor, error)
}

// Checker executes a single check. Failures are encoded in the result,
// never returned.
type Checker interface {
	Execute(ctx context.Context, mon models.Monitor) *models.ExecutionResult
}

// ResultLogger persists a finished check and returns its record id.
type ResultLogger interface {
	Log(ctx context.Context, result *models.ExecutionResult) (int64, error)
}

// EventSink receives every finished check for fan-out to outputs.
type EventSink interface {
	Dispatch(event *models.CheckEvent)
}

// HealthSink receives per-check activity for the readiness endpoint.
type HealthSink interface {
	RecordCheck(status models.Status)
	SetBrowserHealthy(healthy bool)
}

// Options tune the loop. Zero values fall back to defaults.
type Options struct {
	// Interval between the end of one tick and the start of the next
	Interval time.Duration

	// RecoveryDelay replaces Interval after a failed snapshot fetch
	RecoveryDelay time.Duration

	// FailureThreshold is the consecutive browser startup failure count
	// at which the browser is reported unhealthy
	FailureThreshold int

	Clock  clock.Clock
	Logger *slog.Logger
	Events EventSink
	Health HealthSink
}

// Scheduler runs checks on a fixed cadence and on demand.
type Scheduler struct {
	registry Registry
	checker  Checker
	results  ResultLogger
	events   EventSink
	health   HealthSink
	clock    clock.Clock
	logger   *slog.Logger

	interval         time.Duration
	recoveryDelay    time.Duration
	failureThreshold int

	state    atomic.Int32
	mu       sync.Mutex
	stopping bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	failMu          sync.Mutex
	browserFailures int
}

// New creates a stopped scheduler.
func New(registry Registry, chk Checker, results ResultLogger, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.RecoveryDelay <= 0 {
		opts.RecoveryDelay = 10 * time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Scheduler{
		registry:         registry,
		checker:          chk,
		results:          results,
		events:           opts.Events,
		health:           opts.Health,
		clock:            opts.Clock,
		logger:           opts.Logger,
		interval:         opts.Interval,
		recoveryDelay:    opts.RecoveryDelay,
		failureThreshold: opts.FailureThreshold,
	}
}

// State reports whether the loop is running.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start launches the loop. The first tick runs immediately. Starting a
// running scheduler is an error; starting a stopped one again is fine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if State(s.state.Load()) == StateRunning {
		return ErrAlreadyRunning
	}

	s.stopChan = make(chan struct{})
	s.state.Store(int32(StateRunning))
	s.wg.Add(1)
	go s.run(ctx, s.stopChan)
	return nil
}

// Stop requests graceful termination and blocks until the in-flight
// tick has drained. Every monitor already in that tick's snapshot still
// gets a result and a log entry. Stopping a stopped scheduler is a
// no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if State(s.state.Load()) != StateRunning || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.state.Store(int32(StateStopped))
	s.stopping = false
	s.mu.Unlock()
}

// run is the loop body. The stop channel is observed at the top of each
// iteration and while sleeping, never inside a sweep.
func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	s.logger.Info("Starting check loop",
		"interval", s.interval,
		"recovery_delay", s.recoveryDelay,
	)

	for {
		select {
		case <-stop:
			s.logger.Info("Check loop stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Check loop stopped by context")
			s.state.Store(int32(StateStopped))
			return
		default:
		}

		delay := s.interval
		if err := s.runIteration(ctx); err != nil {
			s.logger.Error("Check iteration failed", "error", err)
			delay = s.recoveryDelay
		}

		select {
		case <-stop:
			s.logger.Info("Check loop stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Check loop stopped by context")
			s.state.Store(int32(StateStopped))
			return
		case <-s.clock.After(delay):
		}
	}
}

// runIteration drains one snapshot of enabled monitors. Only a snapshot
// fetch failure is returned; per-monitor failures are handled in place
// and never abort the sweep.
func (s *Scheduler) runIteration(ctx context.Context) error {
	monitors, err := s.registry.ListEnabledMonitors(ctx)
	if err != nil {
		return fmt.Errorf("list enabled monitors: %w", err)
	}

	if len(monitors) == 0 {
		s.logger.Debug("No enabled monitors in this tick")
		return nil
	}

	s.logger.Debug("Starting tick", "monitors", len(monitors))

	for _, mon := range monitors {
		s.runMonitor(ctx, mon)
	}

	return nil
}

func (s *Scheduler) runMonitor(ctx context.Context, mon models.Monitor) {
	s.logger.Debug("Checking monitor",
		"monitor", mon.Name,
		"url", mon.URL,
	)

	result := s.checker.Execute(ctx, mon)
	s.observe(result)

	id, err := s.results.Log(ctx, result)
	if err != nil {
		s.logger.Error("Failed to persist check result",
			"monitor", mon.Name,
			"monitor_id", mon.ID,
			"error", err,
		)
	} else {
		result.RecordID = id
	}

	s.dispatch(mon, result)
}

// RunNow executes one monitor immediately, outside the loop's cadence,
// and returns its result. A concurrent tick is unaffected. A
// persistence failure is returned alongside the result; the check
// itself still happened.
func (s *Scheduler) RunNow(ctx context.Context, monitorID int64) (*models.ExecutionResult, error) {
	mon, err := s.registry.GetMonitor(ctx, monitorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrMonitorNotFound
		}
		return nil, fmt.Errorf("load monitor %d: %w", monitorID, err)
	}

	result := s.checker.Execute(ctx, mon)
	s.observe(result)

	id, logErr := s.results.Log(ctx, result)
	if logErr == nil {
		result.RecordID = id
	}
	s.dispatch(mon, result)

	if logErr != nil {
		return result, fmt.Errorf("persist check result: %w", logErr)
	}
	return result, nil
}

// observe feeds health tracking and counts consecutive browser startup
// failures. A run of failures marks the browser unhealthy; any other
// outcome clears the run.
func (s *Scheduler) observe(result *models.ExecutionResult) {
	if s.health != nil {
		s.health.RecordCheck(result.Status)
	}

	s.failMu.Lock()
	defer s.failMu.Unlock()

	if checker.IsBrowserFailure(result) {
		s.browserFailures++
		s.logger.Warn("Browser failed to start",
			"consecutive_failures", s.browserFailures,
			"threshold", s.failureThreshold,
		)
		if s.browserFailures == s.failureThreshold {
			s.logger.Error("Browser startup failing repeatedly",
				"consecutive_failures", s.browserFailures,
			)
			if s.health != nil {
				s.health.SetBrowserHealthy(false)
			}
		}
		return
	}

	if s.browserFailures >= s.failureThreshold && s.health != nil {
		s.health.SetBrowserHealthy(true)
	}
	s.browserFailures = 0
}

func (s *Scheduler) dispatch(mon models.Monitor, result *models.ExecutionResult) {
	if s.events == nil {
		return
	}
	s.events.Dispatch(&models.CheckEvent{Monitor: mon, Result: result})
}
