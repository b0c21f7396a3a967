// Package checker runs a single check end to end: browser session
// acquisition, navigation under the monitor's timeout, metric extraction
// and trace finalization. Every failure mode is encoded in the returned
// result; Execute never fails its caller.
package checker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"synthmon/internal/browser"
	"synthmon/internal/config"
	"synthmon/internal/models"
)

// Checker executes checks, one fresh browser session per check.
type Checker struct {
	opts         []chromedp.ExecAllocatorOption
	traceEnabled bool
	log          *slog.Logger
	onTraceError func()
}

// New builds a checker from browser and trace configuration.
func New(browserCfg *config.BrowserConfig, traceCfg *config.TraceConfig, log *slog.Logger) *Checker {
	return &Checker{
		opts:         browser.BuildAllocatorOptions(browserCfg),
		traceEnabled: traceCfg.Enabled,
		log:          log,
	}
}

// OnTraceError registers a hook invoked whenever trace finalization
// fails. The check itself is unaffected; the hook exists so failures
// stay visible in metrics instead of disappearing into a log line.
func (c *Checker) OnTraceError(fn func()) {
	c.onTraceError = fn
}

// Execute runs one check against the monitor's URL. The session is
// released on every path out of navigation; the navigation itself is
// bounded by the monitor's timeout rather than the caller's context.
func (c *Checker) Execute(ctx context.Context, mon models.Monitor) *models.ExecutionResult {
	result := &models.ExecutionResult{
		CheckID:   uuid.New().String(),
		MonitorID: mon.ID,
		StartedAt: time.Now().UTC(),
	}

	timeout := mon.GetTimeout()
	sess := browser.NewSession(c.opts, timeout)
	defer sess.Close()

	var rec *browser.TraceRecorder
	if c.traceEnabled {
		rec = browser.NewTraceRecorder(mon.URL)
		rec.Attach(sess.Context())
	}

	timings, err := browser.CollectTimings(sess.Context(), mon.URL, c.traceEnabled)
	result.CompletedAt = time.Now().UTC()

	switch {
	case err == nil:
		result.Status = models.StatusSuccess
		metrics := browser.ExtractMetrics(timings)
		result.TTFBMs = metrics.TTFBMs
		result.DOMContentLoadedMs = metrics.DOMContentLoadedMs
		result.PageLoadMs = metrics.PageLoadMs
	case browser.CategorizeError(err) == "timeout":
		result.Status = models.StatusTimeout
		result.ErrorMessage = fmt.Sprintf("page load timeout after %s: %v", timeout, err)
	default:
		result.Status = models.StatusError
		result.ErrorMessage = fmt.Sprintf("%s: %v", browser.CategorizeError(err), err)
	}

	// Finalize the trace before the session is torn down so nothing
	// captured for this check can outlive it.
	if rec != nil {
		c.finalizeTrace(rec, result)
	}

	return result
}

func (c *Checker) finalizeTrace(rec *browser.TraceRecorder, result *models.ExecutionResult) {
	har, err := rec.Finalize()
	if err != nil {
		result.TraceError = err.Error()
		c.log.Warn("trace capture failed",
			"monitor_id", result.MonitorID,
			"check_id", result.CheckID,
			"error", err)
		if c.onTraceError != nil {
			c.onTraceError()
		}
		return
	}
	result.Trace = har
}

// IsBrowserFailure reports whether a result failed because Chrome itself
// could not run, as opposed to the checked URL misbehaving.
func IsBrowserFailure(res *models.ExecutionResult) bool {
	return res != nil && res.Status == models.StatusError &&
		strings.HasPrefix(res.ErrorMessage, "browser:")
}
