// Package browser drives headless Chrome for a single check: session
// lifecycle, navigation with timing collection, metric extraction and
// HAR trace recording.
package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"synthmon/internal/config"
)

// BuildAllocatorOptions translates browser config into chromedp exec
// allocator options. The same option set is reused for every check; the
// allocator itself is created fresh per check.
func BuildAllocatorOptions(cfg *config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox, // Required for Docker
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.Flag("log-level", "3"), // Suppress Chrome warnings
		// Disable caches so each check measures a cold load
		chromedp.Flag("disable-cache", "true"),
		chromedp.Flag("disable-application-cache", "true"),
		chromedp.Flag("disk-cache-size", "0"),
		chromedp.Flag("media-cache-size", "0"),
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	return opts
}

// Session owns the browser contexts for exactly one check. Sessions are
// never reused: a fresh allocator and browser context per check keeps one
// check's state (connections, caches, scripts) out of the next one's
// measurements.
type Session struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

// NewSession creates a fresh allocator and browser context bounded by the
// given navigation timeout. The session is rooted at the background
// context on purpose: an in-flight check is only ever bounded by its own
// timeout, not by the caller's lifetime.
func NewSession(opts []chromedp.ExecAllocatorOption, timeout time.Duration) *Session {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, timeout)
	// Innermost first, so Close releases the timeout, then the browser,
	// then the Chrome process.
	return &Session{
		ctx:     taskCtx,
		cancels: []context.CancelFunc{cancelTimeout, cancelTask, cancelAlloc},
	}
}

// Context returns the context to run chromedp actions against.
func (s *Session) Context() context.Context { return s.ctx }

// Close releases all session resources. Safe to call more than once.
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}
