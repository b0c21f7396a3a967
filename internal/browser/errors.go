package browser

import (
	"strings"
)

// IsStartupFailure detects Chrome launch failures by message, since
// chromedp does not type them.
func IsStartupFailure(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "chrome failed to start") ||
		strings.Contains(errStr, "failed to start chrome") ||
		strings.Contains(errStr, "failed to allocate") ||
		strings.Contains(errStr, "cannot start chrome") ||
		strings.Contains(errStr, "executable file not found")
}

// CategorizeError classifies a navigation failure into a coarse type
// usable in error messages and output labels.
func CategorizeError(err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case IsStartupFailure(err):
		return "browser"
	case strings.Contains(errStr, "context deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "context canceled"):
		return "timeout"
	case strings.Contains(errStr, "dns"):
		return "dns"
	case strings.Contains(errStr, "no such host"):
		return "dns"
	case strings.Contains(errStr, "name_not_resolved"):
		return "dns"
	case strings.Contains(errStr, "connection refused"):
		return "connection_refused"
	case strings.Contains(errStr, "connection_refused"):
		return "connection_refused"
	case strings.Contains(errStr, "tls"):
		return "tls"
	case strings.Contains(errStr, "cert"):
		return "tls"
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	default:
		return "unknown"
	}
}
