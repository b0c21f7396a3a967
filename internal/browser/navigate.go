package browser

import (
	"context"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// timingScript reads both generations of the browser timing API in one
// evaluation: the Navigation Timing Level 2 entry and the legacy
// performance.timing object (already expressed as deltas from
// navigationStart). Values the browser does not expose come back null.
const timingScript = `
(() => {
	const nav = performance.getEntriesByType('navigation')[0] || null;
	const t = performance.timing;
	return {
		requestStart: nav && nav.requestStart > 0 ? nav.requestStart : null,
		responseStart: nav && nav.responseStart > 0 ? nav.responseStart : null,
		navigationDomContentLoaded: nav && nav.domContentLoadedEventEnd > 0 ? nav.domContentLoadedEventEnd : null,
		navigationLoadComplete: nav && nav.loadEventEnd > 0 ? nav.loadEventEnd : null,
		domContentLoaded: t.domContentLoadedEventEnd > 0 ? t.domContentLoadedEventEnd - t.navigationStart : null,
		pageLoad: t.loadEventEnd > 0 ? t.loadEventEnd - t.navigationStart : null
	};
})()
`

// NavigationTimings is the raw timing data evaluated on the loaded page.
// All values are milliseconds relative to navigation start; nil means the
// browser did not expose the value.
type NavigationTimings struct {
	RequestStart               *float64 `json:"requestStart"`
	ResponseStart              *float64 `json:"responseStart"`
	NavigationDOMContentLoaded *float64 `json:"navigationDomContentLoaded"`
	NavigationLoadComplete     *float64 `json:"navigationLoadComplete"`
	LegacyDOMContentLoaded     *float64 `json:"domContentLoaded"`
	LegacyPageLoad             *float64 `json:"pageLoad"`
}

// CollectTimings navigates to the URL, waits for the load event, and
// evaluates the timing script. withNetwork additionally enables CDP
// network events so an attached TraceRecorder sees the request stream.
// The context is expected to carry the per-check deadline.
func CollectTimings(ctx context.Context, url string, withNetwork bool) (*NavigationTimings, error) {
	var timings NavigationTimings
	actions := make([]chromedp.Action, 0, 4)
	if withNetwork {
		actions = append(actions, network.Enable())
	}
	actions = append(actions,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(timingScript, &timings),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return nil, err
	}
	return &timings, nil
}
