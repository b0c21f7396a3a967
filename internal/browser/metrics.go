package browser

// PageMetrics are the timing metrics derived for one successful check.
// Nil means the underlying browser API returned nothing; absence is not
// an error.
type PageMetrics struct {
	TTFBMs             *float64
	DOMContentLoadedMs *float64
	PageLoadMs         *float64
}

// ExtractMetrics derives page metrics from raw navigation timings.
// DOM-content-loaded and page-load prefer the Navigation Timing Level 2
// entry and fall back to the legacy timing object; TTFB is the
// first-byte delta of the navigation response.
func ExtractMetrics(nav *NavigationTimings) PageMetrics {
	var m PageMetrics
	if nav == nil {
		return m
	}

	if nav.ResponseStart != nil {
		start := 0.0
		if nav.RequestStart != nil {
			start = *nav.RequestStart
		}
		if ttfb := *nav.ResponseStart - start; ttfb >= 0 {
			m.TTFBMs = &ttfb
		}
	}

	m.DOMContentLoadedMs = preferTiming(nav.NavigationDOMContentLoaded, nav.LegacyDOMContentLoaded)
	m.PageLoadMs = preferTiming(nav.NavigationLoadComplete, nav.LegacyPageLoad)
	return m
}

func preferTiming(navigation, legacy *float64) *float64 {
	if navigation != nil {
		v := *navigation
		return &v
	}
	if legacy != nil {
		v := *legacy
		return &v
	}
	return nil
}
