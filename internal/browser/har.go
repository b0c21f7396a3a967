package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// HAR types, trimmed to what gets emitted. Response bodies are omitted;
// sizes and timings are kept so the trace stays useful in HAR viewers.

type harNVP struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type harContent struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

type harRequest struct {
	Method      string   `json:"method"`
	URL         string   `json:"url"`
	HTTPVersion string   `json:"httpVersion"`
	Headers     []harNVP `json:"headers"`
	QueryString []harNVP `json:"queryString"`
	Cookies     []harNVP `json:"cookies"`
	HeadersSize int64    `json:"headersSize"`
	BodySize    int64    `json:"bodySize"`
}

type harResponse struct {
	Status      int64      `json:"status"`
	StatusText  string     `json:"statusText"`
	HTTPVersion string     `json:"httpVersion"`
	Headers     []harNVP   `json:"headers"`
	Cookies     []harNVP   `json:"cookies"`
	Content     harContent `json:"content"`
	RedirectURL string     `json:"redirectURL"`
	HeadersSize int64      `json:"headersSize"`
	BodySize    int64      `json:"bodySize"`
}

type harTimings struct {
	Blocked float64 `json:"blocked"`
	DNS     float64 `json:"dns"`
	Connect float64 `json:"connect"`
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
	SSL     float64 `json:"ssl"`
}

type harEntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         harRequest  `json:"request"`
	Response        harResponse `json:"response"`
	Cache           struct{}    `json:"cache"`
	Timings         harTimings  `json:"timings"`
	Pageref         string      `json:"pageref"`
}

type harPageTimings struct {
	OnContentLoad float64 `json:"onContentLoad"`
	OnLoad        float64 `json:"onLoad"`
}

type harPage struct {
	StartedDateTime string         `json:"startedDateTime"`
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	PageTimings     harPageTimings `json:"pageTimings"`
}

type harCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type harLog struct {
	Version string     `json:"version"`
	Creator harCreator `json:"creator"`
	Pages   []harPage  `json:"pages"`
	Entries []harEntry `json:"entries"`
}

const harPageID = "page_0"

// traceEntry accumulates the CDP events belonging to one request.
type traceEntry struct {
	started  time.Time // wall clock
	mono     time.Time
	request  harRequest
	response *harResponse
	timing   *network.ResourceTiming
	totalMs  float64
	bodySize int64
	done     bool
}

// TraceRecorder assembles a HAR from the CDP network events of exactly
// one check. A recorder is created fresh per check, attached to the
// session context before navigation, and finalized before the session is
// released; once finalized it ignores any further events.
type TraceRecorder struct {
	mu        sync.Mutex
	pageURL   string
	started   time.Time
	navStart  time.Time // monotonic timestamp of the first request
	dclAt     float64
	loadAt    float64
	entries   []*traceEntry
	open      map[network.RequestID]*traceEntry
	finalized bool
}

// NewTraceRecorder creates a recorder for a check against the given URL.
func NewTraceRecorder(pageURL string) *TraceRecorder {
	return &TraceRecorder{
		pageURL: pageURL,
		started: time.Now().UTC(),
		dclAt:   -1,
		loadAt:  -1,
		open:    make(map[network.RequestID]*traceEntry),
	}
}

// Attach subscribes the recorder to the session's CDP events. Network
// events only flow once network.Enable has run on the same context (see
// CollectTimings).
func (r *TraceRecorder) Attach(ctx context.Context) {
	chromedp.ListenTarget(ctx, r.handleEvent)
}

func (r *TraceRecorder) handleEvent(ev interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		r.onRequest(e)
	case *network.EventResponseReceived:
		r.onResponse(e)
	case *network.EventLoadingFinished:
		r.onFinished(e)
	case *network.EventLoadingFailed:
		r.onFailed(e)
	case *page.EventDomContentEventFired:
		if ts := eventTime(e.Timestamp); !ts.IsZero() && !r.navStart.IsZero() {
			r.dclAt = float64(ts.Sub(r.navStart)) / float64(time.Millisecond)
		}
	case *page.EventLoadEventFired:
		if ts := eventTime(e.Timestamp); !ts.IsZero() && !r.navStart.IsZero() {
			r.loadAt = float64(ts.Sub(r.navStart)) / float64(time.Millisecond)
		}
	}
}

func (r *TraceRecorder) onRequest(e *network.EventRequestWillBeSent) {
	if e.Request == nil {
		return
	}
	ts := eventTime(e.Timestamp)
	if r.navStart.IsZero() {
		r.navStart = ts
	}

	// A redirect re-uses the request id; close out the previous hop with
	// the redirect response before opening the next one.
	if prev, ok := r.open[e.RequestID]; ok {
		if e.RedirectResponse != nil {
			prev.response = responseFrom(e.RedirectResponse)
			prev.response.RedirectURL = e.Request.URL
			prev.timing = e.RedirectResponse.Timing
		}
		prev.totalMs = msBetween(prev.mono, ts)
		prev.done = true
		delete(r.open, e.RequestID)
	}

	started := r.started
	if e.WallTime != nil {
		started = e.WallTime.Time().UTC()
	} else if !r.navStart.IsZero() && !ts.IsZero() {
		started = r.started.Add(ts.Sub(r.navStart))
	}

	entry := &traceEntry{
		started: started,
		mono:    ts,
		totalMs: -1,
		request: harRequest{
			Method:      e.Request.Method,
			URL:         e.Request.URL,
			HTTPVersion: "HTTP/1.1",
			Headers:     headerList(e.Request.Headers),
			QueryString: []harNVP{},
			Cookies:     []harNVP{},
			HeadersSize: -1,
			BodySize:    -1,
		},
	}
	r.entries = append(r.entries, entry)
	r.open[e.RequestID] = entry
}

func (r *TraceRecorder) onResponse(e *network.EventResponseReceived) {
	entry, ok := r.open[e.RequestID]
	if !ok || e.Response == nil {
		return
	}
	entry.response = responseFrom(e.Response)
	entry.timing = e.Response.Timing
	if e.Response.Protocol != "" {
		entry.request.HTTPVersion = e.Response.Protocol
	}
}

func (r *TraceRecorder) onFinished(e *network.EventLoadingFinished) {
	entry, ok := r.open[e.RequestID]
	if !ok {
		return
	}
	entry.totalMs = msBetween(entry.mono, eventTime(e.Timestamp))
	entry.bodySize = int64(e.EncodedDataLength)
	entry.done = true
	delete(r.open, e.RequestID)
}

func (r *TraceRecorder) onFailed(e *network.EventLoadingFailed) {
	entry, ok := r.open[e.RequestID]
	if !ok {
		return
	}
	entry.totalMs = msBetween(entry.mono, eventTime(e.Timestamp))
	if entry.response == nil {
		entry.response = &harResponse{
			Status:      0,
			StatusText:  e.ErrorText,
			HTTPVersion: entry.request.HTTPVersion,
			Headers:     []harNVP{},
			Cookies:     []harNVP{},
			Content:     harContent{Size: 0},
			HeadersSize: -1,
			BodySize:    -1,
		}
	}
	entry.done = true
	delete(r.open, e.RequestID)
}

// Finalize stops the recorder and assembles the HAR. It must be called
// before the session is released; entries still in flight are emitted
// with an unknown total time.
func (r *TraceRecorder) Finalize() (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return nil, errors.New("trace recorder already finalized")
	}
	r.finalized = true

	log := harLog{
		Version: "1.2",
		Creator: harCreator{Name: "synthmon", Version: "1.0"},
		Pages: []harPage{{
			StartedDateTime: harTime(r.started),
			ID:              harPageID,
			Title:           r.pageURL,
			PageTimings:     harPageTimings{OnContentLoad: r.dclAt, OnLoad: r.loadAt},
		}},
		Entries: make([]harEntry, 0, len(r.entries)),
	}
	for _, te := range r.entries {
		log.Entries = append(log.Entries, te.build())
	}

	buf, err := json.Marshal(struct {
		Log harLog `json:"log"`
	}{log})
	if err != nil {
		return nil, fmt.Errorf("failed to encode har: %w", err)
	}
	return buf, nil
}

// EntryCount reports the number of requests seen so far.
func (r *TraceRecorder) EntryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (te *traceEntry) build() harEntry {
	resp := te.response
	if resp == nil {
		resp = &harResponse{
			Status:      0,
			StatusText:  "no response",
			HTTPVersion: te.request.HTTPVersion,
			Headers:     []harNVP{},
			Cookies:     []harNVP{},
			HeadersSize: -1,
			BodySize:    -1,
		}
	}
	if resp.BodySize <= 0 && te.bodySize > 0 {
		resp.BodySize = te.bodySize
		resp.Content.Size = te.bodySize
	}
	return harEntry{
		StartedDateTime: harTime(te.started),
		Time:            te.totalMs,
		Request:         te.request,
		Response:        *resp,
		Timings:         timingsFrom(te.timing, te.totalMs),
		Pageref:         harPageID,
	}
}

func responseFrom(resp *network.Response) *harResponse {
	return &harResponse{
		Status:      resp.Status,
		StatusText:  resp.StatusText,
		HTTPVersion: resp.Protocol,
		Headers:     headerList(resp.Headers),
		Cookies:     []harNVP{},
		Content: harContent{
			Size:     int64(resp.EncodedDataLength),
			MimeType: resp.MimeType,
		},
		HeadersSize: -1,
		BodySize:    int64(resp.EncodedDataLength),
	}
}

// timingsFrom maps CDP resource timing offsets onto HAR phases. CDP uses
// -1 for phases that did not happen; HAR uses the same convention.
func timingsFrom(t *network.ResourceTiming, totalMs float64) harTimings {
	ht := harTimings{Blocked: -1, DNS: -1, Connect: -1, Send: 0, Wait: 0, Receive: 0, SSL: -1}
	if t == nil {
		if totalMs > 0 {
			ht.Wait = totalMs
		}
		return ht
	}
	if t.DNSStart >= 0 && t.DNSEnd >= t.DNSStart {
		ht.DNS = t.DNSEnd - t.DNSStart
	}
	if t.ConnectStart >= 0 && t.ConnectEnd >= t.ConnectStart {
		ht.Connect = t.ConnectEnd - t.ConnectStart
	}
	if t.SslStart >= 0 && t.SslEnd >= t.SslStart {
		ht.SSL = t.SslEnd - t.SslStart
	}
	if t.SendStart >= 0 && t.SendEnd >= t.SendStart {
		ht.Send = t.SendEnd - t.SendStart
	}
	if t.ReceiveHeadersEnd >= t.SendEnd {
		ht.Wait = t.ReceiveHeadersEnd - t.SendEnd
	}
	if totalMs > 0 && t.ReceiveHeadersEnd >= 0 && totalMs > t.ReceiveHeadersEnd {
		ht.Receive = totalMs - t.ReceiveHeadersEnd
	}
	return ht
}

func headerList(h network.Headers) []harNVP {
	if len(h) == 0 {
		return []harNVP{}
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]harNVP, 0, len(keys))
	for _, k := range keys {
		out = append(out, harNVP{Name: k, Value: fmt.Sprint(h[k])})
	}
	return out
}

func eventTime(ts *cdp.MonotonicTime) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.Time()
}

func msBetween(from, to time.Time) float64 {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return -1
	}
	return float64(to.Sub(from)) / float64(time.Millisecond)
}

func harTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
