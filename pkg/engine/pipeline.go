package engine

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getmockd/mocklane/internal/matching"
	"github.com/getmockd/mocklane/pkg/eventlog"
	"github.com/getmockd/mocklane/pkg/httputil"
	"github.com/getmockd/mocklane/pkg/logging"
	"github.com/getmockd/mocklane/pkg/mock"
	"github.com/getmockd/mocklane/pkg/template"
)

// Debug headers added to every matched response.
const (
	HeaderRuleID   = "X-Mocklane-Rule-Id"
	HeaderRuleName = "X-Mocklane-Rule-Name"
)

// EventRequest is the name of the dispatch log event.
const EventRequest = "request"

// NoMatchMessage is the error text of the structured 404.
const NoMatchMessage = "No mock match found for the request."

// Observer receives one call per completed dispatch.
type Observer interface {
	ObserveDispatch(method string, status int, matched bool, ruleID string, d time.Duration)
}

// Pipeline turns one request into one response and one log event.
type Pipeline struct {
	rules    *RuleStore
	tmpl     *template.Engine
	events   *eventlog.Logger
	observer Observer
	log      *slog.Logger
	sleep    func(time.Duration)
	now      func() time.Time

	// writeTimeout is the server's per-response write budget; a rule's delay
	// is granted on top of it
	writeTimeout time.Duration
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithTemplateEngine sets the renderer used for response headers and bodies.
func WithTemplateEngine(e *template.Engine) PipelineOption {
	return func(p *Pipeline) {
		if e != nil {
			p.tmpl = e
		}
	}
}

// WithObserver sets the dispatch observer, typically a metrics recorder.
func WithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithPipelineLogger sets the operational logger.
func WithPipelineLogger(log *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithClock overrides time.Now and time.Sleep. Used by tests.
func WithClock(now func() time.Time, sleep func(time.Duration)) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// WithWriteTimeout sets the server write timeout the delay extension is based on.
func WithWriteTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.writeTimeout = d
	}
}

// NewPipeline creates a pipeline reading rules from store and logging to events.
func NewPipeline(store *RuleStore, events *eventlog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		rules:  store,
		tmpl:   template.New(),
		events: events,
		log:    logging.Nop(),
		sleep:  time.Sleep,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.events == nil {
		p.events = eventlog.New(eventlog.Options{})
	}
	return p
}

// outcome is what one dispatch did, gathered for the log event.
type outcome struct {
	status   int
	rule     *mock.Rule
	nearMiss *matching.NearMiss
	writeErr error
	headers  http.Header
}

// Dispatch serves req on w and returns the logged event (nil when the event
// level is filtered out). Exactly one event is logged per call.
func (p *Pipeline) Dispatch(w http.ResponseWriter, req *mock.Request) *eventlog.Event {
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = p.now()
	}
	snap := p.rules.Snapshot()

	var out outcome
	if rule := matching.Select(req, snap.Rules); rule != nil {
		out = p.respond(w, req, rule)
	} else {
		out = p.notFound(w, req)
		out.nearMiss = matching.ClosestMiss(req, snap.Rules)
	}
	return p.record(req, out)
}

// Reject answers a request that could not be dispatched (for example an
// oversized body) and logs it like any other unmatched request.
func (p *Pipeline) Reject(w http.ResponseWriter, req *mock.Request, status int, errCode, message string) *eventlog.Event {
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = p.now()
	}
	w.Header().Set("Content-Type", httputil.ContentTypeJSON)
	headers := w.Header().Clone()
	err := httputil.WriteJSON(w, status, httputil.ErrorBody{Error: errCode, Message: message})
	return p.record(req, outcome{status: status, writeErr: err, headers: headers})
}

func (p *Pipeline) respond(w http.ResponseWriter, req *mock.Request, rule *mock.Rule) outcome {
	resp := &rule.Response
	if resp.Delay > 0 {
		delay := time.Duration(resp.Delay) * time.Millisecond
		if p.writeTimeout > 0 {
			// The write deadline starts with the request; move it past the delay.
			// Writers without deadline support return ErrNotSupported.
			_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(delay + p.writeTimeout))
		}
		p.sleep(delay)
	}

	ctx := template.NewContext(req)
	h := w.Header()
	seen := make(map[string]bool, len(resp.Headers))
	userSetContentType := false
	for _, kv := range p.tmpl.RenderHeaders(resp.Headers, ctx) {
		key := http.CanonicalHeaderKey(kv.Key)
		if seen[key] {
			h.Add(key, kv.Value)
		} else {
			h.Set(key, kv.Value)
			seen[key] = true
		}
		if key == "Content-Type" {
			userSetContentType = true
		}
	}
	h.Set(HeaderRuleID, rule.ID)
	if rule.Name != "" {
		h.Set(HeaderRuleName, rule.Name)
	}

	body := p.tmpl.Render(resp.Body, ctx)
	allowed := bodyAllowed(resp.Status)
	if !userSetContentType && allowed {
		h.Set("Content-Type", inferContentType(body))
	}

	out := outcome{status: resp.Status, rule: rule, headers: h.Clone()}
	w.WriteHeader(resp.Status)
	if allowed && body != "" {
		_, out.writeErr = w.Write([]byte(body))
	}
	return out
}

type unmatchedRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    *string           `json:"body"`
}

type unmatchedBody struct {
	Error   string           `json:"error"`
	Request unmatchedRequest `json:"request"`
}

func (p *Pipeline) notFound(w http.ResponseWriter, req *mock.Request) outcome {
	payload := unmatchedBody{
		Error: NoMatchMessage,
		Request: unmatchedRequest{
			Method:  req.Method,
			URL:     req.URL(),
			Headers: req.HeaderMap(),
		},
	}
	if req.Body != "" {
		body := req.Body
		payload.Request.Body = &body
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)

	w.Header().Set("Content-Type", httputil.ContentTypeJSON)
	out := outcome{status: http.StatusNotFound, headers: w.Header().Clone()}
	w.WriteHeader(http.StatusNotFound)
	_, out.writeErr = w.Write(bytes.TrimRight(buf.Bytes(), "\n"))
	return out
}

func (p *Pipeline) record(req *mock.Request, out outcome) *eventlog.Event {
	d := p.now().Sub(req.ReceivedAt)
	matched := out.rule != nil

	fields := eventlog.Fields{
		"requestId":       req.ID,
		"method":          req.Method,
		"url":             req.URL(),
		"status":          out.status,
		"durationMs":      float64(d) / float64(time.Millisecond),
		"matched":         matched,
		"responseHeaders": flattenHeaders(out.headers),
	}
	var ruleID string
	if matched {
		ruleID = out.rule.ID
		fields["mockId"] = out.rule.ID
		if out.rule.Name != "" {
			fields["mockName"] = out.rule.Name
		}
	}
	if out.nearMiss != nil {
		fields["nearMiss"] = out.nearMiss
	}
	if out.writeErr != nil {
		fields["writeError"] = out.writeErr.Error()
		p.log.Warn("failed to write response", "requestId", req.ID, "url", req.URL(), "error", out.writeErr)
	}

	level := logging.LevelInfo
	if !matched {
		level = logging.LevelWarn
	}
	e := p.events.Log(level, EventRequest, fields)

	if p.observer != nil {
		p.observer.ObserveDispatch(req.Method, out.status, matched, ruleID, d)
	}
	return e
}

// flattenHeaders keys headers by lower-cased name, joining repeats with ", ".
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}

// bodyAllowed reports whether a response with status may carry a body.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

func inferContentType(body string) string {
	switch {
	case looksLikeJSON(body):
		return "application/json"
	case looksLikeXML(body):
		return "application/xml"
	default:
		return "text/plain; charset=utf-8"
	}
}

// looksLikeJSON returns true if the string appears to be JSON content.
func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"))
}

// looksLikeXML returns true if the string appears to be XML content.
func looksLikeXML(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "<")
}
