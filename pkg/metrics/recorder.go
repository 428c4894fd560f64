package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/getmockd/mocklane/pkg/logging"
)

// Recorder holds the dispatch metrics of one server. Every observation is
// recorded in the Prometheus registry and, when configured, mirrored to StatsD.
type Recorder struct {
	registry *Registry
	runtime  *RuntimeCollector
	statsd   statsd.ClientInterface
	log      *slog.Logger

	requests     *Counter
	duration     *Histogram
	ruleHits     *Counter
	rules        *Gauge
	subscribers  *Gauge
	dropped      *Counter
	exprTimeouts *Counter
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithStatsD mirrors every observation to c.
func WithStatsD(c statsd.ClientInterface) RecorderOption {
	return func(r *Recorder) {
		r.statsd = c
	}
}

// WithLogger sets the operational logger used for StatsD failures.
func WithLogger(log *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRecorder registers the dispatch metrics on a fresh registry.
func NewRecorder(opts ...RecorderOption) *Recorder {
	reg := NewRegistry()
	r := &Recorder{
		registry: reg,
		log:      logging.Nop(),

		requests: reg.Counter("mocklane_requests_total",
			"Dispatched requests", "method", "status", "matched"),
		duration: reg.Histogram("mocklane_request_duration_seconds",
			"Time from request arrival to response written", DefaultBuckets, "matched"),
		ruleHits: reg.Counter("mocklane_rule_hits_total",
			"Requests answered by each rule", "mock_id"),
		rules: reg.Gauge("mocklane_rules",
			"Rules in the active snapshot"),
		subscribers: reg.Gauge("mocklane_log_subscribers",
			"Live log stream subscribers"),
		dropped: reg.Counter("mocklane_log_events_dropped_total",
			"Log events dropped for slow subscribers"),
		exprTimeouts: reg.Counter("mocklane_expression_timeouts_total",
			"Template expressions aborted at their time limit"),
	}
	r.runtime = NewRuntimeCollector(reg, time.Now())
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewStatsD connects a DogStatsD client with the "mocklane." namespace.
func NewStatsD(addr string) (statsd.ClientInterface, error) {
	c, err := statsd.New(addr, statsd.WithNamespace("mocklane."), statsd.WithoutTelemetry())
	if err != nil {
		return nil, fmt.Errorf("statsd client for %s: %w", addr, err)
	}
	return c, nil
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *Registry {
	return r.registry
}

// Handler serves the Prometheus exposition, refreshing runtime gauges first.
func (r *Recorder) Handler() http.Handler {
	inner := r.registry.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.runtime.Collect()
		inner.ServeHTTP(w, req)
	})
}

// ObserveDispatch records one completed dispatch.
func (r *Recorder) ObserveDispatch(method string, status int, matched bool, ruleID string, d time.Duration) {
	code := strconv.Itoa(status)
	m := strconv.FormatBool(matched)
	_ = r.requests.Inc(method, code, m)
	_ = r.duration.Observe(d.Seconds(), m)
	if matched && ruleID != "" {
		_ = r.ruleHits.Inc(ruleID)
	}

	if r.statsd == nil {
		return
	}
	tags := []string{"method:" + method, "status:" + code, "matched:" + m}
	r.mirror("requests", r.statsd.Incr("requests", tags, 1))
	r.mirror("request.duration", r.statsd.Timing("request.duration", d, tags, 1))
}

// SetRules records the size of the active rule snapshot.
func (r *Recorder) SetRules(n int) {
	_ = r.rules.Set(float64(n))
	if r.statsd != nil {
		r.mirror("rules", r.statsd.Gauge("rules", float64(n), nil, 1))
	}
}

// SetSubscribers records the number of live log subscribers.
func (r *Recorder) SetSubscribers(n int) {
	_ = r.subscribers.Set(float64(n))
	if r.statsd != nil {
		r.mirror("log.subscribers", r.statsd.Gauge("log.subscribers", float64(n), nil, 1))
	}
}

// EventDropped counts one event skipped for a slow subscriber.
func (r *Recorder) EventDropped() {
	_ = r.dropped.Inc()
	if r.statsd != nil {
		r.mirror("log.dropped", r.statsd.Incr("log.dropped", nil, 1))
	}
}

// ExpressionTimeout counts one aborted template expression.
func (r *Recorder) ExpressionTimeout() {
	_ = r.exprTimeouts.Inc()
	if r.statsd != nil {
		r.mirror("expression.timeouts", r.statsd.Incr("expression.timeouts", nil, 1))
	}
}

func (r *Recorder) mirror(metric string, err error) {
	if err != nil {
		r.log.Debug("statsd send failed", "metric", metric, "error", err)
	}
}

// Close flushes and closes the StatsD client, if any.
func (r *Recorder) Close() error {
	if r.statsd == nil {
		return nil
	}
	return r.statsd.Close()
}
