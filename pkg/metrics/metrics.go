package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrLabelCountMismatch is returned when the number of label values doesn't match the defined labels.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrNegativeCounterValue is returned when attempting to add a negative value to a counter.
var ErrNegativeCounterValue = errors.New("counter cannot be decreased")

// ErrDuplicateMetric is returned when registering a metric with a name that is already registered.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// Kind is the exposition type of a metric family.
type Kind string

const (
	KindCounter   Kind = "counter"
	KindGauge     Kind = "gauge"
	KindHistogram Kind = "histogram"
)

// DefaultBuckets are histogram upper bounds for dispatch durations, in seconds.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// float64 stored as bits for lock-free updates.
type atomicFloat struct{ bits atomic.Uint64 }

func (a *atomicFloat) load() float64 { return math.Float64frombits(a.bits.Load()) }

func (a *atomicFloat) store(v float64) { a.bits.Store(math.Float64bits(v)) }

func (a *atomicFloat) add(delta float64) {
	for {
		old := a.bits.Load()
		if a.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+delta)) {
			return
		}
	}
}

// series is one label combination of a family.
type series struct {
	values []string
	value  atomicFloat

	// histogram only
	counts []atomic.Uint64
	sum    atomicFloat
	count  atomic.Uint64
}

// family is the shared implementation of every metric kind.
type family struct {
	name       string
	help       string
	kind       Kind
	labelNames []string
	buckets    []float64

	mu     sync.RWMutex
	series map[string]*series
}

func (f *family) with(values []string) (*series, error) {
	if len(values) != len(f.labelNames) {
		return nil, fmt.Errorf("%w: %s expects %d labels, got %d", ErrLabelCountMismatch, f.name, len(f.labelNames), len(values))
	}
	key := strings.Join(values, "\x00")

	f.mu.RLock()
	s, ok := f.series[key]
	f.mu.RUnlock()
	if ok {
		return s, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok = f.series[key]; ok {
		return s, nil
	}
	s = &series{values: append([]string(nil), values...)}
	if f.kind == KindHistogram {
		s.counts = make([]atomic.Uint64, len(f.buckets))
	}
	f.series[key] = s
	return s, nil
}

// sorted returns the series ordered by label values.
func (f *family) sorted() []*series {
	f.mu.RLock()
	out := make([]*series, 0, len(f.series))
	for _, s := range f.series {
		out = append(out, s)
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return strings.Join(out[i].values, "\x00") < strings.Join(out[j].values, "\x00")
	})
	return out
}

// Counter is a monotonically increasing metric.
type Counter struct{ f *family }

// Inc adds one to the series identified by labels.
func (c *Counter) Inc(labels ...string) error {
	return c.Add(1, labels...)
}

// Add adds delta, which must not be negative.
func (c *Counter) Add(delta float64, labels ...string) error {
	if delta < 0 {
		return ErrNegativeCounterValue
	}
	s, err := c.f.with(labels)
	if err != nil {
		return err
	}
	s.value.add(delta)
	return nil
}

// Value returns the current value of one series, 0 if it was never touched.
func (c *Counter) Value(labels ...string) float64 {
	return c.f.value(labels)
}

// Gauge is a metric that can go up and down.
type Gauge struct{ f *family }

// Set replaces the value of a series.
func (g *Gauge) Set(v float64, labels ...string) error {
	s, err := g.f.with(labels)
	if err != nil {
		return err
	}
	s.value.store(v)
	return nil
}

// Add adds delta, which may be negative.
func (g *Gauge) Add(delta float64, labels ...string) error {
	s, err := g.f.with(labels)
	if err != nil {
		return err
	}
	s.value.add(delta)
	return nil
}

// Value returns the current value of one series.
func (g *Gauge) Value(labels ...string) float64 {
	return g.f.value(labels)
}

func (f *family) value(labels []string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if s, ok := f.series[strings.Join(labels, "\x00")]; ok {
		return s.value.load()
	}
	return 0
}

// Histogram counts observations into cumulative buckets.
type Histogram struct{ f *family }

// Observe records one value.
func (h *Histogram) Observe(v float64, labels ...string) error {
	s, err := h.f.with(labels)
	if err != nil {
		return err
	}
	for i, bound := range h.f.buckets {
		if v <= bound {
			s.counts[i].Add(1)
			break
		}
	}
	s.sum.add(v)
	s.count.Add(1)
	return nil
}

// Count returns the number of observations of one series.
func (h *Histogram) Count(labels ...string) uint64 {
	h.f.mu.RLock()
	defer h.f.mu.RUnlock()
	if s, ok := h.f.series[strings.Join(labels, "\x00")]; ok {
		return s.count.Load()
	}
	return 0
}

// Registry owns a set of metric families and renders them in the Prometheus
// text exposition format.
type Registry struct {
	mu       sync.RWMutex
	families []*family
	names    map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Counter registers a counter family.
func (r *Registry) Counter(name, help string, labels ...string) *Counter {
	return &Counter{f: r.register(name, help, KindCounter, labels, nil)}
}

// Gauge registers a gauge family.
func (r *Registry) Gauge(name, help string, labels ...string) *Gauge {
	return &Gauge{f: r.register(name, help, KindGauge, labels, nil)}
}

// Histogram registers a histogram family. A +Inf bucket is always present.
func (r *Registry) Histogram(name, help string, buckets []float64, labels ...string) *Histogram {
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	if len(b) == 0 || !math.IsInf(b[len(b)-1], 1) {
		b = append(b, math.Inf(1))
	}
	return &Histogram{f: r.register(name, help, KindHistogram, labels, b)}
}

// register panics on duplicate names: they would produce invalid exposition output.
func (r *Registry) register(name, help string, kind Kind, labels []string, buckets []float64) *family {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.names[name]; dup {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, name))
	}
	f := &family{
		name:       name,
		help:       help,
		kind:       kind,
		labelNames: labels,
		buckets:    buckets,
		series:     make(map[string]*series),
	}
	r.names[name] = struct{}{}
	r.families = append(r.families, f)
	return f
}

// WriteTo writes every family with at least one series, in registration order.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.RLock()
	families := append([]*family(nil), r.families...)
	r.mu.RUnlock()

	cw := &countingWriter{w: bufio.NewWriter(w)}
	for _, f := range families {
		f.write(cw)
	}
	if err := cw.w.Flush(); err != nil && cw.err == nil {
		cw.err = err
	}
	return cw.n, cw.err
}

// Handler serves the registry as text/plain; version=0.0.4.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	})
}

func (f *family) write(w *countingWriter) {
	all := f.sorted()
	if len(all) == 0 {
		return
	}
	w.printf("# HELP %s %s\n", f.name, escapeHelp(f.help))
	w.printf("# TYPE %s %s\n", f.name, f.kind)
	for _, s := range all {
		if f.kind != KindHistogram {
			w.printf("%s%s %s\n", f.name, f.labels(s.values, ""), formatFloat(s.value.load()))
			continue
		}
		var cumulative uint64
		for i, bound := range f.buckets {
			cumulative += s.counts[i].Load()
			w.printf("%s_bucket%s %d\n", f.name, f.labels(s.values, formatFloat(bound)), cumulative)
		}
		w.printf("%s_sum%s %s\n", f.name, f.labels(s.values, ""), formatFloat(s.sum.load()))
		w.printf("%s_count%s %d\n", f.name, f.labels(s.values, ""), s.count.Load())
	}
}

// labels formats {k="v",...}; le is appended last when non-empty.
func (f *family) labels(values []string, le string) string {
	if len(values) == 0 && le == "" {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range f.labelNames {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteString(`="`)
		b.WriteString(escapeLabelValue(values[i]))
		b.WriteByte('"')
	}
	if le != "" {
		if len(values) > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`le="`)
		b.WriteString(le)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) printf(format string, args ...any) {
	if c.err != nil {
		return
	}
	n, err := fmt.Fprintf(c.w, format, args...)
	c.n += int64(n)
	c.err = err
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func escapeHelp(s string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(s)
}

func escapeLabelValue(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}
