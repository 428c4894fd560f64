package metrics

import (
	"runtime"
	"time"
)

// RuntimeCollector refreshes a small set of Go runtime gauges and the
// process uptime. Collect is called on every scrape.
type RuntimeCollector struct {
	goroutines *Gauge
	heapAlloc  *Gauge
	heapObjs   *Gauge
	gcCycles   *Gauge
	uptime     *Gauge
	started    time.Time
	now        func() time.Time
}

// NewRuntimeCollector registers the runtime gauges on r.
func NewRuntimeCollector(r *Registry, started time.Time) *RuntimeCollector {
	rc := &RuntimeCollector{
		goroutines: r.Gauge("go_goroutines", "Number of goroutines that currently exist"),
		heapAlloc:  r.Gauge("go_memstats_heap_alloc_bytes", "Number of heap bytes allocated and still in use"),
		heapObjs:   r.Gauge("go_memstats_heap_objects", "Number of allocated heap objects"),
		gcCycles:   r.Gauge("go_gc_cycles_total", "Number of completed GC cycles"),
		uptime:     r.Gauge("mocklane_uptime_seconds", "Seconds since the server started"),
		started:    started,
		now:        time.Now,
	}
	_ = r.Gauge("go_info", "Information about the Go environment", "version").Set(1, runtime.Version())
	return rc
}

// Collect samples the runtime.
func (rc *RuntimeCollector) Collect() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	_ = rc.goroutines.Set(float64(runtime.NumGoroutine()))
	_ = rc.heapAlloc.Set(float64(ms.HeapAlloc))
	_ = rc.heapObjs.Set(float64(ms.HeapObjects))
	_ = rc.gcCycles.Set(float64(ms.NumGC))
	_ = rc.uptime.Set(rc.now().Sub(rc.started).Seconds())
}
