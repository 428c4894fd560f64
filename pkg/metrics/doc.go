// Package metrics provides Prometheus-compatible metrics for the dispatch engine.
//
// Registry implements the Prometheus text exposition format
// (text/plain; version=0.0.4) for three kinds of families:
//
//   - Counter: monotonically increasing value (e.g. dispatched requests)
//   - Gauge: value that can go up or down (e.g. live log subscribers)
//   - Histogram: distribution over cumulative buckets (e.g. dispatch latency)
//
// All metrics are safe for concurrent use.
//
// Recorder bundles the families a server exports:
//
//   - mocklane_requests_total (method, status, matched)
//   - mocklane_request_duration_seconds (matched)
//   - mocklane_rule_hits_total (mock_id)
//   - mocklane_rules
//   - mocklane_log_subscribers
//   - mocklane_log_events_dropped_total
//   - mocklane_expression_timeouts_total
//
// plus Go runtime gauges refreshed on each scrape. With WithStatsD the same
// observations are mirrored to a DogStatsD agent:
//
//	client, err := metrics.NewStatsD("127.0.0.1:8125")
//	if err != nil {
//		return err
//	}
//	rec := metrics.NewRecorder(metrics.WithStatsD(client))
//	defer rec.Close()
//	mux.Handle("GET /__metrics", rec.Handler())
package metrics
