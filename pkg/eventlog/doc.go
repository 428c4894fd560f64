// Package eventlog is the structured, streamable record of what the server did.
//
// Every dispatched request produces exactly one Event; the server also logs
// lifecycle events such as "server_start" and "rules_load_failed". An Event
// serializes as one flat JSON object:
//
//	{"ts":"2024-05-06T07:08:09.123Z","level":"info","event":"request","method":"GET",...}
//
// # Sinks
//
// Logger.Log applies the minimum level once, then delivers an accepted event to:
//
//   - a Ring of fixed capacity (FIFO eviction), queried with Recent
//   - the console, through an operational *slog.Logger
//   - an optional FileSink writing JSON lines, rotated to a single ".1"
//     backup when its byte budget would be exceeded
//   - every live Subscription
//
// # Subscriptions
//
// Subscribe(k) returns the last k buffered events plus a channel of everything
// logged afterwards, with no overlap and no gap between the two. Delivery is
// non-blocking: when a subscriber's channel is full the event is dropped for
// that subscriber only and counted in Dropped. A slow reader therefore never
// delays request handling or other subscribers.
//
// Sink failures are reported on the Errors logger and never interrupt the
// other sinks.
package eventlog
