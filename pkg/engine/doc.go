// Package engine serves mock responses.
//
// # Architecture
//
// One listener carries both the reserved admin routes and the mock traffic:
//
//	┌────────────────────────────────────────────────────────────┐
//	│                      CORSMiddleware                         │
//	│   preflight → 204/403, unless an OPTIONS rule matches       │
//	├────────────────────────────────────────────────────────────┤
//	│   /__health, /__mocks, /__logs... → admin Routes            │
//	│   everything else                 → Handler                 │
//	├────────────────────────────────────────────────────────────┤
//	│   Handler: read body (capped), assign request ID            │
//	│        │                                                    │
//	│        ▼                                                    │
//	│   Pipeline.Dispatch                                         │
//	│     RuleStore.Snapshot ─► matching.Select                   │
//	│       matched:   delay, render headers/body, respond        │
//	│       unmatched: structured 404 with a near-miss hint       │
//	│     one "request" event ─► eventlog.Logger                  │
//	│     one observation     ─► metrics.Recorder                 │
//	└────────────────────────────────────────────────────────────┘
//
// # Rule store
//
// RuleStore publishes immutable Snapshots through an atomic pointer. A
// dispatch loads the pointer once, so a concurrent Replace never changes the
// rules a request is matched against mid-flight.
//
// # Events
//
// Besides the per-request "request" event, the Server logs server_start,
// server_stop, rules_loaded, rules_not_found, rules_load_failed and
// rules_replaced.
package engine
