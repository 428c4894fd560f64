// Route registration for the admin API.

package admin

import (
	"net/http"
)

// registerRoutes sets up all admin routes. Method mismatches are not
// registered, so e.g. POST /__health falls through to mock dispatch.
func (a *API) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /__health", a.handleHealth)

	// Rule set
	mux.HandleFunc("GET /__mocks", a.handleGetMocks)
	mux.HandleFunc("PUT /__mocks", a.handlePutMocks)
	mux.HandleFunc("POST /__reload", a.handleReload)

	// Event log
	mux.HandleFunc("GET /__logs", a.handleLogs)
	mux.HandleFunc("GET /__logs/stream", a.handleLogStream)
	mux.HandleFunc("GET /__logs/ws", a.handleLogWebSocket)

	mux.HandleFunc("GET /__metrics", a.handleMetrics)
}
