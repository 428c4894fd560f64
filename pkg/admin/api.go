// Package admin serves the reserved /__ routes of a mocklane server.
package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/getmockd/mocklane/pkg/engine"
	"github.com/getmockd/mocklane/pkg/logging"
)

// Defaults for the log endpoints.
const (
	DefaultLogLimit     = 100
	DefaultReplay       = 100
	DefaultPingInterval = 15 * time.Second
)

// API exposes the admin routes of one engine.Server.
type API struct {
	srv          *engine.Server
	mux          *http.ServeMux
	log          *slog.Logger
	pingInterval time.Duration
	wsOptions    websocket.AcceptOptions
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

// WithPingInterval sets the keep-alive interval of the log streams.
func WithPingInterval(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.pingInterval = d
		}
	}
}

// WithOriginPatterns restricts the origins allowed to open /__logs/ws.
// By default any origin may connect.
func WithOriginPatterns(patterns ...string) Option {
	return func(a *API) {
		a.wsOptions.OriginPatterns = patterns
		a.wsOptions.InsecureSkipVerify = len(patterns) == 0
	}
}

// New creates the admin API for srv and installs it with srv.SetAdmin.
func New(srv *engine.Server, opts ...Option) *API {
	a := &API{
		srv:          srv,
		mux:          http.NewServeMux(),
		log:          logging.Nop(),
		pingInterval: DefaultPingInterval,
		wsOptions:    websocket.AcceptOptions{InsecureSkipVerify: true},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.registerRoutes(a.mux)
	srv.SetAdmin(a)
	return a
}

// Handler returns the admin handler for r and its pattern, or an empty
// pattern when r is not an admin route.
func (a *API) Handler(r *http.Request) (http.Handler, string) {
	return a.mux.Handler(r)
}

// ServeHTTP serves admin routes only; other requests get the mux's 404.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// syncSubscriberGauge publishes the live subscriber count.
func (a *API) syncSubscriberGauge() {
	a.srv.Metrics().SetSubscribers(a.srv.Events().SubscriberCount())
}
