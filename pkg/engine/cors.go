// CORS middleware for mock and admin responses.

package engine

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/getmockd/mocklane/pkg/config"
)

// MatchChecker reports whether a rule would answer a request.
type MatchChecker interface {
	HasMatch(r *http.Request) bool
}

var (
	defaultCORSMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"}
	defaultCORSHeaders = []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"}
)

// CORSMiddleware adds CORS headers to every response and answers preflight
// requests, unless an OPTIONS rule matches the request.
type CORSMiddleware struct {
	handler http.Handler
	config  *config.CORSConfig
	checker MatchChecker
}

// NewCORSMiddleware wraps handler. A nil cfg allows every origin.
func NewCORSMiddleware(handler http.Handler, cfg *config.CORSConfig, checker MatchChecker) *CORSMiddleware {
	if cfg == nil {
		cfg = config.WildcardCORSConfig()
	}
	return &CORSMiddleware{
		handler: handler,
		config:  cfg,
		checker: checker,
	}
}

// ServeHTTP implements the http.Handler interface.
func (m *CORSMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !m.config.Enabled {
		m.handler.ServeHTTP(w, r)
		return
	}

	allowOrigin := m.config.AllowOriginValue(r.Header.Get("Origin"))
	if allowOrigin != "" {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		if allowOrigin != "*" {
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Methods", joinOr(m.config.AllowMethods, defaultCORSMethods))
		h.Set("Access-Control-Allow-Headers", joinOr(m.config.AllowHeaders, defaultCORSHeaders))
		if len(m.config.ExposeHeaders) > 0 {
			h.Set("Access-Control-Expose-Headers", strings.Join(m.config.ExposeHeaders, ", "))
		}
		if m.config.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		maxAge := m.config.MaxAge
		if maxAge <= 0 {
			maxAge = 86400
		}
		h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
	}

	if r.Method == http.MethodOptions {
		if m.checker != nil && m.checker.HasMatch(r) {
			m.handler.ServeHTTP(w, r)
			return
		}
		if allowOrigin != "" {
			w.WriteHeader(http.StatusNoContent)
		} else {
			w.WriteHeader(http.StatusForbidden)
		}
		return
	}

	m.handler.ServeHTTP(w, r)
}

func joinOr(values, fallback []string) string {
	if len(values) == 0 {
		values = fallback
	}
	return strings.Join(values, ", ")
}
