// HTTP entry point of the dispatch pipeline.

package engine

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/getmockd/mocklane/internal/id"
	"github.com/getmockd/mocklane/internal/matching"
	"github.com/getmockd/mocklane/pkg/config"
	"github.com/getmockd/mocklane/pkg/logging"
	"github.com/getmockd/mocklane/pkg/mock"
)

// MaxRequestBodySize is the default cap on request bodies (10MB).
const MaxRequestBodySize = config.DefaultMaxBodySize

// Handler reads inbound requests and hands them to the Pipeline.
type Handler struct {
	pipeline *Pipeline
	rules    *RuleStore
	maxBody  int64
	log      *slog.Logger
	newID    func() string
	now      func() time.Time
}

// NewHandler creates a Handler. A non-positive maxBody uses MaxRequestBodySize.
func NewHandler(p *Pipeline, maxBody int64) *Handler {
	if maxBody <= 0 {
		maxBody = MaxRequestBodySize
	}
	return &Handler{
		pipeline: p,
		rules:    p.rules,
		maxBody:  maxBody,
		log:      p.log,
		newID:    id.ULID,
		now:      time.Now,
	}
}

// SetOperationalLogger sets the operational logger.
func (h *Handler) SetOperationalLogger(log *slog.Logger) {
	if log == nil {
		log = logging.Nop()
	}
	h.log = log
}

// HasMatch reports whether any rule would answer r, ignoring the body.
// The CORS middleware uses it to let OPTIONS rules take precedence over
// preflight handling.
func (h *Handler) HasMatch(r *http.Request) bool {
	req := mock.NewRequest(r, nil, time.Time{})
	for _, rule := range h.rules.Snapshot().Rules {
		if rule.Matcher.Body.IsSet() {
			continue
		}
		if matching.Matches(req, rule) {
			return true
		}
	}
	return false
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	receivedAt := h.now()

	// MaxBytesReader returns an error when the limit is exceeded, unlike
	// LimitReader which silently truncates.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	body, err := io.ReadAll(r.Body)

	req := mock.NewRequest(r, body, receivedAt)
	req.ID = h.newID()

	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.log.Warn("request body too large", "path", r.URL.Path, "limit", h.maxBody)
			req.Body = ""
			h.pipeline.Reject(w, req, http.StatusRequestEntityTooLarge, "request_too_large",
				"request body exceeds "+strconv.FormatInt(h.maxBody, 10)+" bytes")
			return
		}
		h.log.Warn("failed to read request body", "path", r.URL.Path, "error", err)
		h.pipeline.Reject(w, req, http.StatusBadRequest, "read_error", "failed to read request body")
		return
	}

	h.pipeline.Dispatch(w, req)
}
