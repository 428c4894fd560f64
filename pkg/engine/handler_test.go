package engine

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mocklane/internal/id"
	"github.com/getmockd/mocklane/pkg/config"
	"github.com/getmockd/mocklane/pkg/mock"
)

func TestHandler_DispatchesWithBody(t *testing.T) {
	t.Parallel()

	r := rule("echo", "POST", "/echo", 200, "{{body}}")
	r.Matcher.Body = mock.Value("^hello")
	p, events := newTestPipeline(t, []*mock.Rule{r})
	h := NewHandler(p, 0)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("hello world")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello world", rec.Body.String())

	recent := events.Recent(1)
	require.Len(t, recent, 1)
	reqID, _ := recent[0].Fields["requestId"].(string)
	assert.True(t, id.IsValidULID(reqID), "request id %q", reqID)
}

func TestHandler_BodyTooLarge(t *testing.T) {
	t.Parallel()

	p, events := newTestPipeline(t, []*mock.Rule{rule("any", "POST", "/upload", 200, "ok")})
	h := NewHandler(p, 10)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(strings.Repeat("x", 20))))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "request_too_large")
	recent := events.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, 413, recent[0].Fields["status"])
	assert.Equal(t, false, recent[0].Fields["matched"])
}

func TestHandler_DefaultBodyLimit(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t, nil)
	assert.Equal(t, int64(MaxRequestBodySize), NewHandler(p, -1).maxBody)
}

func TestHandler_HasMatch(t *testing.T) {
	t.Parallel()

	withBody := rule("post-body", "OPTIONS", "/body", 200, "")
	withBody.Matcher.Body = mock.Value("x")
	p, _ := newTestPipeline(t, []*mock.Rule{rule("opts", "OPTIONS", "/x", 200, ""), withBody})
	h := NewHandler(p, 0)

	assert.True(t, h.HasMatch(httptest.NewRequest(http.MethodOptions, "/x", nil)))
	assert.False(t, h.HasMatch(httptest.NewRequest(http.MethodOptions, "/y", nil)))
	assert.False(t, h.HasMatch(httptest.NewRequest(http.MethodOptions, "/body", nil)))
}

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()

	newHandler := func(cfg *config.CORSConfig, rules ...*mock.Rule) http.Handler {
		p, _ := newTestPipeline(t, rules)
		h := NewHandler(p, 0)
		return NewCORSMiddleware(h, cfg, h)
	}

	t.Run("wildcard adds headers to responses", func(t *testing.T) {
		t.Parallel()
		h := newHandler(nil, rule("r", "GET", "/x", 200, "ok"))
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "http://app.test")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("preflight answered with 204", func(t *testing.T) {
		t.Parallel()
		h := newHandler(nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/anything", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
	})

	t.Run("OPTIONS rule takes precedence", func(t *testing.T) {
		t.Parallel()
		h := newHandler(nil, rule("opts", "OPTIONS", "/x", 200, "custom"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/x", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "custom", rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("restricted origins", func(t *testing.T) {
		t.Parallel()
		cfg := &config.CORSConfig{Enabled: true, AllowOrigins: []string{"http://ok.test"}}
		h := newHandler(cfg)

		req := httptest.NewRequest(http.MethodOptions, "/x", nil)
		req.Header.Set("Origin", "http://ok.test")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://ok.test", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
		assert.Equal(t, "Content-Type, Authorization, X-Requested-With, Accept, Origin", rec.Header().Get("Access-Control-Allow-Headers"))

		req = httptest.NewRequest(http.MethodOptions, "/x", nil)
		req.Header.Set("Origin", "http://evil.test")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("disabled passes everything through", func(t *testing.T) {
		t.Parallel()
		h := newHandler(&config.CORSConfig{Enabled: false})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/x", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
