package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	t.Run("writes indented JSON with correct content type", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()

		require.NoError(t, WriteJSON(rec, http.StatusOK, map[string]string{"foo": "bar"}))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "{\n  \"foo\": \"bar\"\n}\n", rec.Body.String())
	})

	t.Run("handles nil data", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()

		require.NoError(t, WriteJSON(rec, http.StatusNoContent, nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
	})
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	t.Run("writes ok false with error and message", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()

		WriteError(rec, http.StatusBadRequest, "invalid_input", "Name is required")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, "invalid_input", body["error"])
		assert.Equal(t, "Name is required", body["message"])
		assert.NotContains(t, body, "details")
	})

	t.Run("includes details when given", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()

		WriteErrorWithDetails(rec, http.StatusBadRequest, "validation_failed", "bad rules", []string{"[0].path: required"})

		var body ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, []any{"[0].path: required"}, body.Details)
	})
}

func TestWriteHelpers(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteOK(rec, map[string]bool{"ok": true})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	WriteBadRequest(rec, "bad", "nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	WriteMethodNotAllowed(rec, http.MethodGet, http.MethodPut)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, PUT", rec.Header().Get("Allow"))
	assert.True(t, strings.Contains(rec.Body.String(), "method_not_allowed"))
}
