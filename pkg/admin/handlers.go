package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/getmockd/mocklane/pkg/config"
	"github.com/getmockd/mocklane/pkg/httputil"
	"github.com/getmockd/mocklane/pkg/mock"
)

// handleHealth handles GET /__health.
func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	cfg := a.srv.Config()
	httputil.WriteOK(w, HealthResponse{
		OK:            true,
		Port:          a.srv.Port(),
		ConfigPath:    cfg.RulesPath,
		HasConfigFile: config.SourceExists(cfg.RulesPath),
		MocksCount:    a.srv.Rules().Len(),
		UptimeSeconds: a.srv.Uptime(),
		Subscribers:   a.srv.Events().SubscriberCount(),
	})
}

// handleGetMocks handles GET /__mocks.
func (a *API) handleGetMocks(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, a.srv.Rules().Snapshot().Rules)
}

// handlePutMocks handles PUT /__mocks[?persist=true]. The body replaces the
// whole rule set; any failure leaves the current set in place.
func (a *API) handlePutMocks(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.srv.Config().MaxBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, ErrCodeBodyTooLarge, "request body too large")
			return
		}
		httputil.WriteBadRequest(w, ErrCodeInvalidJSON, "failed to read request body")
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("[]")
	}

	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		httputil.WriteBadRequest(w, ErrCodeInvalidJSON, "Invalid JSON body: "+err.Error())
		return
	}
	if _, ok := probe.([]any); !ok {
		httputil.WriteBadRequest(w, ErrCodeNotArray, "Body must be an array of mocks")
		return
	}

	rules, err := config.ParseRules(data, config.FormatJSON)
	if err != nil {
		if errors.Is(err, config.ErrSchema) {
			httputil.WriteErrorWithDetails(w, http.StatusBadRequest, ErrCodeSchema, config.ErrSchema.Error(), errorDetails(err))
			return
		}
		httputil.WriteErrorWithDetails(w, http.StatusBadRequest, ErrCodeValidation, "invalid rules", errorDetails(err))
		return
	}
	if err := mock.ValidateSet(rules); err != nil {
		httputil.WriteErrorWithDetails(w, http.StatusBadRequest, ErrCodeValidation, "invalid rules", errorDetails(err))
		return
	}

	persist := r.URL.Query().Get("persist") == "true"
	if err := a.srv.ReplaceRules(rules, persist); err != nil {
		if errors.Is(err, config.ErrNotPersistable) {
			httputil.WriteBadRequest(w, ErrCodeNotPersistable, "rules source cannot be written: "+err.Error())
			return
		}
		a.log.Error("failed to persist rules", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, ErrCodePersistFailed, err.Error())
		return
	}
	httputil.WriteOK(w, ReplaceResponse{OK: true, Count: len(rules), Persisted: persist})
}

// handleReload handles POST /__reload. A broken source still answers 200
// with an empty rule set and a warning.
func (a *API) handleReload(w http.ResponseWriter, _ *http.Request) {
	count, err := a.srv.LoadRules()
	resp := ReloadResponse{OK: true, Count: count}
	if err != nil {
		resp.Warning = err.Error()
	}
	httputil.WriteOK(w, resp)
}

// handleMetrics handles GET /__metrics.
func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	a.srv.Metrics().Handler().ServeHTTP(w, r)
}
