package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mocklane/pkg/config"
	"github.com/getmockd/mocklane/pkg/engine"
	"github.com/getmockd/mocklane/pkg/eventlog"
	"github.com/getmockd/mocklane/pkg/httputil"
	"github.com/getmockd/mocklane/pkg/logging"
)

const rulesJSON = `[{"id":"a","matcher":{"method":"GET","path":"/a"},"response":{"status":200,"body":"A"}}]`

// syncBuffer is a bytes.Buffer safe for one writer and one reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testFlags(t *testing.T, rules string) *serveFlags {
	t.Helper()
	def := config.DefaultServerConfiguration()
	f := &serveFlags{
		host:         "127.0.0.1",
		port:         0,
		readTimeout:  def.ReadTimeout,
		writeTimeout: def.WriteTimeout,
		exprTimeout:  def.ExpressionTimeout,
		logLevel:     "info",
		logFormat:    "text",
		logMaxBytes:  def.Log.MaxBytes,
		logBuffer:    def.Log.BufferSize,
	}
	if rules != "" {
		f.configFile = filepath.Join(t.TempDir(), "rules.json")
		require.NoError(t, os.WriteFile(f.configFile, []byte(rules), 0o644))
	}
	return f
}

func startTestServer(t *testing.T, rules string) *engine.Server {
	t.Helper()
	srv, err := startServer(testFlags(t, rules), io.Discard, io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func baseURL(srv *engine.Server) string {
	return "http://127.0.0.1:" + strconv.Itoa(srv.Port())
}

func get(t *testing.T, url string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func TestServeFlags_Configuration(t *testing.T) {
	t.Run("maps every flag", func(t *testing.T) {
		f := testFlags(t, "")
		f.configFile = "rules/**/*.yaml"
		f.port = 8080
		f.statsdAddr = "127.0.0.1:8125"
		f.logLevel = "debug"
		f.logFile = "events.log"
		f.logBuffer = 50
		f.exprTimeout = 10 * time.Millisecond

		cfg, err := f.configuration()
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Host)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "rules/**/*.yaml", cfg.RulesPath)
		assert.Equal(t, "127.0.0.1:8125", cfg.StatsDAddr)
		assert.Equal(t, 10*time.Millisecond, cfg.ExpressionTimeout)
		assert.Equal(t, config.LogConfig{
			Level: "debug", Format: "text", File: "events.log",
			MaxBytes: config.DefaultLogMaxBytes, BufferSize: 50,
		}, cfg.Log)
		assert.True(t, cfg.CORS.IsWildcard())
	})

	t.Run("default rules file", func(t *testing.T) {
		t.Setenv(EnvConfig, "")
		assert.Equal(t, config.DefaultRulesFile, defaultRulesPath())

		t.Setenv(EnvConfig, "/etc/mocklane/rules.yaml")
		assert.Equal(t, "/etc/mocklane/rules.yaml", defaultRulesPath())

		flag := serveCmd.Flags().Lookup("config")
		require.NotNil(t, flag)
		assert.NotEmpty(t, flag.DefValue)
	})

	t.Run("cors origins", func(t *testing.T) {
		f := testFlags(t, "")
		f.corsOrigins = []string{"https://app.example.com"}
		cfg, err := f.configuration()
		require.NoError(t, err)
		assert.False(t, cfg.CORS.IsWildcard())
		assert.Equal(t, "https://app.example.com", cfg.CORS.AllowOriginValue("https://app.example.com"))
		assert.Empty(t, cfg.CORS.AllowOriginValue("https://evil.example.com"))
	})

	t.Run("invalid values", func(t *testing.T) {
		f := testFlags(t, "")
		f.logLevel = "verbose"
		f.logBuffer = 0
		_, err := f.configuration()
		require.ErrorIs(t, err, config.ErrInvalidConfig)
		assert.Contains(t, err.Error(), "Log.Level")
		assert.Contains(t, err.Error(), "Log.BufferSize")
	})
}

func TestEnvOr(t *testing.T) {
	t.Setenv("MOCKLANE_TEST_ENV", "set")
	assert.Equal(t, "set", envOr("MOCKLANE_TEST_ENV", "def"))
	assert.Equal(t, "def", envOr("MOCKLANE_TEST_ENV_MISSING", "def"))
}

func TestStartServer(t *testing.T) {
	var stdout bytes.Buffer
	srv, err := startServer(testFlags(t, rulesJSON), &stdout, io.Discard)
	require.NoError(t, err)
	defer func() { _ = srv.Stop() }()

	assert.Contains(t, stdout.String(), "mocklane listening on http://127.0.0.1:"+strconv.Itoa(srv.Port()))
	assert.Contains(t, stdout.String(), "(1 mocks)")

	resp, err := http.Get(baseURL(srv) + "/a")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "A", string(body))

	resp, err = http.Get(baseURL(srv) + "/__health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartServer_BrokenRulesStillServes(t *testing.T) {
	var stderr bytes.Buffer
	srv, err := startServer(testFlags(t, `[{"id":`), io.Discard, &stderr)
	require.NoError(t, err)
	defer func() { _ = srv.Stop() }()

	assert.Contains(t, stderr.String(), "Warning: starting with no rules")
	assert.Equal(t, 0, srv.Rules().Len())
}

func TestRunServe_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout bytes.Buffer
	require.NoError(t, runServe(ctx, testFlags(t, ""), &stdout, io.Discard))
	assert.Contains(t, stdout.String(), "Shutting down...")
}

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(rulesJSON), 0o644))
	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte(`
- id: a
  matcher: {method: GET, path: /a}
  response: {status: 200}
- id: a
  matcher: {method: GET, path: /b}
  response: {status: 200}
`), 0o644))

	t.Run("valid", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runValidate(&out, good, false))
		assert.Equal(t, "✓ "+good+": 1 rules\n", out.String())
	})

	t.Run("invalid lists every problem", func(t *testing.T) {
		var out bytes.Buffer
		err := runValidate(&out, dup, false)
		require.ErrorIs(t, err, ErrInvalidRules)
		assert.Contains(t, out.String(), "✗ "+dup)
		assert.Contains(t, out.String(), "duplicate")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.Error(t, runValidate(&out, filepath.Join(dir, "missing.json"), true))
		var result ValidateOutput
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "not found")
	})
}

func TestFetchLogs(t *testing.T) {
	srv := startTestServer(t, rulesJSON)
	get(t, baseURL(srv)+"/a")
	get(t, baseURL(srv)+"/missing")

	events, err := fetchLogs(context.Background(), http.DefaultClient, baseURL(srv), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	var table bytes.Buffer
	require.NoError(t, printEvents(&table, events, false))
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "TIME")
	assert.Contains(t, lines[1], "GET /a -> 200")
	assert.Contains(t, lines[1], "[a]")
	assert.Contains(t, lines[2], "WARN")
	assert.Contains(t, lines[2], "GET /missing -> 404")
	assert.Contains(t, lines[2], "[no match]")

	var ndjson bytes.Buffer
	require.NoError(t, printEvents(&ndjson, events, true))
	for _, line := range strings.Split(strings.TrimSpace(ndjson.String()), "\n") {
		var e eventlog.Event
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		assert.Equal(t, engine.EventRequest, e.Name)
	}
}

func TestFetchLogs_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteBadRequest(w, "invalid_parameter", "limit must be a non-negative integer")
	}))
	defer ts.Close()

	_, err := fetchLogs(context.Background(), http.DefaultClient, ts.URL, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server returned 400: limit must be a non-negative integer")

	addr := ts.Listener.Addr().String()
	ts.Close()
	_, err = fetchLogs(context.Background(), http.DefaultClient, "http://"+addr, 1)
	assert.ErrorIs(t, err, ErrServerNotRunning)
}

func TestPrintEvents_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printEvents(&out, nil, false))
	assert.Equal(t, "No events\n", out.String())
}

func TestLogStreamURL(t *testing.T) {
	tests := []struct {
		server  string
		want    string
		wantErr bool
	}{
		{server: "http://localhost:4000", want: "ws://localhost:4000/__logs/ws?replay=10"},
		{server: "https://mocks.example.com/", want: "wss://mocks.example.com/__logs/ws?replay=10"},
		{server: "http://host/prefix", want: "ws://host/prefix/__logs/ws?replay=10"},
		{server: "ftp://host", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			got, err := logStreamURL(tt.server, 10)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFollowLogs(t *testing.T) {
	srv := startTestServer(t, rulesJSON)
	get(t, baseURL(srv)+"/a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- followLogs(ctx, &out, baseURL(srv), 1, false) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "GET /a -> 200") },
		2*time.Second, 10*time.Millisecond, "replayed event")
	require.Eventually(t, func() bool { return srv.Events().SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	get(t, baseURL(srv)+"/live")
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "GET /live -> 404") },
		2*time.Second, 10*time.Millisecond, "live event")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("followLogs did not return after cancel")
	}
}

func TestFollowLogs_EndsWhenServerStops(t *testing.T) {
	srv := startTestServer(t, "")

	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- followLogs(context.Background(), &out, baseURL(srv), 0, true) }()
	require.Eventually(t, func() bool { return srv.Events().SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(7 * time.Second):
		t.Fatal("followLogs did not return after server stop")
	}
}

func TestEventDetail(t *testing.T) {
	e := &eventlog.Event{
		Time:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level: logging.LevelInfo,
		Name:  engine.EventRulesLoaded,
		Fields: eventlog.Fields{
			"count": 3,
		},
	}
	assert.Equal(t, `{"count":3}`, eventDetail(e))
	assert.Contains(t, formatEvent(e), "INFO   rules_loaded  {\"count\":3}")

	e.Fields = nil
	assert.Empty(t, eventDetail(e))
}

func TestPrintVersion(t *testing.T) {
	info := VersionOutput{Version: "1.2.3", Commit: "abc", Date: "2026-01-01", Go: "go1.26.2", OS: "linux", Arch: "amd64"}

	var out bytes.Buffer
	require.NoError(t, printVersion(&out, info, false))
	assert.Equal(t, "mocklane v1.2.3 (abc, 2026-01-01)\ngo1.26.2 linux/amd64\n", out.String())

	out.Reset()
	require.NoError(t, printVersion(&out, info, true))
	var decoded VersionOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, info, decoded)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "validate", "logs", "version"} {
		assert.True(t, names[want], want)
	}
}
