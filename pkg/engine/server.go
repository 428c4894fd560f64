package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/getmockd/mocklane/pkg/config"
	"github.com/getmockd/mocklane/pkg/eventlog"
	"github.com/getmockd/mocklane/pkg/logging"
	"github.com/getmockd/mocklane/pkg/metrics"
	"github.com/getmockd/mocklane/pkg/mock"
	"github.com/getmockd/mocklane/pkg/template"
)

// Lifecycle event names.
const (
	EventServerStart     = "server_start"
	EventServerStop      = "server_stop"
	EventRulesLoaded     = "rules_loaded"
	EventRulesMissing    = "rules_not_found"
	EventRulesLoadFailed = "rules_load_failed"
	EventRulesReplaced   = "rules_replaced"
)

// SourceAdmin is the snapshot source of rules uploaded through the admin API.
const SourceAdmin = "admin"

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 5 * time.Second

// Routes is a set of reserved routes served ahead of dispatch. Handler
// returns an empty pattern for requests it does not own.
type Routes interface {
	Handler(r *http.Request) (h http.Handler, pattern string)
}

// Server is a mocklane instance: rule store, dispatch pipeline, event log
// and metrics behind one HTTP listener.
type Server struct {
	cfg      *config.ServerConfiguration
	log      *slog.Logger
	rules    *RuleStore
	events   *eventlog.Logger
	recorder *metrics.Recorder
	pipeline *Pipeline
	handler  *Handler
	admin    Routes
	root     http.Handler

	mu         sync.RWMutex
	httpServer *http.Server
	listener   net.Listener
	running    bool
	startTime  time.Time
	done       chan struct{}
	stopOnce   sync.Once
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	log      *slog.Logger
	recorder *metrics.Recorder
	now      func() time.Time
	sleep    func(time.Duration)
}

// WithLogger sets the operational logger. Dispatch events are mirrored to it.
func WithLogger(log *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.log = log
	}
}

// WithRecorder replaces the metrics recorder.
func WithRecorder(r *metrics.Recorder) ServerOption {
	return func(o *serverOptions) {
		o.recorder = r
	}
}

// WithServerClock overrides the dispatch clock. Used by tests.
func WithServerClock(now func() time.Time, sleep func(time.Duration)) ServerOption {
	return func(o *serverOptions) {
		o.now = now
		o.sleep = sleep
	}
}

// NewServer builds a Server from cfg. A nil cfg uses the defaults. The rule
// source is not read until LoadRules.
func NewServer(cfg *config.ServerConfiguration, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultServerConfiguration()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &serverOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logging.Nop()
	}

	if o.recorder == nil {
		recOpts := []metrics.RecorderOption{metrics.WithLogger(o.log)}
		if cfg.StatsDAddr != "" {
			client, err := metrics.NewStatsD(cfg.StatsDAddr)
			if err != nil {
				return nil, fmt.Errorf("failed to create statsd client: %w", err)
			}
			recOpts = append(recOpts, metrics.WithStatsD(client))
		}
		o.recorder = metrics.NewRecorder(recOpts...)
	}

	var sink *eventlog.FileSink
	if cfg.Log.File != "" {
		var err error
		if sink, err = eventlog.OpenFileSink(cfg.Log.File, cfg.Log.MaxBytes); err != nil {
			_ = o.recorder.Close()
			return nil, err
		}
	}

	events := eventlog.New(eventlog.Options{
		Capacity: cfg.Log.BufferSize,
		MinLevel: logging.ParseLevel(cfg.Log.Level),
		Console:  o.log,
		File:     sink,
		Errors:   o.log,
		OnDrop:   o.recorder.EventDropped,
		Now:      o.now,
	})

	tmpl := template.New(
		template.WithTimeout(cfg.ExpressionTimeout),
		template.WithTimeoutHook(o.recorder.ExpressionTimeout),
		template.WithLogger(o.log),
	)

	rules := NewRuleStore()
	pipeline := NewPipeline(rules, events,
		WithTemplateEngine(tmpl),
		WithObserver(o.recorder),
		WithPipelineLogger(o.log),
		WithClock(o.now, o.sleep),
		WithWriteTimeout(time.Duration(cfg.WriteTimeout)*time.Second),
	)
	handler := NewHandler(pipeline, cfg.MaxBodySize)
	if o.now != nil {
		handler.now = o.now
	}

	s := &Server{
		cfg:      cfg,
		log:      o.log,
		rules:    rules,
		events:   events,
		recorder: o.recorder,
		pipeline: pipeline,
		handler:  handler,
		done:     make(chan struct{}),
	}
	s.root = NewCORSMiddleware(http.HandlerFunc(s.route), cfg.CORS, handler)
	return s, nil
}

// SetAdmin installs the reserved admin routes. Must be called before Start.
func (s *Server) SetAdmin(routes Routes) {
	s.admin = routes
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if s.admin != nil {
		if h, pattern := s.admin.Handler(r); pattern != "" {
			h.ServeHTTP(w, r)
			return
		}
	}
	s.handler.ServeHTTP(w, r)
}

// Handler returns the complete HTTP handler: CORS, admin routes, then dispatch.
func (s *Server) Handler() http.Handler {
	return s.root
}

// LoadRules reads the configured rule source and publishes it. A missing
// source or file yields an empty rule set and an informational event; any
// other failure yields an empty rule set, a warning event and the error.
func (s *Server) LoadRules() (int, error) {
	path := s.cfg.RulesPath
	if path == "" {
		s.rules.Replace(nil, "")
		s.recorder.SetRules(0)
		s.events.Info(EventRulesMissing, eventlog.Fields{"configPath": nil})
		return 0, nil
	}

	loaded, err := config.LoadRules(path)
	if err != nil {
		s.rules.Replace(nil, path)
		s.recorder.SetRules(0)
		if errors.Is(err, config.ErrFileNotFound) {
			s.events.Info(EventRulesMissing, eventlog.Fields{"configPath": path})
			return 0, nil
		}
		s.log.Warn("failed to load rules, continuing with an empty rule set", "path", path, "error", err)
		s.events.Warn(EventRulesLoadFailed, eventlog.Fields{"configPath": path, "error": err.Error()})
		return 0, err
	}

	s.rules.Replace(loaded, path)
	s.recorder.SetRules(len(loaded))
	s.events.Info(EventRulesLoaded, eventlog.Fields{"configPath": path, "count": len(loaded)})
	return len(loaded), nil
}

// ReplaceRules validates rules and publishes them. With persist set the set
// is written to the rule source first; if that write fails nothing is
// published.
func (s *Server) ReplaceRules(rules []*mock.Rule, persist bool) error {
	if err := mock.ValidateSet(rules); err != nil {
		return err
	}
	if persist {
		if err := config.SaveRules(s.cfg.RulesPath, rules); err != nil {
			s.log.Warn("failed to persist rules", "path", s.cfg.RulesPath, "error", err)
			return err
		}
	}
	s.rules.Replace(rules, SourceAdmin)
	s.recorder.SetRules(len(rules))
	s.events.Info(EventRulesReplaced, eventlog.Fields{"count": len(rules), "persisted": persist})
	return nil
}

// Start begins listening. A Port of 0 picks a free port; see Port.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}
	select {
	case <-s.done:
		return fmt.Errorf("server is stopped")
	default:
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.root,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	s.log.Info("starting HTTP server", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error", "error", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()

	var configPath any
	if s.cfg.RulesPath != "" {
		configPath = s.cfg.RulesPath
	}
	var logFile any
	if p := s.events.FilePath(); p != "" {
		logFile = p
	}
	s.events.Info(EventServerStart, eventlog.Fields{
		"port":       s.portLocked(),
		"mocksCount": s.rules.Len(),
		"configPath": configPath,
		"logFile":    logFile,
		"bufferSize": s.events.Capacity(),
		"minLevel":   logging.LevelName(s.events.MinLevel()),
	})
	return nil
}

// Stop ends live log streams, shuts the listener down gracefully and closes
// the file sink and metrics client. A stopped server cannot be restarted.
// Calls after the first return nil.
func (s *Server) Stop() error {
	var errs []error
	s.stopOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.running {
			ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer cancel()
			if err := s.httpServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
			}
			s.running = false
			s.events.Info(EventServerStop, eventlog.Fields{"uptimeSeconds": int(time.Since(s.startTime).Seconds())})
		}

		if err := s.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event log close: %w", err))
		}
		if err := s.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("metrics close: %w", err))
		}
	})
	return errors.Join(errs...)
}

// Done is closed when Stop begins. Long-lived handlers such as log streams
// return when it closes.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime in seconds.
func (s *Server) Uptime() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return int(time.Since(s.startTime).Seconds())
}

// Port returns the bound port once started, the configured port otherwise.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.portLocked()
}

func (s *Server) portLocked() int {
	if s.listener != nil {
		if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return tcp.Port
		}
	}
	return s.cfg.Port
}

// Config returns the server configuration.
func (s *Server) Config() *config.ServerConfiguration {
	return s.cfg
}

// Rules returns the rule store.
func (s *Server) Rules() *RuleStore {
	return s.rules
}

// Events returns the dispatch event log.
func (s *Server) Events() *eventlog.Logger {
	return s.events
}

// Metrics returns the metrics recorder.
func (s *Server) Metrics() *metrics.Recorder {
	return s.recorder
}

// Logger returns the operational logger.
func (s *Server) Logger() *slog.Logger {
	return s.log
}
