package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/mocklane/pkg/admin"
	"github.com/getmockd/mocklane/pkg/cli/internal/output"
	"github.com/getmockd/mocklane/pkg/config"
	"github.com/getmockd/mocklane/pkg/engine"
	"github.com/getmockd/mocklane/pkg/logging"
)

// serveFlagVals is the package-level instance bound to cobra flags.
var serveFlagVals serveFlags

// serveFlags holds all parsed command-line flags for the serve command.
type serveFlags struct {
	configFile   string
	host         string
	port         int
	readTimeout  int
	writeTimeout int
	exprTimeout  time.Duration
	corsOrigins  []string
	statsdAddr   string

	logLevel    string
	logFormat   string
	logFile     string
	logMaxBytes int64
	logBuffer   int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mock server (foreground)",
	Long: `Start the mock server and serve the configured rules until interrupted.

The admin routes (/__health, /__mocks, /__reload, /__logs, /__metrics) are
served on the same port. A missing rules file starts the server with no
rules; upload them later with PUT /__mocks.`,
	Example: `  # Start with defaults (port 4000, no rules)
  mocklane serve

  # Serve a rules file on a custom port
  mocklane serve --config mocks.json --port 3000

  # Serve every YAML file under rules/ and keep a rotating event log
  mocklane serve -c 'rules/**/*.yaml' --log-file events.log --log-max-bytes 1048576`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, &serveFlagVals, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := &serveFlagVals
	def := config.DefaultServerConfiguration()

	serveCmd.Flags().StringVarP(&f.configFile, "config", "c", defaultRulesPath(), "Rules file or glob (env "+EnvConfig+")")
	serveCmd.Flags().IntVarP(&f.port, "port", "p", def.Port, "HTTP server port (0 picks a free port)")
	serveCmd.Flags().StringVar(&f.host, "host", def.Host, "Listen address (default all interfaces)")
	serveCmd.Flags().IntVar(&f.readTimeout, "read-timeout", def.ReadTimeout, "Read timeout in seconds")
	serveCmd.Flags().IntVar(&f.writeTimeout, "write-timeout", def.WriteTimeout, "Write timeout in seconds")
	serveCmd.Flags().DurationVar(&f.exprTimeout, "expr-timeout", def.ExpressionTimeout, "Time limit for each template expression")
	serveCmd.Flags().StringSliceVar(&f.corsOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable, default *)")
	serveCmd.Flags().StringVar(&f.statsdAddr, "statsd-addr", "", "Mirror metrics to a DogStatsD agent at host:port")

	serveCmd.Flags().StringVar(&f.logLevel, "log-level", envOr(EnvLogLevel, def.Log.Level), "Log level (debug, info, warn, error) (env "+EnvLogLevel+")")
	serveCmd.Flags().StringVar(&f.logFormat, "log-format", def.Log.Format, "Console log format (text, json)")
	serveCmd.Flags().StringVar(&f.logFile, "log-file", os.Getenv(EnvLogFile), "Append events to this JSON-lines file (env "+EnvLogFile+")")
	serveCmd.Flags().Int64Var(&f.logMaxBytes, "log-max-bytes", def.Log.MaxBytes, "Rotate the log file at this size (0 disables rotation)")
	serveCmd.Flags().IntVar(&f.logBuffer, "log-buffer", def.Log.BufferSize, "Number of events kept in memory")
}

// defaultRulesPath is MOCKS_CONFIG when set, the default rules file otherwise.
// The file need not exist; it is created by the first persisted upload.
func defaultRulesPath() string {
	return envOr(EnvConfig, config.DefaultRulesFile)
}

// configuration builds a validated ServerConfiguration from the flags.
func (f *serveFlags) configuration() (*config.ServerConfiguration, error) {
	cfg := config.DefaultServerConfiguration()
	cfg.Host = f.host
	cfg.Port = f.port
	cfg.RulesPath = f.configFile
	cfg.ReadTimeout = f.readTimeout
	cfg.WriteTimeout = f.writeTimeout
	cfg.ExpressionTimeout = f.exprTimeout
	cfg.StatsDAddr = f.statsdAddr
	cfg.Log = config.LogConfig{
		Level:      f.logLevel,
		Format:     f.logFormat,
		File:       f.logFile,
		MaxBytes:   f.logMaxBytes,
		BufferSize: f.logBuffer,
	}
	if len(f.corsOrigins) > 0 {
		cors := config.WildcardCORSConfig()
		cors.AllowOrigins = f.corsOrigins
		cfg.CORS = cors
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startServer builds, loads and starts a server from the flags. Operational
// logs go to stderr; the startup banner goes to stdout.
func startServer(f *serveFlags, stdout, stderr io.Writer) (*engine.Server, error) {
	cfg, err := f.configuration()
	if err != nil {
		return nil, err
	}

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: logging.ParseFormat(cfg.Log.Format),
		Output: stderr,
	})

	srv, err := engine.NewServer(cfg, engine.WithLogger(log))
	if err != nil {
		return nil, err
	}
	admin.New(srv, admin.WithLogger(log))

	if _, err := srv.LoadRules(); err != nil {
		output.Warn(stderr, "starting with no rules: %v", err)
	}
	if err := srv.Start(); err != nil {
		_ = srv.Stop()
		return nil, err
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	fmt.Fprintf(stdout, "mocklane listening on http://%s (%d mocks)\n",
		net.JoinHostPort(host, strconv.Itoa(srv.Port())), srv.Rules().Len())
	return srv, nil
}

// runServe serves until ctx is cancelled, then shuts down gracefully.
func runServe(ctx context.Context, f *serveFlags, stdout, stderr io.Writer) error {
	srv, err := startServer(f, stdout, stderr)
	if err != nil {
		return err
	}

	<-ctx.Done()
	fmt.Fprintln(stdout, "\nShutting down...")
	if err := srv.Stop(); err != nil {
		output.Warn(stderr, "server shutdown error: %v", err)
	}
	return nil
}
