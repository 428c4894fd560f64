package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// jsonOutput switches command output to JSON
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// Environment variables read as flag defaults.
const (
	EnvConfig   = "MOCKS_CONFIG"
	EnvLogLevel = "MOCKLANE_LOG_LEVEL"
	EnvLogFile  = "MOCKLANE_LOG_FILE"
	EnvServer   = "MOCKLANE_SERVER"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mocklane",
	Short: "mocklane serves HTTP mocks from declarative rules",
	Long: `mocklane answers HTTP requests from an ordered list of rules. Each rule
pairs a request matcher with a templated response; the first matching rule
wins and every request is recorded in a structured, streamable event log.

Rules are read from a JSON or YAML file, or a glob of files, given with
--config or the MOCKS_CONFIG environment variable.`,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}

// envOr returns the value of the environment variable key, or def when unset.
func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
