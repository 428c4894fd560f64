package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/getmockd/mocklane/pkg/cli/internal/output"
)

// VersionOutput represents JSON output format
type VersionOutput struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show mocklane version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printVersion(cmd.OutOrStdout(), versionInfo(), jsonOutput)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// versionInfo combines the ldflags values with the VCS stamp of the binary.
func versionInfo() VersionOutput {
	version, commit, date := Version, Commit, BuildDate
	if info, ok := debug.ReadBuildInfo(); ok {
		if version == "dev" && info.Main.Version != "" {
			version = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if commit == "none" {
					commit = setting.Value
				}
			case "vcs.time":
				if date == "unknown" {
					date = setting.Value
				}
			case "vcs.modified":
				if setting.Value == "true" {
					commit += "-dirty"
				}
			}
		}
	}
	return VersionOutput{
		Version: version,
		Commit:  commit,
		Date:    date,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
}

func printVersion(w io.Writer, out VersionOutput, asJSON bool) error {
	if asJSON {
		return output.JSON(w, out)
	}
	v := out.Version
	if len(v) > 0 && v[0] != 'v' && v != "dev" && v != "(devel)" {
		v = "v" + v
	}
	fmt.Fprintf(w, "mocklane %s (%s, %s)\n", v, out.Commit, out.Date)
	fmt.Fprintf(w, "%s %s/%s\n", out.Go, out.OS, out.Arch)
	return nil
}
