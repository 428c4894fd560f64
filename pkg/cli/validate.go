package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/getmockd/mocklane/pkg/cli/internal/output"
	"github.com/getmockd/mocklane/pkg/config"
)

// ValidateOutput is the JSON form of a validate result.
type ValidateOutput struct {
	Path   string   `json:"path"`
	Valid  bool     `json:"valid"`
	Count  int      `json:"count"`
	Errors []string `json:"errors,omitempty"`
}

// ErrInvalidRules is returned by validate when the rules do not load.
var ErrInvalidRules = errors.New("rules are invalid")

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a rules file without starting the server",
	Long: `Load a rules file (or glob) exactly as the server would: parse JSON or
YAML, check it against the rules schema, then check every rule and the
uniqueness of rule ids.`,
	Example: `  mocklane validate mocks.json
  mocklane validate 'rules/**/*.yaml' --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout(), args[0], jsonOutput)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(w io.Writer, path string, asJSON bool) error {
	result := ValidateOutput{Path: path}
	rules, err := config.LoadRules(path)
	if err != nil {
		result.Errors = validationMessages(err)
	} else {
		result.Valid = true
		result.Count = len(rules)
	}

	if asJSON {
		if err := output.JSON(w, result); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintf(w, "✓ %s: %d rules\n", path, result.Count)
	} else {
		fmt.Fprintf(w, "✗ %s\n", path)
		for _, msg := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
	}

	if !result.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidRules, path)
	}
	return nil
}

// validationMessages flattens schema details and joined errors into lines.
func validationMessages(err error) []string {
	var schemaErr *config.SchemaError
	if errors.As(err, &schemaErr) {
		return schemaErr.Details
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			var out []string
			for _, inner := range joined.Unwrap() {
				out = append(out, validationMessages(inner)...)
			}
			return out
		}
	}
	return []string{err.Error()}
}
