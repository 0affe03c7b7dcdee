package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voltlab/netir/internal/compiler"
	"github.com/voltlab/netir/internal/ir"
)

// validateSummary is the JSON payload for a validation run.
type validateSummary struct {
	Library     string                `json:"library"`
	Errors      int                   `json:"errors"`
	Warnings    int                   `json:"warnings"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <library-dir>",
		Short: "Validate a circuit library",
		Long: `Load a circuit library from CUE files and check its structural
invariants: connection arity and widths, bit ranges, instantiation
acyclicity, and parameter references. Warnings do not fail the run.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    opts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   opts.Verbose,
			}
			return runValidate(args[0], formatter)
		},
	}
	return cmd
}

func runValidate(dir string, formatter *OutputFormatter) error {
	lib, err := loadForCommand(dir, formatter)
	if err != nil {
		return err
	}

	issues := compiler.Validate(lib)
	summary := validateSummary{
		Library:     lib.Name(),
		Errors:      issues.NumErrors(),
		Warnings:    issues.NumWarnings(),
		Diagnostics: issues.Diagnostics,
	}

	if !issues.OK() {
		formatter.Error(ErrCodeGeneric,
			fmt.Sprintf("library %q failed validation: %d error(s), %d warning(s)",
				lib.Name(), summary.Errors, summary.Warnings),
			summary)
		if formatter.Format == "text" {
			fmt.Fprint(formatter.Writer, issues.String())
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	if formatter.Format == "json" {
		return formatter.Success(summary)
	}
	if summary.Warnings > 0 {
		fmt.Fprint(formatter.Writer, issues.String())
	}
	return formatter.Success(fmt.Sprintf("library %q is valid (%d warning(s))", lib.Name(), summary.Warnings))
}

// loadForCommand loads a library and maps load failures to command errors
// (exit 2) in the configured output format.
func loadForCommand(dir string, formatter *OutputFormatter) (*ir.Library, error) {
	formatter.VerboseLog("loading library from %s", dir)
	lib, err := LoadLibrary(dir)
	if err != nil {
		code := ErrCodeGeneric
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			code = loadErr.Code
		}
		formatter.Error(code, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "loading library", err)
	}
	formatter.VerboseLog("loaded library %q: %d definition(s)", lib.Name(), len(lib.Defs()))
	return lib, nil
}
