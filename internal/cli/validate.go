package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bip/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.ValidationError `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate specs without running them",
		Long: `Validate CUE component specs and glue.

Compiles every spec, then checks states, ports, data access and glue
references for consistency. Unreachable and dead-end states are reported
as warnings and do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseLoadError(loadErrors[0])
		_ = formatter.Error(code, message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)

	var result ValidationResult
	for _, err := range loadErrors {
		code, message := parseLoadError(err)
		result.Errors = append(result.Errors, compiler.ValidationError{
			Field:    "load",
			Message:  message,
			Code:     code,
			Severity: compiler.SeverityError,
		})
	}
	// A partial project is still checked, so one run reports every problem.
	for _, f := range compiler.Validate(loadResult.Project) {
		if f.Severity == compiler.SeverityWarning {
			result.Warnings = append(result.Warnings, f)
		} else {
			result.Errors = append(result.Errors, f)
		}
	}
	result.Valid = len(result.Errors) == 0

	return outputValidation(formatter, result)
}

// outputValidation prints the findings. Errors exit with ExitFailure.
func outputValidation(formatter *OutputFormatter, result ValidationResult) error {
	var failure error
	if !result.Valid {
		failure = NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message}
		}
		if err := formatter.Respond(resp); err != nil {
			return err
		}
		return failure
	}

	w := formatter.Writer
	if result.Valid {
		fmt.Fprintln(w, "✓ All specs valid")
	} else {
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s %s: %s\n", e.Code, e.Field, e.Message)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%d warning(s):\n", len(result.Warnings))
		for _, e := range result.Warnings {
			fmt.Fprintf(w, "  %s %s: %s\n", e.Code, e.Field, e.Message)
		}
	}
	return failure
}
