package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/viewgen/internal/compiler"
	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/generator"
	"github.com/roach88/viewgen/internal/metadata"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Mapping  string                     `json:"mapping,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Static bool // skip cell group validation
	Gen    GenerationFlags
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <mapping-dir>",
		Short: "Validate a mapping without writing views",
		Long: `Validate a CUE mapping without writing views.

Checks the mapping against the schema rules (E1xx codes), reports foreign
key cycles between tables, then builds cells and runs the cell group
validator and view generation in memory, reporting every logged error
(3xxx codes).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Static, "static", false, "only run schema validation")
	addGenerationFlags(cmd, &opts.Gen)
	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	cfg, err := resolveConfig(opts.RootOptions, cmd, &opts.Gen)
	if err != nil {
		return outputValidateError(formatter, ErrCodeConfig, err.Error(), nil)
	}
	// Text is never needed to validate.
	cfg.GenerateEsql = false

	loadResult, err := LoadMapping(dir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && strings.HasPrefix(loadErr.Code, "E1") {
			// The mapping was read; the document itself is wrong.
			return outputValidationErrors(formatter, ValidationResult{
				Errors: []compiler.ValidationError{{Field: "load", Message: loadErr.Error(), Code: loadErr.Code}},
			})
		}
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}
	m := loadResult.Mapping
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	result := ValidationResult{Mapping: m.Name}
	result.Errors = compiler.Validate(m)
	result.Warnings = compiler.AnalyzeCycles(m.Schema)

	if len(result.Errors) == 0 && !opts.Static {
		formatter.VerboseLog("Generating views of %s in memory", m.Name)
		r := generator.Generate(m, cfg, generator.WithLogger(newLogger(cfg, formatter.GetErrWriter())))
		result.Errors = append(result.Errors, recordErrors(r.Log.Records())...)
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}
	result.Valid = true
	return outputValidateSuccess(formatter, result)
}

// recordErrors converts logged errors to validation errors. Warnings are
// dropped.
func recordErrors(recs []errlog.Record) []compiler.ValidationError {
	var out []compiler.ValidationError
	for _, r := range recs {
		if r.Severity != errlog.SeverityError {
			continue
		}
		out = append(out, compiler.ValidationError{
			Field:   r.Source,
			Message: fmt.Sprintf("%s: %s", r.Code, r.Message),
			Code:    strconv.Itoa(int(r.Code)),
		})
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	printCycleWarnings(formatter, result.Warnings)
	formatter.Pass("Mapping %s valid", result.Mapping)
	return nil
}

func printCycleWarnings(formatter *OutputFormatter, warnings []compiler.CycleWarning) {
	for _, w := range warnings {
		formatter.Warn("%s %s (%s)", ErrCodeCycleWarning, w.Message, w.Level)
	}
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		if err := formatter.JSON(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	printCycleWarnings(formatter, result.Warnings)
	formatter.Fail("Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Field != "" {
			fmt.Fprintf(formatter.Writer, "%s\n", err.Field)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateMappingDir validates the mapping in a directory statically.
// This is a helper function for external callers.
func ValidateMappingDir(dir string) (*metadata.Mapping, []compiler.ValidationError, error) {
	loadResult, err := LoadMapping(dir)
	if err != nil {
		return nil, nil, err
	}
	return loadResult.Mapping, compiler.Validate(loadResult.Mapping), nil
}

