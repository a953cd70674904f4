package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/viewgen/internal/compiler"
	"github.com/roach88/viewgen/internal/generator"
	"github.com/roach88/viewgen/internal/store"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Output string // CQL output file
	DB     string // run database
	Gen    GenerationFlags
}

// ViewOutput is the JSON form of a generated view.
type ViewOutput struct {
	Kind   string `json:"kind"`
	Extent string `json:"extent"`
	OfType string `json:"of_type,omitempty"`
	Tree   string `json:"tree"`
	Hash   string `json:"hash"`
	CQL    string `json:"cql,omitempty"`
}

// GenerateResult is the outcome of the generate command.
type GenerateResult struct {
	Mapping     string         `json:"mapping"`
	MappingHash string         `json:"mapping_hash"`
	RunID       string         `json:"run_id,omitempty"`
	Views       []ViewOutput   `json:"views"`
	Errors      []RecordOutput `json:"errors,omitempty"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate <mapping-dir>",
		Short: "Generate query and update views",
		Long: `Generate the views of a CUE mapping.

Update views produce each table's rows from conceptual extents; query
views reconstruct each conceptual extent from tables. The mapping is
validated first; view generation errors are reported with their codes
and do not stop independent parts of the mapping.

Exit codes:
  0 - All views generated
  1 - Invalid mapping or view generation errors
  2 - Command error (invalid paths, database errors, etc.)

Examples:
  viewgen generate ./mapping
  viewgen generate ./mapping -o views.cql
  viewgen generate ./mapping --db runs.db --per-type`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write CQL views to file")
	cmd.Flags().StringVar(&opts.DB, "db", "", "record the run in a SQLite database")
	addGenerationFlags(cmd, &opts.Gen)
	return cmd
}

func runGenerate(opts *GenerateOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := resolveConfig(opts.RootOptions, cmd, &opts.Gen)
	if err != nil {
		return outputValidateError(formatter, ErrCodeConfig, err.Error(), nil)
	}

	loadResult, err := LoadMapping(dir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Error(), nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}
	m := loadResult.Mapping
	formatter.VerboseLog("Loaded mapping %s from %d CUE file(s)", m.Name, loadResult.FileCount)

	if errs := compiler.Validate(m); len(errs) > 0 {
		return outputValidationErrors(formatter, ValidationResult{Mapping: m.Name, Errors: errs})
	}
	warnings := compiler.AnalyzeCycles(m.Schema)

	r := generator.Generate(m, cfg, generator.WithLogger(newLogger(cfg, formatter.GetErrWriter())))
	formatter.VerboseLog("Metrics: %s", r.Metrics)

	result := GenerateResult{
		Mapping:     r.Mapping,
		MappingHash: r.MappingHash,
		Views:       make([]ViewOutput, 0, len(r.Views)),
		Errors:      recordOutputs(r.Log.Records()),
	}
	for _, v := range r.Views {
		result.Views = append(result.Views, ViewOutput{
			Kind:   v.Kind.String(),
			Extent: v.Extent,
			OfType: v.OfType,
			Tree:   v.Tree.String(),
			Hash:   v.Hash,
			CQL:    v.CQL,
		})
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(RenderViews(r)), 0o644); err != nil {
			return outputValidateError(formatter, ErrCodeWriteFailed, fmt.Sprintf("failed to write output: %v", err), nil)
		}
		formatter.VerboseLog("Wrote %d view(s) to %s", len(r.Views), opts.Output)
	}

	if opts.DB != "" {
		st, err := store.Open(opts.DB)
		if err != nil {
			return outputValidateError(formatter, ErrCodeStoreFailed, err.Error(), nil)
		}
		defer st.Close()
		result.RunID, err = st.WriteRun(context.Background(), r, cfg)
		if err != nil {
			return outputValidateError(formatter, ErrCodeStoreFailed, err.Error(), nil)
		}
	}

	if formatter.Format == "json" {
		return outputGenerateJSON(formatter, result, r.Log.ErrorCount())
	}
	return outputGenerateText(formatter, result, r, warnings)
}

// RenderViews renders every view as a CQL script, one commented block per
// view. Views without text contribute their cell tree.
func RenderViews(r *generator.Results) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- mapping %s (%s)\n", r.Mapping, r.MappingHash)
	for _, v := range r.Views {
		fmt.Fprintf(&sb, "\n-- %s view of %s", v.Kind, v.Extent)
		if v.OfType != "" {
			fmt.Fprintf(&sb, " OfType(%s)", v.OfType)
		}
		fmt.Fprintf(&sb, "\n-- tree: %s\n", v.Tree)
		if v.CQL != "" {
			sb.WriteString(v.CQL)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func outputGenerateJSON(formatter *OutputFormatter, result GenerateResult, errorCount int) error {
	response := CLIResponse{Status: "ok", Data: result, RunID: result.RunID}
	if errorCount > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeViewgen,
			Message: fmt.Sprintf("view generation failed with %d error(s)", errorCount),
		}
	}
	if err := formatter.JSON(response); err != nil {
		return err
	}
	if errorCount > 0 {
		return NewExitError(ExitFailure, response.Error.Message)
	}
	return nil
}

func outputGenerateText(formatter *OutputFormatter, result GenerateResult, r *generator.Results, warnings []compiler.CycleWarning) error {
	printCycleWarnings(formatter, warnings)

	if len(result.Views) > 0 {
		formatter.Heading(fmt.Sprintf("Views of %s", result.Mapping))
		rows := make([][]string, 0, len(result.Views))
		for _, v := range result.Views {
			rows = append(rows, []string{v.Kind, v.Extent, v.OfType, v.Tree, shortHash(v.Hash)})
		}
		if err := formatter.Table([]string{"Kind", "Extent", "OfType", "Tree", "Hash"}, rows); err != nil {
			return err
		}
	}
	if formatter.Verbose {
		for _, v := range r.Views {
			if v.CQL != "" {
				fmt.Fprintf(formatter.Writer, "\n%s\n", v.CQL)
			}
		}
	}
	if result.RunID != "" {
		fmt.Fprintf(formatter.Writer, "\nRun: %s\n", result.RunID)
	}

	printRecords(formatter, r.Log.Records())
	if n := r.Log.ErrorCount(); n > 0 {
		formatter.Fail("%d view(s) generated, %d error(s)", len(result.Views), n)
		return NewExitError(ExitFailure, fmt.Sprintf("view generation failed with %d error(s)", n))
	}
	formatter.Pass("%d view(s) generated", len(result.Views))
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
