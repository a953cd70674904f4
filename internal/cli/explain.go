package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/viewgen/internal/cell"
	"github.com/roach88/viewgen/internal/compiler"
	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/generator"
	"github.com/roach88/viewgen/internal/metadata"
	"github.com/roach88/viewgen/internal/viewgen"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Extent string
	OfType string
	Gen    GenerationFlags
}

// CellOutput describes one cell of an explained view.
type CellOutput struct {
	Number int    `json:"number"`
	Source string `json:"source,omitempty"`
	CQuery string `json:"c_query"`
	SQuery string `json:"s_query"`
}

// ExplainResult is the outcome of the explain command.
type ExplainResult struct {
	View    ViewOutput     `json:"view"`
	Cells   []CellOutput   `json:"cells"`
	Records []RecordOutput `json:"records,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <mapping-dir> --extent <name>",
		Short: "Explain how the view of one extent is built",
		Long: `Show the cells, cell tree and CQL of one extent's view.

A table extent is explained through its update view, an entity or
association set through its query view. --of-type restricts a query view
to one entity type.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Extent, "extent", "", "extent to explain (required)")
	cmd.Flags().StringVar(&opts.OfType, "of-type", "", "restrict a query view to one entity type")
	_ = cmd.MarkFlagRequired("extent")
	addGenerationFlags(cmd, &opts.Gen)
	return cmd
}

func runExplain(opts *ExplainOptions, dir string, cmd *cobra.Command) error {
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
	cfg.GenerateEsql = true

	loadResult, err := LoadMapping(dir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Error(), nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}
	m := loadResult.Mapping
	if errs := compiler.Validate(m); len(errs) > 0 {
		return outputValidationErrors(formatter, ValidationResult{Mapping: m.Name, Errors: errs})
	}

	extent := m.Schema.Extent(opts.Extent)
	if extent == nil {
		return outputValidateError(formatter, ErrCodeUnknownView, fmt.Sprintf("unknown extent %q", opts.Extent), nil)
	}
	kind := viewgen.QueryView
	if extent.Kind == metadata.Table {
		kind = viewgen.UpdateView
		if opts.OfType != "" {
			return outputValidateError(formatter, ErrCodeUnknownView, "--of-type applies to query views only", nil)
		}
	}
	if opts.OfType != "" {
		cfg.GeneratePerTypeViews = true
	}
	if kind == viewgen.UpdateView {
		cfg.GenerateUpdateViews = true
	}

	r := generator.Generate(m, cfg, generator.WithLogger(newLogger(cfg, formatter.GetErrWriter())))
	recs := extentRecords(r, extent)

	v := r.View(kind, extent.Name, opts.OfType)
	if v == nil {
		if formatter.Format != "json" {
			printRecords(formatter, recs)
		}
		return outputValidateError(formatter, ErrCodeUnknownView,
			fmt.Sprintf("no %s view generated for %s", kind, viewName(extent.Name, opts.OfType)),
			recordOutputs(recs))
	}

	result := ExplainResult{
		View: ViewOutput{
			Kind: v.Kind.String(), Extent: v.Extent, OfType: v.OfType,
			Tree: v.Tree.String(), Hash: v.Hash, CQL: v.CQL,
		},
		Cells:   cellOutputs(r.Cells, v.Tree.Cells()),
		Records: recordOutputs(recs),
	}

	if formatter.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: result})
	}

	formatter.Heading(fmt.Sprintf("%s view of %s", kind, viewName(extent.Name, opts.OfType)))
	rows := make([][]string, 0, len(result.Cells))
	for _, c := range result.Cells {
		rows = append(rows, []string{fmt.Sprintf("c%d", c.Number), c.Source, c.CQuery, c.SQuery})
	}
	if err := formatter.Table([]string{"Cell", "Fragment", "Conceptual query", "Store query"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(formatter.Writer, "\nTree: %s\n\n%s\n", result.View.Tree, result.View.CQL)
	printRecords(formatter, recs)
	return nil
}

func viewName(extent, ofType string) string {
	if ofType == "" {
		return extent
	}
	return fmt.Sprintf("%s OfType(%s)", extent, ofType)
}

// cellOutputs describes the cells with the given numbers, in number order.
func cellOutputs(cells []*cell.Cell, numbers []int) []CellOutput {
	out := []CellOutput{}
	for _, c := range cells {
		if !slices.Contains(numbers, c.Number) {
			continue
		}
		out = append(out, CellOutput{
			Number: c.Number,
			Source: c.Source(),
			CQuery: c.CQuery.String(),
			SQuery: c.SQuery.String(),
		})
	}
	slices.SortFunc(out, func(a, b CellOutput) int { return a.Number - b.Number })
	return out
}

// extentRecords returns the records logged about the cells of extent.
func extentRecords(r *generator.Results, extent *metadata.Extent) []errlog.Record {
	var numbers []int
	for _, c := range r.Cells {
		if c.CQuery.Extent == extent || c.SQuery.Extent == extent {
			numbers = append(numbers, c.Number)
		}
	}
	var out []errlog.Record
	for _, rec := range r.Log.Records() {
		if rec.Source == extent.Name || slices.ContainsFunc(rec.Cells, func(n int) bool {
			return slices.Contains(numbers, n)
		}) {
			out = append(out, rec)
		}
	}
	return out
}
