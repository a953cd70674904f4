package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/viewgen"
)

// GenerationFlags override the config file for one command.
type GenerationFlags struct {
	PerType       bool
	NoValidate    bool
	NoUpdateViews bool
	NoEsql        bool
	TraceLevel    int
}

func addGenerationFlags(cmd *cobra.Command, f *GenerationFlags) {
	cmd.Flags().BoolVar(&f.PerType, "per-type", false, "generate one query view per concrete entity type")
	cmd.Flags().BoolVar(&f.NoValidate, "no-validate", false, "skip cell group validation")
	cmd.Flags().BoolVar(&f.NoUpdateViews, "no-update-views", false, "generate query views only")
	cmd.Flags().BoolVar(&f.NoEsql, "no-esql", false, "skip CQL text, keep command trees")
	cmd.Flags().IntVar(&f.TraceLevel, "trace-level", 0, "log detail: 0 warn, 1 info, 2 debug")
}

// resolveConfig reads the config file and applies the flags the user set.
func resolveConfig(opts *RootOptions, cmd *cobra.Command, f *GenerationFlags) (viewgen.Config, error) {
	cfg, err := viewgen.LoadConfig(opts.Config)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("per-type") {
		cfg.GeneratePerTypeViews = f.PerType
	}
	if flags.Changed("no-validate") {
		cfg.Validate = !f.NoValidate
	}
	if flags.Changed("no-update-views") {
		cfg.GenerateUpdateViews = !f.NoUpdateViews
	}
	if flags.Changed("no-esql") {
		cfg.GenerateEsql = !f.NoEsql
	}
	if flags.Changed("trace-level") {
		cfg.TraceLevel = f.TraceLevel
	}
	if opts.Verbose && cfg.TraceLevel < 1 {
		cfg.TraceLevel = 1
	}
	return cfg, nil
}

// newLogger returns a text logger at the config's trace level.
func newLogger(cfg viewgen.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}

// RecordOutput is the JSON form of an error log record.
type RecordOutput struct {
	Code     int    `json:"code"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Cells    []int  `json:"cells,omitempty"`
	Source   string `json:"source,omitempty"`
}

func recordOutputs(recs []errlog.Record) []RecordOutput {
	out := make([]RecordOutput, 0, len(recs))
	for _, r := range recs {
		out = append(out, RecordOutput{
			Code:     int(r.Code),
			Name:     r.Code.String(),
			Severity: r.Severity.String(),
			Message:  r.Message,
			Cells:    r.Cells,
			Source:   r.Source,
		})
	}
	return out
}

// printRecords prints log records, errors red and warnings yellow.
func printRecords(f *OutputFormatter, recs []errlog.Record) {
	for _, r := range recs {
		if r.Severity == errlog.SeverityError {
			f.Fail("%s", r.String())
		} else {
			f.Warn("%s", r.String())
		}
	}
}
