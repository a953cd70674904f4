package harness

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/viewgen/internal/compiler"
	"github.com/roach88/viewgen/internal/generator"
	"github.com/roach88/viewgen/internal/metadata"
	"github.com/roach88/viewgen/internal/testutil"
)

// clockStart is the fake clock's start time for every scenario.
var clockStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and no log output.
type Harness struct {
	clock  *testutil.FakeClock
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Compile the CUE mapping document
// 2. Validate it statically; stop here when it is invalid
// 3. Generate views with the scenario's config
// 4. Evaluate assertions against the result
//
// An error is returned only when the scenario cannot be executed: the
// mapping does not compile or the config is invalid. Failed assertions
// are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	h := &Harness{
		clock:  testutil.NewFakeClock(clockStart, time.Millisecond),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h.run(scenario)
}

func (h *Harness) run(scenario *Scenario) (*Result, error) {
	cfg, err := scenario.GeneratorConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	m, err := CompileFile(scenario.Mapping)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.Mapping = m.Name
	result.StaticErrors = compiler.Validate(m)

	if len(result.StaticErrors) == 0 {
		r := generator.Generate(m, cfg,
			generator.WithLogger(h.logger),
			generator.WithClock(h.clock),
		)
		result.Generation = r
		result.Records = r.Log.Records()
		for _, v := range r.Views {
			result.Views = append(result.Views, ViewSummary{
				Kind:   v.Kind.String(),
				Extent: v.Extent,
				OfType: v.OfType,
				Tree:   v.Tree.String(),
				CQL:    v.CQL,
			})
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	h.logger.Info("scenario executed",
		"scenario", scenario.Name,
		"views", len(result.Views),
		"pass", result.Pass,
	)
	return result, nil
}

// CompileFile compiles a single CUE mapping document.
func CompileFile(path string) (*metadata.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping: %w", err)
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	m, err := compiler.CompileMapping(v)
	if err != nil {
		return nil, fmt.Errorf("failed to compile mapping %s: %w", path, err)
	}
	return m, nil
}
