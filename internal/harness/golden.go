package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the result as stable text: each view with its tree and
// CQL, then the codes of logged records. No timing or hashes are included.
func Snapshot(scenarioName string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", scenarioName)
	fmt.Fprintf(&b, "mapping: %s\n", result.Mapping)
	for _, v := range result.Views {
		fmt.Fprintf(&b, "\n-- %s\n", v.Key())
		fmt.Fprintf(&b, "tree: %s\n", v.Tree)
		if v.CQL != "" {
			b.WriteString(v.CQL)
			b.WriteString("\n")
		}
	}
	for _, e := range result.StaticErrors {
		fmt.Fprintf(&b, "\n!! %s %s\n", e.Code, e.Field)
	}
	for _, rec := range result.Records {
		fmt.Fprintf(&b, "\n!! %s %d %s\n", rec.Severity, int(rec.Code), rec.Code)
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result's snapshot against a golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
