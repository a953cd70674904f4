package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/viewgen"
)

// Scenario defines a conformance test scenario: a mapping, the config to
// generate its views with, and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mapping is the path to the CUE mapping document.
	Mapping string `yaml:"mapping"`

	// Config overrides generator config defaults, with the keys of the
	// config file.
	Config map[string]any `yaml:"config,omitempty"`

	// Assertions validate the generated views and the error log.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates one aspect of a run.
type Assertion struct {
	// Type specifies the assertion type (see the Assert constants).
	Type string `yaml:"type"`

	// Kind is "query" or "update" (view assertions).
	Kind string `yaml:"kind,omitempty"`

	// Extent names the view's extent (view assertions).
	Extent string `yaml:"extent,omitempty"`

	// OfType restricts a query view to one entity type (view assertions).
	OfType string `yaml:"of_type,omitempty"`

	// Tree is the expected cell tree (view_tree).
	Tree string `yaml:"tree,omitempty"`

	// Contains is expected CQL text (cql_contains).
	Contains string `yaml:"contains,omitempty"`

	// Code is an error code name or number (error_code), or an E1xx code
	// (static_error).
	Code string `yaml:"code,omitempty"`

	// Count is the expected number of views (view_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertViewTree    = "view_tree"
	AssertViewAbsent  = "view_absent"
	AssertViewCount   = "view_count"
	AssertCQLContains = "cql_contains"
	AssertErrorCode   = "error_code"
	AssertNoErrors    = "no_errors"
	AssertStaticError = "static_error"
)

// LoadScenario reads and parses a scenario YAML file, resolving the
// mapping path relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the mapping path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the mapping path BEFORE validation
	if scenario.Mapping != "" && !filepath.IsAbs(scenario.Mapping) && basePath != "" {
		scenario.Mapping = filepath.Join(basePath, scenario.Mapping)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file of a directory, sorted by name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// GeneratorConfig returns the config the scenario runs with.
func (s *Scenario) GeneratorConfig() (viewgen.Config, error) {
	if len(s.Config) == 0 {
		return viewgen.DefaultConfig(), nil
	}
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return viewgen.Config{}, fmt.Errorf("config: %w", err)
	}
	return viewgen.ParseConfig(data)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Mapping == "" {
		return fmt.Errorf("mapping is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := os.Stat(s.Mapping); os.IsNotExist(err) {
		return fmt.Errorf("mapping file not found: %s", s.Mapping)
	}
	if _, err := s.GeneratorConfig(); err != nil {
		return err
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertViewTree, AssertViewAbsent, AssertCQLContains:
		if a.Kind != "query" && a.Kind != "update" {
			return fmt.Errorf("assertions[%d]: kind must be query or update for %s", index, a.Type)
		}
		if a.Extent == "" {
			return fmt.Errorf("assertions[%d]: extent is required for %s", index, a.Type)
		}
		if a.OfType != "" && a.Kind != "query" {
			return fmt.Errorf("assertions[%d]: of_type applies to query views only", index)
		}
		if a.Type == AssertViewTree && a.Tree == "" {
			return fmt.Errorf("assertions[%d]: tree is required for view_tree", index)
		}
		if a.Type == AssertCQLContains && a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for cql_contains", index)
		}
	case AssertViewCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for view_count", index)
		}
	case AssertErrorCode:
		if _, ok := errlog.ParseCode(a.Code); !ok {
			return fmt.Errorf("assertions[%d]: unknown error code %q", index, a.Code)
		}
	case AssertStaticError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for static_error", index)
		}
	case AssertNoErrors:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
