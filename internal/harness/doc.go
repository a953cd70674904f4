// Package harness provides conformance testing for mapping documents.
//
// A scenario names a CUE mapping, an optional generator config and the
// outcome expected from generating its views: tree shapes, error codes,
// CQL fragments, and optionally a golden snapshot of every view.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: employee_split
//	description: "Two fragments over one table union into one query view"
//	mapping: ../mappings/employee_split.cue
//	config:
//	  update_views: false
//	assertions:
//	  - type: view_tree
//	    kind: query
//	    extent: People
//	    tree: "c0+c1"
//	  - type: error_code
//	    code: KeyNotMappedForTable
//
// The mapping path is resolved relative to the scenario file. Config keys
// are those of the generator config file and override its defaults.
//
// # Assertion Types
//
//   - view_tree: the view of kind/extent/of_type exists with the given tree
//   - view_absent: no view of kind/extent/of_type was generated
//   - view_count: exactly count views were generated
//   - cql_contains: the view's CQL contains the given text
//   - error_code: the run logged at least one record with code
//   - no_errors: the run logged no errors
//   - static_error: the compiled mapping failed static validation with
//     code (an E1xx code); view generation is then skipped
//
// # Deterministic Testing
//
// Runs use a fake clock for metrics and a discarding logger, so the
// snapshot compared by RunWithGolden is identical across runs.
package harness
