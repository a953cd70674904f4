package harness

import (
	"github.com/roach88/viewgen/internal/compiler"
	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/generator"
)

// ViewSummary is the observable outcome of one generated view.
type ViewSummary struct {
	Kind   string `json:"kind"`
	Extent string `json:"extent"`
	OfType string `json:"of_type,omitempty"`
	Tree   string `json:"tree"`
	CQL    string `json:"cql,omitempty"`
}

// Key identifies the view within a run.
func (v ViewSummary) Key() string {
	return viewKey(v.Kind, v.Extent, v.OfType)
}

func viewKey(kind, extent, ofType string) string {
	if ofType == "" {
		return kind + " " + extent
	}
	return kind + " " + extent + " OfType(" + ofType + ")"
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Mapping is the name of the compiled mapping.
	Mapping string `json:"mapping"`

	// Views lists the generated views in generation order.
	Views []ViewSummary `json:"views"`

	// Records are the error log of the run.
	Records []errlog.Record `json:"-"`

	// StaticErrors are the static validation errors of the mapping. When
	// present no views were generated.
	StaticErrors []compiler.ValidationError `json:"static_errors,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Generation is the full run, nil when static validation failed.
	Generation *generator.Results `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Views:  []ViewSummary{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// View finds a view by kind, extent and type restriction.
func (r *Result) View(kind, extent, ofType string) (ViewSummary, bool) {
	key := viewKey(kind, extent, ofType)
	for _, v := range r.Views {
		if v.Key() == key {
			return v, true
		}
	}
	return ViewSummary{}, false
}

// Codes lists the distinct codes of error records, in first-logged order.
func (r *Result) Codes() []errlog.Code {
	var out []errlog.Code
	seen := map[errlog.Code]bool{}
	for _, rec := range r.Records {
		if rec.Severity == errlog.SeverityError && !seen[rec.Code] {
			seen[rec.Code] = true
			out = append(out, rec.Code)
		}
	}
	return out
}
