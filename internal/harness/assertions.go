package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/viewgen/internal/errlog"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Views    []ViewSummary // Generated views for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nGenerated views:\n")
	if len(e.Views) == 0 {
		fmt.Fprintf(&buf, "  (none)\n")
	}
	for i, v := range e.Views {
		fmt.Fprintf(&buf, "  [%d] %s = %s\n", i+1, v.Key(), v.Tree)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertViewTree:
		return assertViewTree(result, a)
	case AssertViewAbsent:
		return assertViewAbsent(result, a)
	case AssertViewCount:
		return assertViewCount(result, a)
	case AssertCQLContains:
		return assertCQLContains(result, a)
	case AssertErrorCode:
		return assertErrorCode(result, a)
	case AssertNoErrors:
		return assertNoErrors(result)
	case AssertStaticError:
		return assertStaticError(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertViewTree checks that the view exists and has the expected tree.
func assertViewTree(result *Result, a Assertion) error {
	key := viewKey(a.Kind, a.Extent, a.OfType)
	v, ok := result.View(a.Kind, a.Extent, a.OfType)
	if !ok {
		return &AssertionError{
			Type:     AssertViewTree,
			Expected: fmt.Sprintf("%s = %s", key, a.Tree),
			Actual:   "view not generated",
			Views:    result.Views,
		}
	}
	if v.Tree != a.Tree {
		return &AssertionError{
			Type:     AssertViewTree,
			Expected: fmt.Sprintf("%s = %s", key, a.Tree),
			Actual:   fmt.Sprintf("%s = %s", key, v.Tree),
			Views:    result.Views,
		}
	}
	return nil
}

// assertViewAbsent checks that no view was generated for the extent.
func assertViewAbsent(result *Result, a Assertion) error {
	if v, ok := result.View(a.Kind, a.Extent, a.OfType); ok {
		return &AssertionError{
			Type:     AssertViewAbsent,
			Expected: fmt.Sprintf("no %s", v.Key()),
			Actual:   fmt.Sprintf("%s = %s", v.Key(), v.Tree),
			Views:    result.Views,
		}
	}
	return nil
}

// assertViewCount checks the total number of generated views.
func assertViewCount(result *Result, a Assertion) error {
	if len(result.Views) != a.Count {
		return &AssertionError{
			Type:     AssertViewCount,
			Expected: fmt.Sprintf("%d views", a.Count),
			Actual:   fmt.Sprintf("%d views", len(result.Views)),
			Views:    result.Views,
		}
	}
	return nil
}

// assertCQLContains checks that the view's CQL contains the given text.
func assertCQLContains(result *Result, a Assertion) error {
	key := viewKey(a.Kind, a.Extent, a.OfType)
	v, ok := result.View(a.Kind, a.Extent, a.OfType)
	if !ok {
		return &AssertionError{
			Type:     AssertCQLContains,
			Expected: fmt.Sprintf("%s containing %q", key, a.Contains),
			Actual:   "view not generated",
			Views:    result.Views,
		}
	}
	if !strings.Contains(v.CQL, a.Contains) {
		return &AssertionError{
			Type:     AssertCQLContains,
			Expected: fmt.Sprintf("%s containing %q", key, a.Contains),
			Actual:   v.CQL,
			Views:    result.Views,
		}
	}
	return nil
}

// assertErrorCode checks that at least one error record has the code.
func assertErrorCode(result *Result, a Assertion) error {
	code, _ := errlog.ParseCode(a.Code)
	codes := result.Codes()
	if !slices.Contains(codes, code) {
		return &AssertionError{
			Type:     AssertErrorCode,
			Expected: fmt.Sprintf("error %d (%s)", int(code), code),
			Actual:   fmt.Sprintf("codes %v", codes),
			Views:    result.Views,
		}
	}
	return nil
}

// assertNoErrors checks that the run logged no error records and the
// mapping passed static validation.
func assertNoErrors(result *Result) error {
	if len(result.StaticErrors) > 0 {
		return &AssertionError{
			Type:     AssertNoErrors,
			Expected: "no errors",
			Actual:   result.StaticErrors[0].Error(),
			Views:    result.Views,
		}
	}
	for _, rec := range result.Records {
		if rec.Severity == errlog.SeverityError {
			return &AssertionError{
				Type:     AssertNoErrors,
				Expected: "no errors",
				Actual:   rec.String(),
				Views:    result.Views,
			}
		}
	}
	return nil
}

// assertStaticError checks that static validation reported the code.
func assertStaticError(result *Result, a Assertion) error {
	var got []string
	for _, e := range result.StaticErrors {
		if e.Code == a.Code {
			return nil
		}
		got = append(got, e.Code)
	}
	return &AssertionError{
		Type:     AssertStaticError,
		Expected: fmt.Sprintf("static error %s", a.Code),
		Actual:   fmt.Sprintf("codes %v", got),
		Views:    result.Views,
	}
}
