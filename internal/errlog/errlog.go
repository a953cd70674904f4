// Package errlog accumulates mapping-authoring errors found during view
// generation. Records are collected, never thrown; a driver converts the
// log into one aggregate MappingError at the boundary where partial
// success cannot be tolerated.
package errlog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
)

// Code is a stable numeric error code.
type Code int

const (
	DisjointConstraintViolation                     Code = 3001
	KeyConstraintViolation                          Code = 3002
	KeyConstraintUpdateViolation                    Code = 3003
	KeyNotMappedForCSideExtent                      Code = 3004
	KeyNotMappedForTable                            Code = 3005
	DuplicateCPropertiesMapped                      Code = 3006
	NotNullNoProjectedSlot                          Code = 3007
	MultipleFragmentsBetweenCandSExtentWithDistinct Code = 3008
	ImpossibleCondition                             Code = 3009
	MissingExtentMapping                            Code = 3010
	ViewGenerationFailed                            Code = 3011
	ConditionOnUnmappedMember                       Code = 3012
	InvalidMappingReference                         Code = 3013
)

var codeNames = map[Code]string{
	DisjointConstraintViolation:                     "DisjointConstraintViolation",
	KeyConstraintViolation:                          "KeyConstraintViolation",
	KeyConstraintUpdateViolation:                    "KeyConstraintUpdateViolation",
	KeyNotMappedForCSideExtent:                      "KeyNotMappedForCSideExtent",
	KeyNotMappedForTable:                            "KeyNotMappedForTable",
	DuplicateCPropertiesMapped:                      "DuplicateCPropertiesMapped",
	NotNullNoProjectedSlot:                          "NotNullNoProjectedSlot",
	MultipleFragmentsBetweenCandSExtentWithDistinct: "MultipleFragmentsBetweenCandSExtentWithDistinct",
	ImpossibleCondition:                             "ImpossibleCondition",
	MissingExtentMapping:                            "MissingExtentMapping",
	ViewGenerationFailed:                            "ViewGenerationFailed",
	ConditionOnUnmappedMember:                       "ConditionOnUnmappedMember",
	InvalidMappingReference:                         "InvalidMappingReference",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "Code(" + strconv.Itoa(int(c)) + ")"
}

// ParseCode resolves a code by name or number.
func ParseCode(s string) (Code, bool) {
	for c, n := range codeNames {
		if n == s {
			return c, true
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := codeNames[Code(n)]; ok {
			return Code(n), true
		}
	}
	return 0, false
}

// Severity distinguishes errors from warnings.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Record is one logged failure.
type Record struct {
	Severity Severity
	Code     Code
	Message  string

	// Cells are the numbers of the offending cells.
	Cells []int

	// Source locates the offending fragments in the mapping document.
	Source string
}

func (r Record) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %d (%s): %s", r.Severity, int(r.Code), r.Code, r.Message)
	if len(r.Cells) > 0 {
		parts := make([]string, len(r.Cells))
		for i, c := range r.Cells {
			parts[i] = strconv.Itoa(c)
		}
		sb.WriteString(" [cells " + strings.Join(parts, ", ") + "]")
	}
	if r.Source != "" {
		sb.WriteString(" at " + r.Source)
	}
	return sb.String()
}

// Log is an append-only list of records.
type Log struct {
	records []Record
	logger  *slog.Logger
}

// New returns an empty log. Each added record is also reported to logger;
// a nil logger uses slog.Default().
func New(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Add appends a record.
func (l *Log) Add(r Record) {
	r.Cells = slices.Clone(r.Cells)
	slices.Sort(r.Cells)
	r.Cells = slices.Compact(r.Cells)
	l.records = append(l.records, r)
	level := slog.LevelWarn
	if r.Severity == SeverityError {
		level = slog.LevelError
	}
	l.logger.Log(context.Background(), level, "mapping problem",
		"code", int(r.Code),
		"name", r.Code.String(),
		"cells", r.Cells,
		"message", r.Message,
	)
}

// Errorf appends an error record.
func (l *Log) Errorf(code Code, cells []int, source string, format string, args ...any) {
	l.Add(Record{Severity: SeverityError, Code: code, Message: fmt.Sprintf(format, args...), Cells: cells, Source: source})
}

// Warnf appends a warning record.
func (l *Log) Warnf(code Code, cells []int, source string, format string, args ...any) {
	l.Add(Record{Severity: SeverityWarning, Code: code, Message: fmt.Sprintf(format, args...), Cells: cells, Source: source})
}

// Merge appends every record of other without re-reporting them.
func (l *Log) Merge(other *Log) {
	if other == nil {
		return
	}
	l.records = append(l.records, other.records...)
}

// Records returns all records in insertion order.
func (l *Log) Records() []Record {
	return l.records
}

// Count is the number of records.
func (l *Log) Count() int {
	return len(l.records)
}

// ErrorCount is the number of error-severity records.
func (l *Log) ErrorCount() int {
	n := 0
	for _, r := range l.records {
		if r.Severity == SeverityError {
			n++
		}
	}
	return n
}

// HasErrors reports whether any error-severity record exists.
func (l *Log) HasErrors() bool {
	return l.ErrorCount() > 0
}

// Codes returns the codes of all records in insertion order.
func (l *Log) Codes() []Code {
	out := make([]Code, len(l.records))
	for i, r := range l.records {
		out[i] = r.Code
	}
	return out
}

// ByCode returns the records with code c.
func (l *Log) ByCode(c Code) []Record {
	var out []Record
	for _, r := range l.records {
		if r.Code == c {
			out = append(out, r)
		}
	}
	return out
}

// MatchKnownErrors reports whether a problem involving all of cells has
// already been recorded. Callers use it to avoid reporting the same
// inconsistency twice under different codes.
func (l *Log) MatchKnownErrors(cells ...int) bool {
	for _, r := range l.records {
		all := true
		for _, c := range cells {
			if !slices.Contains(r.Cells, c) {
				all = false
				break
			}
		}
		if all && len(cells) > 0 {
			return true
		}
	}
	return false
}

// Err returns nil when the log has no error records, otherwise a
// *MappingError listing every record.
func (l *Log) Err() error {
	if !l.HasErrors() {
		return nil
	}
	return &MappingError{Records: slices.Clone(l.records)}
}

// MappingError is the aggregate failure of a generation run.
type MappingError struct {
	Records []Record
}

func (e *MappingError) Error() string {
	var sb strings.Builder
	n := 0
	for _, r := range e.Records {
		if r.Severity == SeverityError {
			n++
		}
	}
	fmt.Fprintf(&sb, "mapping is invalid: %d error(s)", n)
	for _, r := range e.Records {
		sb.WriteString("\n  ")
		sb.WriteString(r.String())
	}
	return sb.String()
}

// Has reports whether the error includes a record with code c.
func (e *MappingError) Has(c Code) bool {
	for _, r := range e.Records {
		if r.Code == c {
			return true
		}
	}
	return false
}
