package viewgen

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Clock supplies the time for phase measurements.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// Phase names a timed stage of a generation run.
type Phase string

const (
	PhaseCellCreation   Phase = "cell_creation"
	PhasePartitioning   Phase = "partitioning"
	PhaseValidation     Phase = "validation"
	PhaseViewGeneration Phase = "view_generation"
	PhaseSimplification Phase = "simplification"
	PhaseCqlGeneration  Phase = "cql_generation"
)

var phaseOrder = []Phase{
	PhaseCellCreation, PhasePartitioning, PhaseValidation,
	PhaseViewGeneration, PhaseSimplification, PhaseCqlGeneration,
}

// Metrics accumulates per-phase durations and counters for one run. It is
// owned by the run and not safe for concurrent use.
type Metrics struct {
	clock     Clock
	durations map[Phase]time.Duration
	counts    map[string]int
}

// NewMetrics returns empty metrics reading time from clock (SystemClock
// when nil).
func NewMetrics(clock Clock) *Metrics {
	if clock == nil {
		clock = SystemClock
	}
	return &Metrics{clock: clock, durations: map[Phase]time.Duration{}, counts: map[string]int{}}
}

// Start begins timing p. Call the returned function to stop.
//
//	defer m.Start(PhaseValidation)()
func (m *Metrics) Start(p Phase) func() {
	begin := m.clock.Now()
	return func() {
		m.durations[p] += m.clock.Now().Sub(begin)
	}
}

// Duration returns the accumulated time spent in p.
func (m *Metrics) Duration(p Phase) time.Duration {
	return m.durations[p]
}

// Total is the sum of all phase durations.
func (m *Metrics) Total() time.Duration {
	var t time.Duration
	for _, d := range m.durations {
		t += d
	}
	return t
}

// Durations returns a copy of the per-phase durations.
func (m *Metrics) Durations() map[Phase]time.Duration {
	return maps.Clone(m.durations)
}

// Counts returns a copy of the named counters.
func (m *Metrics) Counts() map[string]int {
	return maps.Clone(m.counts)
}

// Inc adds n to a named counter.
func (m *Metrics) Inc(name string, n int) {
	m.counts[name] += n
}

// Count returns a named counter.
func (m *Metrics) Count(name string) int {
	return m.counts[name]
}

func (m *Metrics) String() string {
	var parts []string
	for _, p := range phaseOrder {
		if d, ok := m.durations[p]; ok {
			parts = append(parts, fmt.Sprintf("%s=%s", p, d))
		}
	}
	return strings.Join(parts, " ")
}
