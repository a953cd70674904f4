// Package generator runs view generation end to end: cells are created
// from a mapping, partitioned into independent groups, validated, and each
// group yields update views for its tables and query views for its
// conceptual extents.
//
// Authoring problems never abort a run. They are recorded in the run's
// log and the run continues with the next view or group; Results.Err
// turns the log into one error at the boundary.
package generator

import (
	"log/slog"
	"slices"

	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/cell"
	"github.com/roach88/viewgen/internal/cqlgen"
	"github.com/roach88/viewgen/internal/cqlir"
	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
	"github.com/roach88/viewgen/internal/validator"
	"github.com/roach88/viewgen/internal/viewgen"
)

// View is one generated view.
type View struct {
	Kind   viewgen.ViewTarget
	Extent string
	OfType string

	Tree  *viewgen.Node
	Block *cqlir.View

	// CQL is empty when text generation is disabled.
	CQL string

	// Hash identifies the view's content within its mapping.
	Hash string
}

// Results is the outcome of a run. Views holds every view that could be
// generated, even when other groups failed.
type Results struct {
	Mapping     string
	MappingHash string
	Cells       []*cell.Cell
	Views       []*View
	Log         *errlog.Log
	Metrics     *viewgen.Metrics
}

// Err returns the aggregate *errlog.MappingError when any error was
// recorded.
func (r *Results) Err() error {
	return r.Log.Err()
}

// View finds a view by kind, extent and type restriction.
func (r *Results) View(kind viewgen.ViewTarget, extent, ofType string) *View {
	for _, v := range r.Views {
		if v.Kind == kind && v.Extent == extent && v.OfType == ofType {
			return v
		}
	}
	return nil
}

// Option configures a run.
type Option func(*options)

type options struct {
	logger *slog.Logger
	clock  viewgen.Clock
}

// WithLogger sets the logger of the run and every component in it.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the clock metrics are measured with.
func WithClock(c viewgen.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Generate generates the views of m.
func Generate(m *metadata.Mapping, cfg viewgen.Config, opts ...Option) *Results {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Results{
		Mapping: m.Name,
		Log:     errlog.New(o.logger),
		Metrics: viewgen.NewMetrics(o.clock),
	}
	hash, err := m.Hash()
	if err != nil {
		r.Log.Errorf(errlog.ViewGenerationFailed, nil, m.Name, "hash mapping: %v", err)
	}
	r.MappingHash = hash

	stop := r.Metrics.Start(viewgen.PhaseCellCreation)
	r.Cells = cell.NewCreator(m, r.Log, o.logger).Generate()
	stop()
	r.Metrics.Inc("cells", len(r.Cells))

	checkExtentsMapped(m, r.Cells, r.Log)

	stop = r.Metrics.Start(viewgen.PhasePartitioning)
	groups := cell.Partition(r.Cells)
	stop()
	r.Metrics.Inc("groups", len(groups))

	run := &run{mapping: m, cfg: cfg, results: r, logger: o.logger}
	for i, g := range groups {
		run.group(i, g)
	}
	o.logger.Info("views generated", "mapping", m.Name, "views", len(r.Views),
		"errors", r.Log.ErrorCount(), "metrics", r.Metrics.String())
	return r
}

// GenerateStrict is Generate that fails when any error was recorded.
func GenerateStrict(m *metadata.Mapping, cfg viewgen.Config, opts ...Option) (*Results, error) {
	r := Generate(m, cfg, opts...)
	return r, r.Err()
}

// checkExtentsMapped reports conceptual extents no cell produces.
func checkExtentsMapped(m *metadata.Mapping, cells []*cell.Cell, log *errlog.Log) {
	mapped := map[*metadata.Extent]bool{}
	for _, c := range cells {
		mapped[c.CQuery.Extent] = true
	}
	for _, e := range m.Schema.Extents() {
		if e.Kind.IsConceptual() && !mapped[e] {
			log.Errorf(errlog.MissingExtentMapping, nil, m.Name, "%s %s is not mapped", e.Kind, e.Name)
		}
	}
}

type run struct {
	mapping *metadata.Mapping
	cfg     viewgen.Config
	results *Results
	logger  *slog.Logger
}

// group generates the views of one cell group. The group's cells are
// cloned so that nothing done here leaks into other groups.
func (r *run) group(idx int, group []*cell.Cell) {
	cells := make([]*cell.Cell, len(group))
	for i, c := range group {
		cells[i] = c.Clone()
	}
	log := r.results.Log
	logger := r.logger.With("group", idx)

	if r.cfg.Validate {
		stop := r.results.Metrics.Start(viewgen.PhaseValidation)
		ok := validator.New(cells, log, logger).Validate()
		stop()
		if !ok {
			logger.Info("group failed validation", "cells", cell.Numbers(cells))
			return
		}
	}

	if r.cfg.GenerateUpdateViews {
		failed := false
		for _, t := range extentsOf(r.mapping.Schema, cells, metadata.SSide) {
			if !r.views(viewgen.UpdateView, t, cells, logger) {
				failed = true
			}
		}
		if failed {
			logger.Info("update views failed, query views skipped", "cells", cell.Numbers(cells))
			return
		}
	}
	for _, e := range extentsOf(r.mapping.Schema, cells, metadata.CSide) {
		r.views(viewgen.QueryView, e, cells, logger)
	}
}

// extentsOf returns the extents the cells map on one side, in schema
// order.
func extentsOf(s *metadata.Schema, cells []*cell.Cell, side metadata.Side) []*metadata.Extent {
	var out []*metadata.Extent
	for _, e := range s.Extents() {
		for _, c := range cells {
			if c.Query(side).Extent == e {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// views generates the view of extent and, when asked for, its per-type
// views. It reports whether every view was generated.
func (r *run) views(target viewgen.ViewTarget, extent *metadata.Extent, cells []*cell.Cell, logger *slog.Logger) bool {
	log := r.results.Log
	before := log.ErrorCount()
	fail := func(err error) bool {
		if log.ErrorCount() == before {
			log.Errorf(errlog.ViewGenerationFailed, cell.Numbers(cells), extent.Name,
				"%s view of %s: %v", target, extent.Name, err)
		}
		logger.Debug("view failed", "target", target.String(), "extent", extent.Name, "error", err)
		return false
	}

	ctx, err := viewgen.NewContext(target, extent, cells, r.mapping.Schema, r.cfg, log,
		viewgen.WithLogger(logger), viewgen.WithMetrics(r.results.Metrics))
	if err != nil {
		return fail(err)
	}
	if err := r.emit(ctx, boolexpr.True, nil); err != nil {
		return fail(err)
	}

	if target != viewgen.QueryView || !r.cfg.GeneratePerTypeViews ||
		extent.Kind != metadata.EntitySet || !extent.Type.HasHierarchy() {
		return true
	}
	for _, t := range extent.Type.ConcreteTypes() {
		domain := cell.TypeCondition(extent, t.ConcreteTypes())
		if err := r.emit(ctx, domain, t); err != nil {
			return fail(err)
		}
	}
	return true
}

// emit rewrites the context over domain and lowers the tree into a view.
// A domain no cell contributes to yields no view.
func (r *run) emit(ctx *viewgen.Context, domain boolexpr.Expr, ofType *metadata.EntityType) error {
	tree, err := ctx.Rewrite(domain)
	if err != nil || tree == nil {
		return err
	}
	var opts []cqlgen.Option
	if ofType != nil {
		opts = append(opts, cqlgen.OfType(ofType))
	}
	q, err := cqlgen.New(ctx, tree, opts...).Generate()
	if err != nil {
		return err
	}

	v := &View{
		Kind:   ctx.Target(),
		Extent: q.Extent,
		OfType: q.OfType,
		Tree:   tree,
		Block:  q.Block,
	}
	if r.cfg.GenerateEsql {
		v.CQL = q.CQL
	}
	v.Hash, err = ir.ViewHash(r.results.MappingHash, v.Kind.String(), v.Extent, v.OfType, q.CQL)
	if err != nil {
		return err
	}
	r.results.Views = append(r.results.Views, v)
	r.results.Metrics.Inc("views", 1)
	return nil
}

// Extents lists the extents that received at least one view, in the
// order views were generated.
func (r *Results) Extents() []string {
	var out []string
	for _, v := range r.Views {
		if !slices.Contains(out, v.Extent) {
			out = append(out, v.Extent)
		}
	}
	return out
}
