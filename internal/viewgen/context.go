package viewgen

import (
	"log/slog"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/cell"
	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
)

// ViewTarget is the direction of a view.
type ViewTarget int

const (
	// QueryView reconstructs a conceptual extent from tables.
	QueryView ViewTarget = iota
	// UpdateView produces a table's rows from conceptual extents.
	UpdateView
)

func (t ViewTarget) String() string {
	if t == UpdateView {
		return "update"
	}
	return "query"
}

// roleEntityVar names the variable whose value is the entity set a row of
// an update view comes from.
const roleEntityVar = "role:$entity"

// Context holds everything needed to build the views of one extent: the
// slot map, the wrappers of the cells producing the extent, the knowledge
// of both sides and the memo of rewritings.
type Context struct {
	target  ViewTarget
	extent  *metadata.Extent
	schema  *metadata.Schema
	cfg     Config
	log     *errlog.Log
	logger  *slog.Logger
	metrics *Metrics

	members  []*cell.MemberPath
	cells    []*cell.Cell
	wrappers []*LeftCellWrapper

	left  *boolexpr.Processor
	right *boolexpr.Processor

	rewritings map[string]*Node
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithLogger sets the context's logger.
func WithLogger(l *slog.Logger) ContextOption {
	return func(c *Context) { c.logger = l }
}

// WithMetrics sets the metrics phases are charged to.
func WithMetrics(m *Metrics) ContextOption {
	return func(c *Context) { c.metrics = m }
}

// NewContext builds the context for the target view of extent over a cell
// group. Cells whose left query does not range over extent are ignored.
// Cells with an unsatisfiable left domain are dropped with an
// ImpossibleCondition warning.
func NewContext(
	target ViewTarget,
	extent *metadata.Extent,
	cells []*cell.Cell,
	schema *metadata.Schema,
	cfg Config,
	log *errlog.Log,
	opts ...ContextOption,
) (*Context, error) {
	if (target == QueryView) != extent.Kind.IsConceptual() {
		return nil, errors.AssertionFailedf("%s view requested for %s extent %s", target, extent.Kind, extent.Name)
	}
	c := &Context{
		target:     target,
		extent:     extent,
		schema:     schema,
		cfg:        cfg,
		log:        log,
		logger:     slog.Default(),
		cells:      cells,
		members:    cell.AllMembers(extent),
		rewritings: map[string]*Node{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	c.left = boolexpr.NewProcessor(c.leftKB())
	c.right = boolexpr.NewProcessor(c.rightKB())

	for _, cl := range cells {
		lq, rq := c.sides(cl)
		if lq.Extent != extent {
			continue
		}
		w := c.wrap(cl, lq, rq)
		if !c.left.IsSatisfiable(w.Domain.Condition) {
			log.Warnf(errlog.ImpossibleCondition, []int{cl.Number}, cl.Source(),
				"condition of %s can never hold; the fragment contributes no rows to %s", cl.Fragment, extent.Name)
			continue
		}
		c.wrappers = append(c.wrappers, w)
	}
	c.logger.Debug("view context built", "target", target.String(), "extent", extent.Name,
		"members", len(c.members), "wrappers", len(c.wrappers),
		"left_facts", c.left.KB().Len(), "right_facts", c.right.KB().Len())
	return c, nil
}

// Target is the view direction.
func (c *Context) Target() ViewTarget { return c.target }

// Extent is the extent the view produces.
func (c *Context) Extent() *metadata.Extent { return c.extent }

// Schema is the mapping's schema.
func (c *Context) Schema() *metadata.Schema { return c.schema }

// Config is the run configuration.
func (c *Context) Config() Config { return c.cfg }

// Log is the run's error log.
func (c *Context) Log() *errlog.Log { return c.log }

// Logger is the context's logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Metrics are the run's metrics.
func (c *Context) Metrics() *Metrics { return c.metrics }

// Members is the slot map: slot i of every aligned query is member i.
func (c *Context) Members() []*cell.MemberPath { return c.members }

// Wrappers returns the wrappers of the cells producing the extent.
func (c *Context) Wrappers() []*LeftCellWrapper { return c.wrappers }

// Cells returns every cell of the group.
func (c *Context) Cells() []*cell.Cell { return c.cells }

// Wrapper returns the single-cell wrapper of cell n, or nil.
func (c *Context) Wrapper(n int) *LeftCellWrapper {
	for _, w := range c.wrappers {
		if len(w.Cells) == 1 && w.Cells[0].Number == n {
			return w
		}
	}
	return nil
}

// LeftProcessor reasons about the view's extent.
func (c *Context) LeftProcessor() *boolexpr.Processor { return c.left }

// RightProcessor reasons about the extents the view reads.
func (c *Context) RightProcessor() *boolexpr.Processor { return c.right }

// sides returns the cell's queries as (left, right) for the target.
func (c *Context) sides(cl *cell.Cell) (*cell.Query, *cell.Query) {
	if c.target == QueryView {
		return cl.CQuery, cl.SQuery
	}
	return cl.SQuery, cl.CQuery
}

func (c *Context) wrap(cl *cell.Cell, lq, rq *cell.Query) *LeftCellWrapper {
	left, right := align(c.members, lq, rq)
	attrs := left.Attributes()
	return &LeftCellWrapper{
		Attributes: attrs,
		Domain: boolexpr.FragmentQuery{
			Label:      strconv.Itoa(cl.Number),
			Attributes: attrs,
			Condition:  lq.Where,
		},
		RightDomain: boolexpr.NewAnd(c.role(rq.Extent), rq.Where),
		Left:        left,
		Right:       right,
		Cells:       []*cell.Cell{cl},
	}
}

// role is the literal "this row is present in e" on the read side. Tables
// are independent of each other. Entity sets exclude each other; an
// association set is independent of the entity sets.
func (c *Context) role(e *metadata.Extent) boolexpr.Expr {
	if e.Kind == metadata.EntitySet {
		return boolexpr.Eq(c.entityRoleVar(), ir.String(e.Name))
	}
	return boolexpr.Eq(boolexpr.NewBoolVar("role:"+e.Name, false), ir.Bool(true))
}

func (c *Context) entityRoleVar() *boolexpr.Var {
	v := &boolexpr.Var{Name: roleEntityVar}
	for _, e := range c.schema.Extents() {
		if e.Kind == metadata.EntitySet {
			v.Domain = append(v.Domain, ir.String(e.Name))
		}
	}
	return v
}

// leftKB holds the facts about the view's extent. For an entity set with a
// hierarchy, a property declared below the set's type is non-null only for
// rows of the declaring type and its descendants, and always non-null for
// them when the property is not nullable.
func (c *Context) leftKB() *boolexpr.KB {
	kb := boolexpr.NewKB()
	e := c.extent
	if e.Kind != metadata.EntitySet || !e.Type.HasHierarchy() {
		return kb
	}
	for _, t := range e.Type.Descendants() {
		if t == e.Type {
			continue
		}
		typeCond := cell.TypeCondition(e, t.Descendants())
		for _, p := range t.Properties {
			v := cell.MustMemberPath(e, p.Name).Var()
			kb.AddImplication(boolexpr.IsNotNull(v), typeCond)
			if !p.Nullable {
				kb.AddImplication(typeCond, boolexpr.IsNotNull(v))
			}
		}
	}
	return kb
}

// rightKB holds the facts about the extents the view reads. For query
// views a foreign key over the child table's primary key means every child
// row has a parent row. For update views an association set keyed by one
// end only relates entities of that end's set.
func (c *Context) rightKB() *boolexpr.KB {
	kb := boolexpr.NewKB()
	for _, e := range c.schema.Extents() {
		switch {
		case c.target == QueryView && e.Kind == metadata.Table:
			for _, fk := range e.ForeignKeys {
				if fk.IsOverPrimaryKeys() {
					kb.AddImplication(c.role(fk.Child), c.role(fk.Parent))
				}
			}
		case c.target == UpdateView && e.Kind == metadata.AssociationSet:
			var many []*metadata.AssociationEnd
			for _, end := range e.Ends {
				if end.Many {
					many = append(many, end)
				}
			}
			if len(many) == 1 {
				kb.AddImplication(c.role(e), c.role(many[0].Set))
			}
		}
	}
	return kb
}

// Rewrite returns the simplified cell tree producing the rows of the
// extent that satisfy domain, building it on first request. Results are
// memoized for the life of the context. A nil tree means no cell
// contributes to domain.
func (c *Context) Rewrite(domain boolexpr.Expr) (*Node, error) {
	key := domain.String()
	if n, ok := c.rewritings[key]; ok {
		return n, nil
	}

	var used []*LeftCellWrapper
	var doms []boolexpr.Expr
	for _, w := range c.wrappers {
		if c.left.IsSatisfiable(boolexpr.NewAnd(w.Domain.Condition, domain)) {
			used = append(used, w)
			doms = append(doms, w.Domain.Condition)
		}
	}
	if len(used) == 0 {
		c.rewritings[key] = nil
		return nil, nil
	}
	active := boolexpr.NewAnd(domain, boolexpr.NewOr(doms...))

	stop := c.metrics.Start(PhaseViewGeneration)
	tree, err := NewBasicViewGenerator(c, used, active).CreateViewExpression()
	stop()
	if err != nil {
		return nil, err
	}

	stop = c.metrics.Start(PhaseSimplification)
	tree, err = MergeNodes(c, tree)
	stop()
	if err != nil {
		return nil, err
	}
	c.logger.Debug("rewriting built", "extent", c.extent.Name, "domain", key, "tree", tree.String())
	c.rewritings[key] = tree
	return tree, nil
}
