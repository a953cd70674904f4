package cqlgen

import (
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/roach88/viewgen/internal/boolexpr"
	"github.com/roach88/viewgen/internal/cell"
	"github.com/roach88/viewgen/internal/cqlir"
	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/metadata"
	"github.com/roach88/viewgen/internal/viewgen"
)

// scanAlias is the alias an extent is read under inside its scan block.
const scanAlias = "T"

// lower builds the block for n. Without exact, the block projects the
// required columns n provides plus the key columns it provides. With
// exact, it projects exactly req, padding what n cannot provide with NULL
// (members) or False (indicators), as union legs must.
func (g *Generator) lower(n *viewgen.Node, req map[string]bool, exact bool) (cqlir.Block, error) {
	provided := g.provided(n)
	var cols []column
	for _, c := range g.cols {
		if exact && req[c.name] || !exact && provided[c.name] && (req[c.name] || c.key) {
			cols = append(cols, c)
		}
	}

	switch n.Op {
	case viewgen.OpLeaf:
		return g.scan(n.Wrapper, cols, provided), nil
	case viewgen.OpUnion:
		legReq := map[string]bool{}
		for _, c := range cols {
			legReq[c.name] = true
		}
		u := &cqlir.Union{}
		for _, child := range n.Children {
			leg, err := g.lower(child, legReq, true)
			if err != nil {
				return nil, err
			}
			u.Legs = append(u.Legs, leg)
		}
		return u, nil
	case viewgen.OpIJ, viewgen.OpLOJ, viewgen.OpFOJ, viewgen.OpLASJ:
		return g.join(n, req, cols)
	}
	return nil, errors.AssertionFailedf("cannot lower %s node", n.Op)
}

// scan lowers a leaf: its wrapper's right query over one extent.
func (g *Generator) scan(w *viewgen.LeftCellWrapper, cols []column, provided map[string]bool) *cqlir.Scan {
	conv := g.rightConverter(w.RightExtent())
	s := &cqlir.Scan{
		Extent:   w.RightExtent().Name,
		Alias:    scanAlias,
		Distinct: w.Right.Distinct,
	}
	if !boolexpr.IsTrue(w.Right.Where) {
		s.Filter = conv.predicate(w.Right.Where)
	}
	for _, c := range cols {
		var x cqlir.Expr
		switch {
		case !provided[c.name]:
			x = padding(c)
		case c.isFlag():
			b := w.Right.BoolVars[c.cell]
			if boolexpr.IsTrue(b) {
				x = cqlir.Const{Value: ir.Bool(true)}
			} else {
				x = cqlir.Cond{Pred: conv.predicate(b)}
			}
		default:
			x = cqlir.Ref{Alias: scanAlias, Column: w.Right.Slots[c.slot].Name()}
		}
		s.Columns = append(s.Columns, cqlir.Column{Name: c.name, Expr: x})
	}
	return s
}

// rightConverter reads variables of e's members as columns of the scan.
func (g *Generator) rightConverter(e *metadata.Extent) converter {
	members := map[string]*cell.MemberPath{}
	for _, m := range cell.AllMembers(e) {
		members[m.String()] = m
	}
	conv := converter{
		column: func(v *boolexpr.Var) (cqlir.Expr, bool) {
			m, ok := members[v.Name]
			if !ok {
				return nil, false
			}
			return cqlir.Ref{Alias: scanAlias, Column: m.Name()}, true
		},
	}
	if e.Kind == metadata.EntitySet {
		conv.typeAlias = scanAlias
		conv.typeVar = cell.TypeMember(e).String()
	}
	return conv
}

func padding(c column) cqlir.Expr {
	if c.isFlag() {
		return cqlir.Const{Value: ir.Bool(false)}
	}
	return cqlir.Const{Value: ir.Null{}}
}

// join lowers an operator over inputs joined left to right on the key
// columns they share with the inputs before them.
func (g *Generator) join(n *viewgen.Node, req map[string]bool, cols []column) (*cqlir.Join, error) {
	j := &cqlir.Join{}
	switch n.Op {
	case viewgen.OpIJ:
		j.Kind = cqlir.InnerJoin
	case viewgen.OpFOJ:
		j.Kind = cqlir.FullOuterJoin
	default:
		j.Kind = cqlir.LeftOuterJoin
	}

	keys := map[string]cqlir.Expr{}
	provides := make([]map[string]bool, len(n.Children))
	var absent []cqlir.Predicate
	for k, child := range n.Children {
		block, err := g.lower(child, req, false)
		if err != nil {
			return nil, err
		}
		alias := "T" + strconv.Itoa(k+1)
		provides[k] = g.provided(child)
		in := cqlir.Input{Block: block, Alias: alias}

		var on []cqlir.Predicate
		for _, c := range g.cols {
			if !c.key || !provides[k][c.name] {
				continue
			}
			ref := cqlir.Ref{Alias: alias, Column: c.name}
			prev, ok := keys[c.name]
			if !ok {
				keys[c.name] = ref
				continue
			}
			on = append(on, cqlir.Compare{Left: prev, Right: ref})
			if n.Op == viewgen.OpFOJ {
				keys[c.name] = cqlir.Coalesce{Args: []cqlir.Expr{prev, ref}}
			}
		}
		if k > 0 {
			if len(on) == 0 {
				return nil, errors.AssertionFailedf("%s input %s shares no key with the inputs before it", n.Op, child)
			}
			in.On = cqlir.And{Predicates: on}
			if len(on) == 1 {
				in.On = on[0]
			}
			if n.Op == viewgen.OpLASJ {
				absent = append(absent, cqlir.IsNull{Expr: on[0].(cqlir.Compare).Right})
			}
		}
		j.Inputs = append(j.Inputs, in)
	}
	if len(absent) > 0 {
		j.Filter = cqlir.And{Predicates: absent}
	}

	for _, c := range cols {
		var refs []cqlir.Expr
		optional := false
		for k := range n.Children {
			if provides[k][c.name] {
				refs = append(refs, cqlir.Ref{Alias: j.Inputs[k].Alias, Column: c.name})
				optional = n.Op == viewgen.OpFOJ || k > 0 && n.Op != viewgen.OpIJ
			}
		}
		var x cqlir.Expr
		switch {
		case len(refs) == 0:
			x = padding(c)
		case c.key && keys[c.name] != nil:
			x = keys[c.name]
		case c.isFlag() && optional:
			x = cqlir.Coalesce{Args: []cqlir.Expr{refs[0], cqlir.Const{Value: ir.Bool(false)}}}
		case len(refs) == 1:
			x = refs[0]
		default:
			x = cqlir.Coalesce{Args: refs}
		}
		j.Columns = append(j.Columns, cqlir.Column{Name: c.name, Expr: x})
	}
	return j, nil
}
