// Package cqlir is the command tree of a generated view: nested query
// blocks over extents, joined and unioned on key columns, topped by a
// view block that constructs entities or table rows.
//
// Block, Expr and Predicate are sealed interfaces using the marker method
// pattern. Only types in this package implement them, so renderers can
// switch over them exhaustively:
//
//	switch b := block.(type) {
//	case *Scan:
//	    // one extent
//	case *Join:
//	    // inputs joined on keys
//	case *Union:
//	    // UNION ALL of legs with identical columns
//	case *View:
//	    // top of the tree
//	}
//
// Blocks carry explicit column lists in a fixed order. A column of a join
// refers to one of the join's input aliases; a union's legs project the
// same column names in the same order.
//
// Literal values are ir.Value: no floats.
package cqlir
