// Package validator certifies a cell group before views are generated.
//
// Validation runs in two phases. Single-cell checks come first and any
// failure stops there. The second phase derives key constraints for both
// sides of every cell, lifts them to the view level and checks that the
// keys of each side imply the keys of the other.
package validator

import (
	"log/slog"
	"strings"

	"github.com/roach88/viewgen/internal/cell"
	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/metadata"
)

// Validator is the validator of one cell group.
type Validator struct {
	cells  []*cell.Cell
	log    *errlog.Log
	logger *slog.Logger
}

// New returns a validator for cells reporting into log.
func New(cells []*cell.Cell, log *errlog.Log, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{cells: cells, log: log, logger: logger}
}

// Validate runs both phases and reports whether no error was recorded.
func (v *Validator) Validate() bool {
	before := v.log.ErrorCount()

	v.checkSingleCells()
	v.checkDistinct()
	if v.log.ErrorCount() > before {
		v.logger.Debug("single-cell checks failed", "cells", len(v.cells))
		return false
	}

	v.checkImplication()
	return v.log.ErrorCount() == before
}

func (v *Validator) checkSingleCells() {
	for _, c := range v.cells {
		cells := []int{c.Number}

		// 3006: a conceptual member mapped twice
		seen := map[string]bool{}
		for _, s := range c.CQuery.Slots {
			if seen[s.String()] {
				v.log.Errorf(errlog.DuplicateCPropertiesMapped, cells, c.Source(),
					"%s is mapped more than once in %s", s, c.Fragment)
			}
			seen[s.String()] = true
		}

		// 3004: every conceptual key member must be projected
		var missing []string
		for _, k := range cell.KeyMembers(c.CQuery.Extent) {
			if !c.CQuery.Projects(k) {
				missing = append(missing, k.Name())
			}
		}
		if len(missing) > 0 {
			v.log.Errorf(errlog.KeyNotMappedForCSideExtent, cells, c.Source(),
				"key of %s (%s) is not mapped by %s", c.CQuery.Extent.Name, strings.Join(missing, ", "), c.Fragment)
		}

		// 3005: every table key column must be projected or fixed
		fixed := fixedMembers(c.SQuery.Where)
		missing = nil
		for _, k := range cell.KeyMembers(c.SQuery.Extent) {
			if !c.SQuery.Projects(k) && !fixed[k.String()] {
				missing = append(missing, k.Name())
			}
		}
		if len(missing) > 0 {
			v.log.Errorf(errlog.KeyNotMappedForTable, cells, c.Source(),
				"key of table %s (%s) is not mapped by %s", c.SQuery.Extent.Name, strings.Join(missing, ", "), c.Fragment)
		}
	}
	v.checkNotNullColumns()
}

// checkNotNullColumns reports non-nullable columns that no cell of their
// table projects and that some cell leaves unconstrained.
func (v *Validator) checkNotNullColumns() {
	byTable := map[*metadata.Extent][]*cell.Cell{}
	var tables []*metadata.Extent
	for _, c := range v.cells {
		t := c.SQuery.Extent
		if _, ok := byTable[t]; !ok {
			tables = append(tables, t)
		}
		byTable[t] = append(byTable[t], c)
	}

	for _, t := range tables {
		cells := byTable[t]
		for _, col := range t.Columns {
			if col.Nullable {
				continue
			}
			m := cell.MustMemberPath(t, col.Name)
			if m.IsKey() {
				continue
			}
			projected := false
			unconstrained := false
			for _, c := range cells {
				if c.SQuery.Projects(m) {
					projected = true
					break
				}
				if !fixedMembers(c.SQuery.Where)[m.String()] {
					unconstrained = true
				}
			}
			// 3007: not-null column without a value source
			if !projected && unconstrained {
				v.log.Errorf(errlog.NotNullNoProjectedSlot, cell.Numbers(cells), cells[0].Source(),
					"non-nullable column %s.%s is neither mapped nor fixed by a condition", t.Name, col.Name)
			}
		}
	}
}

// checkDistinct reports distinct fragments that share their extent pair
// with another fragment.
func (v *Validator) checkDistinct() {
	type pair struct{ c, s *metadata.Extent }
	groups := map[pair][]*cell.Cell{}
	var order []pair
	for _, c := range v.cells {
		p := pair{c.CQuery.Extent, c.SQuery.Extent}
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}
		groups[p] = append(groups[p], c)
	}
	for _, p := range order {
		cells := groups[p]
		if len(cells) < 2 {
			continue
		}
		distinct := false
		for _, c := range cells {
			distinct = distinct || c.CQuery.Distinct || c.SQuery.Distinct
		}
		// 3008: DISTINCT requires an exclusive extent pair
		if distinct {
			v.log.Errorf(errlog.MultipleFragmentsBetweenCandSExtentWithDistinct, cell.Numbers(cells), cells[0].Source(),
				"%d fragments map %s to %s and at least one selects distinct rows", len(cells), p.c.Name, p.s.Name)
		}
	}
}

// checkImplication builds the key constraints of every cell, propagates
// them to the view level and checks implication in both directions.
func (v *Validator) checkImplication() {
	type pair struct{ c, s *metadata.Extent }
	cKeys := map[pair][]ViewKeyConstraint{}
	sKeys := map[pair][]ViewKeyConstraint{}
	var order []pair
	for _, c := range v.cells {
		p := pair{c.CQuery.Extent, c.SQuery.Extent}
		if _, ok := cKeys[p]; !ok {
			order = append(order, p)
			cKeys[p] = nil
		}
		cs, ss := basicConstraints(c)
		for _, b := range cs {
			cKeys[p] = append(cKeys[p], b.Propagate())
		}
		for _, b := range ss {
			sKeys[p] = append(sKeys[p], b.Propagate())
		}
	}

	for _, p := range order {
		cs, ss := cKeys[p], sKeys[p]

		// 3002: every store key must follow from a conceptual key
		for _, k := range ss {
			if !k.ImpliedBy(cs) {
				v.log.Errorf(errlog.KeyConstraintViolation, k.Cells, v.source(k.Cells),
					"key of table %s (%s) is not implied by any key of %s", p.s.Name, strings.Join(k.Members, ", "), p.c.Name)
			}
		}

		// 3003: some conceptual key must follow from a store key
		implied := false
		for _, k := range cs {
			if k.ImpliedBy(ss) {
				implied = true
				break
			}
		}
		if !implied && len(cs) > 0 {
			v.log.Errorf(errlog.KeyConstraintUpdateViolation, cellsOf(cs), v.source(cellsOf(cs)),
				"no key of %s is implied by the key of table %s; updates cannot identify rows", p.c.Name, p.s.Name)
		}
		v.logger.Debug("key implication checked", "extent", p.c.Name, "table", p.s.Name,
			"c_keys", len(cs), "s_keys", len(ss))
	}
}

func (v *Validator) source(cells []int) string {
	for _, c := range v.cells {
		if len(cells) > 0 && c.Number == cells[0] {
			return c.Source()
		}
	}
	return ""
}

func cellsOf(ks []ViewKeyConstraint) []int {
	var out []int
	for _, k := range ks {
		out = append(out, k.Cells...)
	}
	return out
}
