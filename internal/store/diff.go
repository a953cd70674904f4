package store

import (
	"context"
	"slices"
)

// ViewChange pairs a view's records in two runs. Before is nil for added
// views, After for removed ones.
type ViewChange struct {
	Key    string
	Before *ViewRecord
	After  *ViewRecord
}

// RunDiff compares the views of two runs.
type RunDiff struct {
	Added     []ViewChange
	Removed   []ViewChange
	Changed   []ViewChange
	Unchanged int
}

// Empty reports whether the runs produced the same views.
func (d *RunDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// CompareRuns matches the views of two runs by kind, extent and type
// restriction, and compares their content hashes. Changes are sorted by
// key.
func (s *Store) CompareRuns(ctx context.Context, beforeID, afterID string) (*RunDiff, error) {
	if _, err := s.ReadRun(ctx, beforeID); err != nil {
		return nil, err
	}
	if _, err := s.ReadRun(ctx, afterID); err != nil {
		return nil, err
	}
	before, err := s.ReadViews(ctx, beforeID)
	if err != nil {
		return nil, err
	}
	after, err := s.ReadViews(ctx, afterID)
	if err != nil {
		return nil, err
	}

	old := make(map[string]*ViewRecord, len(before))
	for i := range before {
		old[before[i].Key()] = &before[i]
	}
	d := &RunDiff{}
	for i := range after {
		v := &after[i]
		prev, ok := old[v.Key()]
		switch {
		case !ok:
			d.Added = append(d.Added, ViewChange{Key: v.Key(), After: v})
		case prev.Hash != v.Hash:
			d.Changed = append(d.Changed, ViewChange{Key: v.Key(), Before: prev, After: v})
		default:
			d.Unchanged++
		}
		delete(old, v.Key())
	}
	for key, v := range old {
		d.Removed = append(d.Removed, ViewChange{Key: key, Before: v})
	}

	byKey := func(a, b ViewChange) int {
		if a.Key < b.Key {
			return -1
		}
		if a.Key > b.Key {
			return 1
		}
		return 0
	}
	slices.SortFunc(d.Added, byKey)
	slices.SortFunc(d.Removed, byKey)
	slices.SortFunc(d.Changed, byKey)
	return d, nil
}
