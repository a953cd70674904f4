package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/testutil"
	"github.com/roach88/viewgen/internal/viewgen"
)

func TestWriteRun_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, "run-1")
	cfg := viewgen.DefaultConfig()
	r := generate(t, testutil.EmployeeSplit(), cfg)

	id, err := s.WriteRun(ctx, r, cfg)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	run, err := s.ReadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.Seq)
	assert.Equal(t, r.Mapping, run.Mapping)
	assert.Equal(t, r.MappingHash, run.MappingHash)
	assert.Equal(t, cfg, run.Config)
	assert.Equal(t, 2, run.ViewCount)
	assert.Equal(t, 0, run.ErrorCount)
	assert.Equal(t, 2, run.Counts["cells"])
	assert.Contains(t, run.Durations, string(viewgen.PhaseCellCreation))
	assert.NotEmpty(t, run.EngineVersion)
	assert.NotEmpty(t, run.IRVersion)

	views, err := s.ReadViews(ctx, id)
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, "update", views[0].Kind)
	assert.Equal(t, "PersonTable", views[0].Extent)
	assert.Equal(t, "query", views[1].Kind)
	assert.Equal(t, "People", views[1].Extent)
	assert.Equal(t, "c0+c1", views[1].Tree)
	for i, v := range views {
		assert.Equal(t, int64(i+1), v.Seq)
		assert.Equal(t, r.Views[i].CQL, v.CQL)
		assert.Equal(t, r.Views[i].Hash, v.Hash)
	}
}

func TestWriteRun_SeqIncrements(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, "run-1", "run-2", "run-3")
	cfg := viewgen.DefaultConfig()

	for range 3 {
		_, err := s.WriteRun(ctx, generate(t, testutil.EmployeeSplit(), cfg), cfg)
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for i, run := range runs {
		assert.Equal(t, int64(i+1), run.Seq)
	}
	assert.Equal(t, []string{"run-1", "run-2", "run-3"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
}

func TestWriteRun_DuplicateIDRollsBack(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, "same")
	cfg := viewgen.DefaultConfig()

	_, err := s.WriteRun(ctx, generate(t, testutil.EmployeeSplit(), cfg), cfg)
	require.NoError(t, err)
	_, err = s.WriteRun(ctx, generate(t, testutil.TablePerType(), cfg), cfg)
	require.Error(t, err)

	runs, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	views, err := s.ReadViews(ctx, "same")
	require.NoError(t, err)
	assert.Len(t, views, 2, "views of the failed run must not leak in")
}

func TestWriteRun_ErrorRecords(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, "bad")
	cfg := viewgen.DefaultConfig()
	r := generate(t, testutil.VersionedKey(false), cfg)
	require.True(t, r.Log.HasErrors())

	id, err := s.WriteRun(ctx, r, cfg)
	require.NoError(t, err)

	run, err := s.ReadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, r.Log.ErrorCount(), run.ErrorCount)
	assert.Equal(t, 0, run.ViewCount)

	recs, err := s.ReadErrors(ctx, id)
	require.NoError(t, err)
	require.Len(t, recs, r.Log.Count())
	for i, rec := range recs {
		want := r.Log.Records()[i]
		assert.Equal(t, int64(i+1), rec.Seq)
		assert.Equal(t, want.Code, rec.Code)
		assert.Equal(t, want.Severity.String(), rec.Severity)
		assert.Equal(t, want.Message, rec.Message)
		assert.Equal(t, want.Source, rec.Source)
		if len(want.Cells) == 0 {
			assert.Empty(t, rec.Cells)
		} else {
			assert.Equal(t, want.Cells, rec.Cells)
		}
	}
	codes := make([]errlog.Code, len(recs))
	for i, rec := range recs {
		codes[i] = rec.Code
	}
	assert.Contains(t, codes, errlog.Code(3005))
}

func TestWriteRun_ConfigPreserved(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, "run-1")
	cfg := viewgen.Config{GeneratePerTypeViews: true, TraceLevel: 2}

	id, err := s.WriteRun(ctx, generate(t, testutil.TablePerHierarchy(), cfg), cfg)
	require.NoError(t, err)

	run, err := s.ReadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, cfg, run.Config)
}

func TestDeleteRun_Cascades(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, "run-1")
	cfg := viewgen.DefaultConfig()
	id, err := s.WriteRun(ctx, generate(t, testutil.VersionedKey(false), cfg), cfg)
	require.NoError(t, err)

	require.NoError(t, s.DeleteRun(ctx, id))
	require.NoError(t, s.DeleteRun(ctx, "unknown"))

	_, err = s.ReadRun(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	recs, err := s.ReadErrors(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NotNil(t, recs)
}
