package viewgen

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewgen/internal/testutil"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte("per_type_views: true\nesql: false\ntrace_level: 2\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Validate, "defaults survive")
	assert.True(t, cfg.GeneratePerTypeViews)
	assert.False(t, cfg.GenerateEsql)
	assert.True(t, cfg.GenerateUpdateViews)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestParseConfigEmpty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
}

func TestParseConfigUnknownKey(t *testing.T) {
	_, err := ParseConfig([]byte("validate: true\nesq: false\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "esq"`)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(dir, "viewgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte("update_views: false\n"), 0o644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.GenerateUpdateViews)
}

func TestMetrics(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(0, 0), time.Millisecond)
	m := NewMetrics(clock)

	m.Start(PhaseValidation)()
	stop := m.Start(PhaseViewGeneration)
	stop()
	m.Start(PhaseViewGeneration)()
	m.Inc("merges", 2)
	m.Inc("merges", 1)

	assert.Equal(t, time.Millisecond, m.Duration(PhaseValidation))
	assert.Equal(t, 2*time.Millisecond, m.Duration(PhaseViewGeneration))
	assert.Equal(t, 3*time.Millisecond, m.Total())
	assert.Equal(t, 3, m.Count("merges"))
	assert.Equal(t, "validation=1ms view_generation=2ms", m.String())
}
