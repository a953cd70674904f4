package viewgen

import (
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config switches the stages of a generation run.
type Config struct {
	// Validate runs the cell group validator before generating views.
	Validate bool `yaml:"validate"`

	// GeneratePerTypeViews adds one OfType view per concrete entity type
	// of every hierarchy.
	GeneratePerTypeViews bool `yaml:"per_type_views"`

	// GenerateEsql renders CQL text; otherwise views carry only the
	// command tree.
	GenerateEsql bool `yaml:"esql"`

	// GenerateUpdateViews generates one view per table.
	GenerateUpdateViews bool `yaml:"update_views"`

	// TraceLevel: 0 warn, 1 info, 2 and above debug.
	TraceLevel int `yaml:"trace_level"`
}

// DefaultConfig enables validation, CQL text and update views.
func DefaultConfig() Config {
	return Config{
		Validate:            true,
		GenerateEsql:        true,
		GenerateUpdateViews: true,
	}
}

// Level maps TraceLevel to a slog level.
func (c Config) Level() slog.Level {
	switch {
	case c.TraceLevel <= 0:
		return slog.LevelWarn
	case c.TraceLevel == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// ParseConfig decodes YAML over the defaults. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	if len(doc.Content) == 0 {
		return cfg, nil
	}
	known := map[string]bool{
		"validate": true, "per_type_views": true, "esql": true, "update_views": true, "trace_level": true,
	}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		k := root.Content[i]
		if !known[k.Value] {
			return cfg, errors.Newf("config line %d: unknown key %q", k.Line, k.Value)
		}
	}
	if err := root.Decode(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return DefaultConfig(), errors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(data)
}
