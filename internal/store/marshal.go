package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/viewgen"
)

// marshalConfig converts a Config to canonical JSON TEXT for storage.
// The keys are the YAML keys of the config file, so the stored text reads
// back through viewgen.ParseConfig.
func marshalConfig(cfg viewgen.Config) (string, error) {
	data, err := ir.MarshalCanonical(ir.Object{
		"validate":       ir.Bool(cfg.Validate),
		"per_type_views": ir.Bool(cfg.GeneratePerTypeViews),
		"esql":           ir.Bool(cfg.GenerateEsql),
		"update_views":   ir.Bool(cfg.GenerateUpdateViews),
		"trace_level":    ir.Int(cfg.TraceLevel),
	})
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func unmarshalConfig(data string) (viewgen.Config, error) {
	cfg, err := viewgen.ParseConfig([]byte(data))
	if err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// metricsDoc is the stored form of viewgen.Metrics. Durations are kept in
// nanoseconds: canonical JSON has no floats.
type metricsDoc struct {
	Durations map[string]int64 `json:"durations_ns"`
	Counts    map[string]int   `json:"counts"`
}

// marshalMetrics converts Metrics to canonical JSON TEXT.
func marshalMetrics(m *viewgen.Metrics) (string, error) {
	durations, counts := ir.Object{}, ir.Object{}
	for p, d := range m.Durations() {
		durations[string(p)] = ir.Int(d.Nanoseconds())
	}
	for name, n := range m.Counts() {
		counts[name] = ir.Int(n)
	}
	data, err := ir.MarshalCanonical(ir.Object{"durations_ns": durations, "counts": counts})
	if err != nil {
		return "", fmt.Errorf("marshal metrics: %w", err)
	}
	return string(data), nil
}

func unmarshalMetrics(data string) (map[string]time.Duration, map[string]int, error) {
	var doc metricsDoc
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	durations := make(map[string]time.Duration, len(doc.Durations))
	for p, ns := range doc.Durations {
		durations[p] = time.Duration(ns)
	}
	if doc.Counts == nil {
		doc.Counts = map[string]int{}
	}
	return durations, doc.Counts, nil
}

// marshalCells converts cell numbers to a JSON array.
func marshalCells(cells []int) (string, error) {
	arr := ir.Array{}
	for _, c := range cells {
		arr = append(arr, ir.Int(c))
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal cells: %w", err)
	}
	return string(data), nil
}

func unmarshalCells(data string) ([]int, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var cells []int
	if err := json.Unmarshal([]byte(data), &cells); err != nil {
		return nil, fmt.Errorf("unmarshal cells: %w", err)
	}
	return cells, nil
}
