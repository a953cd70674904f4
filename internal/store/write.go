package store

import (
	"context"
	"fmt"

	"github.com/roach88/viewgen/internal/generator"
	"github.com/roach88/viewgen/internal/ir"
	"github.com/roach88/viewgen/internal/viewgen"
)

// WriteRun records a generation run with its views and error records and
// returns the run's ID. The run receives the next logical sequence number.
//
// Everything is written in one transaction: a run is either stored whole
// or not at all.
func (s *Store) WriteRun(ctx context.Context, r *generator.Results, cfg viewgen.Config) (string, error) {
	configJSON, err := marshalConfig(cfg)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}
	metricsJSON, err := marshalMetrics(r.Metrics)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return "", fmt.Errorf("write run: next seq: %w", err)
	}

	id := s.ids.NewID()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, mapping, mapping_hash, config, metrics, view_count, error_count, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		seq,
		r.Mapping,
		r.MappingHash,
		configJSON,
		metricsJSON,
		len(r.Views),
		r.Log.ErrorCount(),
		ir.GeneratorVersion,
		ir.FormatVersion,
	)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	for i, v := range r.Views {
		tree := ""
		if v.Tree != nil {
			tree = v.Tree.String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO views
			(run_id, seq, kind, extent, of_type, tree, cql, hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, i+1, v.Kind.String(), v.Extent, v.OfType, tree, v.CQL, v.Hash)
		if err != nil {
			return "", fmt.Errorf("write view %s %s: %w", v.Kind, v.Extent, err)
		}
	}

	for i, rec := range r.Log.Records() {
		cells, err := marshalCells(rec.Cells)
		if err != nil {
			return "", fmt.Errorf("write run: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO errors
			(run_id, seq, code, severity, message, cells, source)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, i+1, int(rec.Code), rec.Severity.String(), rec.Message, cells, rec.Source)
		if err != nil {
			return "", fmt.Errorf("write error record %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write run: commit: %w", err)
	}
	return id, nil
}

// DeleteRun removes a run with its views and errors. Deleting an unknown
// run is not an error.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}
