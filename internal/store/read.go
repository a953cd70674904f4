package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/viewgen/internal/errlog"
	"github.com/roach88/viewgen/internal/viewgen"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Run is a stored generation run.
type Run struct {
	ID            string
	Seq           int64
	Mapping       string
	MappingHash   string
	Config        viewgen.Config
	Durations     map[string]time.Duration
	Counts        map[string]int
	ViewCount     int
	ErrorCount    int
	EngineVersion string
	IRVersion     string
}

// ViewRecord is a stored view.
type ViewRecord struct {
	RunID  string
	Seq    int64
	Kind   string
	Extent string
	OfType string
	Tree   string
	CQL    string
	Hash   string
}

// Key identifies the view within its run.
func (v ViewRecord) Key() string {
	if v.OfType == "" {
		return v.Kind + " " + v.Extent
	}
	return v.Kind + " " + v.Extent + " OfType(" + v.OfType + ")"
}

// ErrorRecord is a stored error log record.
type ErrorRecord struct {
	RunID    string
	Seq      int64
	Code     errlog.Code
	Severity string
	Message  string
	Cells    []int
	Source   string
}

const runColumns = `id, seq, mapping, mapping_hash, config, metrics, view_count, error_count, engine_version, ir_version`

// ReadRun returns one run. Returns ErrNotFound if no run has the ID.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// LatestRun returns the most recent run of a mapping, or of any mapping
// when mapping is empty. Returns ErrNotFound if there is none.
func (s *Store) LatestRun(ctx context.Context, mapping string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE ? = '' OR mapping = ?
		ORDER BY seq DESC
		LIMIT 1
	`, mapping, mapping)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run of %q: %w", mapping, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the runs of a mapping, or all runs when mapping is
// empty, ordered by seq ASC.
//
// Returns an empty slice (not nil) if there are no runs.
func (s *Store) ListRuns(ctx context.Context, mapping string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE ? = '' OR mapping = ?
		ORDER BY seq ASC
	`, mapping, mapping)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadViews returns the views of a run in generation order.
//
// Returns an empty slice (not nil) if the run has no views.
func (s *Store) ReadViews(ctx context.Context, runID string) ([]ViewRecord, error) {
	return s.queryViews(ctx, `
		SELECT run_id, seq, kind, extent, of_type, tree, cql, hash
		FROM views
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// FindViewsByHash returns every stored view with the given content hash,
// oldest run first.
func (s *Store) FindViewsByHash(ctx context.Context, hash string) ([]ViewRecord, error) {
	return s.queryViews(ctx, `
		SELECT v.run_id, v.seq, v.kind, v.extent, v.of_type, v.tree, v.cql, v.hash
		FROM views v
		JOIN runs r ON v.run_id = r.id
		WHERE v.hash = ?
		ORDER BY r.seq ASC, v.seq ASC
	`, hash)
}

func (s *Store) queryViews(ctx context.Context, query string, arg string) ([]ViewRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query views: %w", err)
	}
	defer rows.Close()

	views := []ViewRecord{}
	for rows.Next() {
		var v ViewRecord
		if err := rows.Scan(&v.RunID, &v.Seq, &v.Kind, &v.Extent, &v.OfType, &v.Tree, &v.CQL, &v.Hash); err != nil {
			return nil, fmt.Errorf("scan view: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate views: %w", err)
	}
	return views, nil
}

// ReadErrors returns the error records of a run in logging order.
//
// Returns an empty slice (not nil) if the run logged nothing.
func (s *Store) ReadErrors(ctx context.Context, runID string) ([]ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, code, severity, message, cells, source
		FROM errors
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query errors: %w", err)
	}
	defer rows.Close()

	recs := []ErrorRecord{}
	for rows.Next() {
		var (
			r     ErrorRecord
			code  int
			cells string
		)
		if err := rows.Scan(&r.RunID, &r.Seq, &code, &r.Severity, &r.Message, &cells, &r.Source); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		r.Code = errlog.Code(code)
		if r.Cells, err = unmarshalCells(cells); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error records: %w", err)
	}
	return recs, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r       Run
		config  string
		metrics string
	)
	err := sc.Scan(&r.ID, &r.Seq, &r.Mapping, &r.MappingHash, &config, &metrics,
		&r.ViewCount, &r.ErrorCount, &r.EngineVersion, &r.IRVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if r.Config, err = unmarshalConfig(config); err != nil {
		return Run{}, err
	}
	if r.Durations, r.Counts, err = unmarshalMetrics(metrics); err != nil {
		return Run{}, err
	}
	return r, nil
}
