package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, script, log_path, screenshot_dir, started_at, finished_at, status, instructions, errors, warnings`

// ReadRun returns one run by ID.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	return runs[0], nil
}

// ListRuns returns runs newest first. A limit of zero or less returns all.
//
// Returns an empty slice (not nil) if the archive is empty.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id COLLATE BINARY DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// ReadEntries returns a run's log entries in the order they were written.
// When levels is non-empty only entries at those levels are returned.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEntries(ctx context.Context, runID string, levels ...string) ([]Entry, error) {
	query := `SELECT seq, time, level, message FROM entries WHERE run_id = ?`
	args := []any{runID}
	if len(levels) > 0 {
		query += ` AND level IN (?` + strings.Repeat(`, ?`, len(levels)-1) + `)`
		for _, l := range levels {
			args = append(args, l)
		}
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e  Entry
			ts string
		)
		if err := rows.Scan(&e.Seq, &ts, &e.Level, &e.Message); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if e.Time, err = unmarshalTime(ts); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// ReadScreenshots returns the screenshot paths of a run in capture order.
func (s *Store) ReadScreenshots(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM screenshots WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query screenshots: %w", err)
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan screenshot: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate screenshots: %w", err)
	}
	return paths, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run      Run
		started  string
		finished sql.NullString
	)
	if err := row.Scan(
		&run.ID,
		&run.Script,
		&run.LogPath,
		&run.ScreenshotDir,
		&started,
		&finished,
		&run.Status,
		&run.Instructions,
		&run.Errors,
		&run.Warnings,
	); err != nil {
		return Run{}, err
	}

	var err error
	if run.StartedAt, err = unmarshalTime(started); err != nil {
		return Run{}, err
	}
	if run.FinishedAt, err = unmarshalNullTime(finished); err != nil {
		return Run{}, err
	}
	return run, nil
}
