package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/koki-mus/csvscenario/internal/runlog"
	"github.com/koki-mus/csvscenario/internal/sjiscsv"
)

// FindIncompleteRuns returns runs still marked running, oldest first.
// Outside an active run these were left behind by a process that died
// before FinishRun.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE status = ?
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("find incomplete runs: %w", err)
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
		return nil, fmt.Errorf("iterate incomplete runs: %w", err)
	}
	return runs, nil
}

// AbortIncompleteRuns marks every running run as aborted at the given time
// and returns how many were updated. Counts are filled in from the
// archived entries.
func (s *Store) AbortIncompleteRuns(ctx context.Context, at time.Time) (int, error) {
	runs, err := s.FindIncompleteRuns(ctx)
	if err != nil {
		return 0, err
	}
	for _, run := range runs {
		sum := Summary{FinishedAt: at, Status: StatusAborted}
		if err := s.db.QueryRowContext(ctx, `
			SELECT
				COALESCE(SUM(level = ?), 0),
				COALESCE(SUM(level = ?), 0)
			FROM entries WHERE run_id = ?
		`, string(runlog.LevelError), string(runlog.LevelWarning), run.ID).Scan(&sum.Errors, &sum.Warnings); err != nil {
			return 0, fmt.Errorf("abort run %s: %w", run.ID, err)
		}
		if err := s.FinishRun(ctx, run.ID, sum); err != nil {
			return 0, err
		}
	}
	return len(runs), nil
}

// GetLastSeq returns the highest entry seq of a run, or 0 if it has none.
// Used to resume recording into an existing run.
func (s *Store) GetLastSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM entries WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq of run %s: %w", runID, err)
	}
	return seq, nil
}

// ExportLog writes a run's archived entries to w in the run log file
// format: Shift_JIS CSV with the standard header row.
func (s *Store) ExportLog(ctx context.Context, runID string, w io.Writer) error {
	if _, err := s.ReadRun(ctx, runID); err != nil {
		return err
	}
	entries, err := s.ReadEntries(ctx, runID)
	if err != nil {
		return err
	}

	out := sjiscsv.NewWriter(w, true)
	if err := out.Write(runlog.Header); err != nil {
		return fmt.Errorf("export run %s: %w", runID, err)
	}
	for _, e := range entries {
		if err := out.Write([]string{e.Time.Format(runlog.TimestampLayout), e.Level, e.Message}); err != nil {
			return fmt.Errorf("export run %s: entry %d: %w", runID, e.Seq, err)
		}
	}
	return nil
}
