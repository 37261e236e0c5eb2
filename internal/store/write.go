package store

import (
	"context"
	"fmt"
)

// BeginRun inserts a run with status running.
// StartedAt and Script are required.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("begin run: empty id")
	}
	if run.StartedAt.IsZero() {
		return fmt.Errorf("begin run %s: missing start time", run.ID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, script, log_path, screenshot_dir, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Script,
		run.LogPath,
		run.ScreenshotDir,
		marshalTime(run.StartedAt),
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	return nil
}

// WriteEntry appends one log entry to a run.
// Uses ON CONFLICT DO NOTHING so a retried write of the same seq is ignored.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteEntry(ctx context.Context, runID string, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (run_id, seq, time, level, message)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		e.Seq,
		marshalTime(e.Time),
		e.Level,
		e.Message,
	)
	if err != nil {
		return fmt.Errorf("write entry %d of run %s: %w", e.Seq, runID, err)
	}
	return nil
}

// FinishRun records the outcome and screenshots of a run in one
// transaction.
func (s *Store) FinishRun(ctx context.Context, runID string, sum Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("finish run %s: begin tx: %w", runID, err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, instructions = ?, errors = ?, warnings = ?
		WHERE id = ?
	`,
		marshalNullTime(sum.FinishedAt),
		sum.Status,
		sum.Instructions,
		sum.Errors,
		sum.Warnings,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}

	for i, path := range sum.Screenshots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO screenshots (run_id, seq, path)
			VALUES (?, ?, ?)
			ON CONFLICT(run_id, seq) DO UPDATE SET path = excluded.path
		`, runID, i+1, path); err != nil {
			return fmt.Errorf("finish run %s: screenshot %q: %w", runID, path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("finish run %s: commit: %w", runID, err)
	}
	return nil
}
