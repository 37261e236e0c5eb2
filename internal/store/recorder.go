package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/koki-mus/csvscenario/internal/runlog"
)

// RunIDGenerator produces run IDs.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run IDs.
//
// UUIDv7 embeds a timestamp in the most significant bits, so IDs sort by
// creation time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Recorder archives run log entries as they are written.
// It implements runlog.Sink.
//
// Thread-safety: Record is safe for concurrent use.
type Recorder struct {
	store *Store
	runID string
	ctx   context.Context

	mu  sync.Mutex
	seq int64
}

var _ runlog.Sink = (*Recorder)(nil)

// NewRecorder returns a Recorder appending to runID, continuing after
// any entries the run already has. Recording outlives cancellation of ctx
// so the shutdown entries of an interrupted run are still archived.
func (s *Store) NewRecorder(ctx context.Context, runID string) (*Recorder, error) {
	seq, err := s.GetLastSeq(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &Recorder{store: s, runID: runID, ctx: context.WithoutCancel(ctx), seq: seq}, nil
}

// RunID returns the run being recorded.
func (r *Recorder) RunID() string {
	return r.runID
}

// Record archives one entry.
func (r *Recorder) Record(e runlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.store.WriteEntry(r.ctx, r.runID, Entry{
		Seq:     r.seq,
		Time:    e.Time,
		Level:   string(e.Level),
		Message: e.Message,
	})
}
