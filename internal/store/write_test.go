package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginRun_RequiresIDAndStart(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assert.ErrorContains(t, s.BeginRun(ctx, Run{StartedAt: testStart}), "empty id")
	assert.ErrorContains(t, s.BeginRun(ctx, Run{ID: "r1"}), "missing start time")
}

func TestBeginRun_DuplicateIDFails(t *testing.T) {
	s := createTestStore(t)
	beginTestRun(t, s, "r1", 0)

	err := s.BeginRun(context.Background(), Run{ID: "r1", StartedAt: testStart})
	assert.Error(t, err)
}

func TestWriteEntry_RequiresRun(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteEntry(context.Background(), "missing", Entry{Seq: 1, Time: testStart, Level: "INFO", Message: "x"})
	assert.Error(t, err, "foreign key should reject entries for unknown runs")
}

func TestWriteEntry_DuplicateSeqIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "r1", 0)

	require.NoError(t, s.WriteEntry(ctx, "r1", Entry{Seq: 1, Time: testStart, Level: "INFO", Message: "first"}))
	require.NoError(t, s.WriteEntry(ctx, "r1", Entry{Seq: 1, Time: testStart, Level: "INFO", Message: "retry"}))

	entries, err := s.ReadEntries(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].Message)
}

func TestFinishRun_RecordsSummary(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "r1", 0)

	finished := testStart.Add(90 * time.Second)
	require.NoError(t, s.FinishRun(ctx, "r1", Summary{
		FinishedAt:   finished,
		Status:       StatusFailed,
		Instructions: 6,
		Errors:       1,
		Warnings:     2,
		Screenshots:  []string{"shots/a.png", "shots/b.png"},
	}))

	run, err := s.ReadRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, 6, run.Instructions)
	assert.Equal(t, 1, run.Errors)
	assert.Equal(t, 2, run.Warnings)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, finished.Equal(*run.FinishedAt))

	shots, err := s.ReadScreenshots(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"shots/a.png", "shots/b.png"}, shots)
}

func TestFinishRun_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	err := s.FinishRun(context.Background(), "nope", Summary{Status: StatusPassed})
	assert.True(t, errors.Is(err, ErrRunNotFound))
}
