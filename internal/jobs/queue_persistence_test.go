package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_RecoversQueuedAndInterruptedJobsFromStore(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.jobs["queued-1"] = &Job{
		ID:        "queued-1",
		SourceURL: "https://example.test/1",
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	store.jobs["running-1"] = &Job{
		ID:          "running-1",
		SourceURL:   "https://example.test/2",
		Status:      StatusProcessing,
		Progress:    50,
		CurrentStep: StepSelecting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	q := NewQueue(1, store)

	interrupted, ok := q.Get("running-1")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, interrupted.Status)
	assert.Equal(t, "interrupted by restart", interrupted.Error)
	assert.Equal(t, 50, interrupted.Progress)

	persisted, ok := store.get("running-1")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, persisted.Status)

	q.Start(func(_ context.Context, _ *Job) (*Outcome, error) {
		return &Outcome{ResultRef: "/tmp/none.mp4"}, nil
	})
	defer q.Stop()

	waitStatus(t, q, "queued-1", StatusCompleted)

	require.Eventually(t, func() bool {
		j, ok := store.get("queued-1")
		return ok && j.Status == StatusCompleted && j.Progress == 100
	}, time.Second, 10*time.Millisecond)

	// terminal jobs never move again
	still, _ := q.Get("running-1")
	assert.Equal(t, StatusFailed, still.Status)
}
