package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MimeLyc/clipwave/internal/jobs"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedExecutor walks a job through every checkpoint once release is closed.
func gatedExecutor(q *jobs.Queue, release <-chan struct{}, artifact string) jobs.Executor {
	return func(ctx context.Context, job *jobs.Job) (*jobs.Outcome, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		for _, cp := range []struct {
			progress int
			step     string
		}{
			{jobs.ProgressAcquired, jobs.StepTranscribing},
			{jobs.ProgressTranscribed, jobs.StepSelecting},
			{jobs.ProgressSelected, jobs.StepRendering},
		} {
			if _, err := q.Checkpoint(job.ID, cp.progress, cp.step); err != nil {
				return nil, err
			}
		}
		if err := os.WriteFile(artifact, []byte("mp4"), 0o644); err != nil {
			return nil, err
		}
		return &jobs.Outcome{ResultRef: artifact}, nil
	}
}

func TestServer_WebSocketStreamsCheckpoints(t *testing.T) {
	srv, q := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	release := make(chan struct{})
	job := q.Submit(jobs.SubmitRequest{SourceURL: "https://example/video", Owner: "user1"})
	q.Start(gatedExecutor(q, release, filepath.Join(t.TempDir(), "out.mp4")))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + job.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var progressSeen []int
	var last jobUpdate
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg jobUpdate
		if err := conn.ReadJSON(&msg); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)
			break
		}
		if len(progressSeen) == 0 {
			close(release)
		}
		assert.Equal(t, "job_update", msg.Type)
		assert.Equal(t, job.ID, msg.JobID)
		progressSeen = append(progressSeen, msg.Data.Progress)
		last = msg
	}

	for i := 1; i < len(progressSeen); i++ {
		assert.GreaterOrEqual(t, progressSeen[i], progressSeen[i-1])
	}
	assert.Equal(t, jobs.StatusCompleted, last.Data.Status)
	assert.Equal(t, 100, last.Data.Progress)
	assert.Equal(t, "/api/videos/"+job.ID, last.Data.VideoURL)
}

func TestServer_WebSocketRejectsUnknownJob(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/missing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SSEStreamsUntilTerminal(t *testing.T) {
	srv, q := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	release := make(chan struct{})
	job := q.Submit(jobs.SubmitRequest{SourceURL: "https://example/video", Owner: "user1"})
	q.Start(gatedExecutor(q, release, filepath.Join(t.TempDir(), "out.mp4")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/jobs/"+job.ID+"/events?user_id=user1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var snapshots []jobResponse
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap jobResponse
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap))
		if len(snapshots) == 0 {
			close(release)
		}
		snapshots = append(snapshots, snap)
	}
	require.NoError(t, scanner.Err())

	require.NotEmpty(t, snapshots)
	final := snapshots[len(snapshots)-1]
	assert.Equal(t, jobs.StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	for i := 1; i < len(snapshots); i++ {
		assert.GreaterOrEqual(t, snapshots[i].Progress, snapshots[i-1].Progress)
	}
}

func TestServer_SSEForbiddenForOtherOwner(t *testing.T) {
	srv, q := newTestServer(t)
	job := q.Submit(jobs.SubmitRequest{SourceURL: "https://example/video", Owner: "user1"})

	rec := do(srv, http.MethodGet, "/api/jobs/"+job.ID+"/events?user_id=user2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFollow_SkipsSnapshotsBufferedBeforeCurrent(t *testing.T) {
	srv, q := newTestServer(t)
	job := q.Submit(jobs.SubmitRequest{SourceURL: "https://example/video", Owner: "user1"})

	sent := make(chan *jobs.Job, 16)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		srv.follow(job.ID, make(chan struct{}), func(j *jobs.Job) error {
			sent <- j
			return nil
		}, nil)
	}()

	var current *jobs.Job
	select {
	case current = <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}
	require.Equal(t, 0, current.Progress)

	at := func(status jobs.Status, progress int, updated time.Time) *jobs.Job {
		snap := *current
		snap.Status = status
		snap.Progress = progress
		snap.UpdatedAt = updated
		return &snap
	}
	later := current.UpdatedAt.Add(time.Second)

	// replays of what the registry already reported when follow read it
	srv.hub.Notify(job.ID, at(jobs.StatusQueued, 0, current.UpdatedAt))
	srv.hub.Notify(job.ID, at(jobs.StatusQueued, 0, current.UpdatedAt.Add(-time.Second)))
	srv.hub.Notify(job.ID, at(jobs.StatusProcessing, 25, later))
	srv.hub.Notify(job.ID, at(jobs.StatusProcessing, 0, later.Add(time.Second)))
	srv.hub.Notify(job.ID, at(jobs.StatusProcessing, 25, later))
	srv.hub.Notify(job.ID, at(jobs.StatusCompleted, 100, later.Add(2*time.Second)))

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("follow did not stop after the terminal snapshot")
	}
	close(sent)

	var progressSeen []int
	for snap := range sent {
		progressSeen = append(progressSeen, snap.Progress)
	}
	assert.Equal(t, []int{25, 100}, progressSeen)
}

func TestNewerSnapshot(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := &jobs.Job{Status: jobs.StatusProcessing, Progress: 50, UpdatedAt: base}

	tests := []struct {
		name string
		snap *jobs.Job
		want bool
	}{
		{"same snapshot", &jobs.Job{Status: jobs.StatusProcessing, Progress: 50, UpdatedAt: base}, false},
		{"older progress", &jobs.Job{Status: jobs.StatusProcessing, Progress: 25, UpdatedAt: base.Add(time.Second)}, false},
		{"later checkpoint", &jobs.Job{Status: jobs.StatusProcessing, Progress: 75, UpdatedAt: base.Add(time.Second)}, true},
		{"failure at same progress", &jobs.Job{Status: jobs.StatusFailed, Progress: 50, UpdatedAt: base}, true},
		{"earlier timestamp", &jobs.Job{Status: jobs.StatusProcessing, Progress: 50, UpdatedAt: base.Add(-time.Second)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newerSnapshot(tt.snap, current))
		})
	}
}
