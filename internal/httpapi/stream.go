package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/clipwave/internal/jobs"
	"github.com/MimeLyc/clipwave/internal/progress"
	"github.com/MimeLyc/clipwave/pkg/log"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	keepAlive      = 15 * time.Second
)

type jobUpdate struct {
	Type  string      `json:"type"`
	JobID string      `json:"job_id"`
	Data  jobResponse `json:"data"`
}

func newJobUpdate(job *jobs.Job) jobUpdate {
	return jobUpdate{Type: "job_update", JobID: job.ID, Data: newJobResponse(job)}
}

// follow subscribes to jobID and calls send with the current snapshot, then
// with every later one, until the job is terminal, send fails or done fires.
// It reports false when the job does not exist.
func (s *Server) follow(jobID string, done <-chan struct{}, send func(*jobs.Job) error, ping func() error) bool {
	// subscribe before reading the current state so no checkpoint is missed
	sub := s.hub.Subscribe(jobID, progress.DefaultBuffer)
	defer s.hub.Unsubscribe(sub)

	current, ok := s.queue.Get(jobID)
	if !ok {
		return false
	}
	if err := send(current); err != nil || current.Status.Terminal() {
		return true
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return true
		case snap, ok := <-sub.Events():
			if !ok {
				// closed after a terminal snapshot or because we fell behind;
				// either way the registry holds the state to finish with
				if final, found := s.queue.Get(jobID); found && newerSnapshot(final, current) {
					_ = send(final)
				}
				return true
			}
			if !newerSnapshot(snap, current) {
				// buffered between Subscribe and Get, already covered by current
				continue
			}
			current = snap
			if err := send(snap); err != nil || snap.Status.Terminal() {
				return true
			}
		case <-ticker.C:
			if ping != nil {
				if err := ping(); err != nil {
					return true
				}
			}
		}
	}
}

// newerSnapshot reports whether snap moves an observer forward from current.
// Progress never goes back; a terminal state always follows a live one.
func newerSnapshot(snap, current *jobs.Job) bool {
	if snap.Progress < current.Progress {
		return false
	}
	if snap.Status.Terminal() && !current.Status.Terminal() {
		return true
	}
	return snap.UpdatedAt.After(current.UpdatedAt)
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, status := s.ownedJob(r, jobID); status != http.StatusOK {
		writeError(w, status, http.StatusText(status))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(job *jobs.Job) error {
		payload, err := json.Marshal(newJobResponse(job))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: job_update\ndata: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	ping := func() error {
		if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	s.follow(jobID, r.Context().Done(), send, ping)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	jobID, action, ok := parseIDRoute(r.URL.Path, "/ws/")
	if !ok || action != "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if _, status := s.ownedJob(r, jobID); status != http.StatusOK {
		writeError(w, status, http.StatusText(status))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		log.Warn("WebSocket upgrade for job %s failed: %v", jobID, err)
		return
	}
	defer conn.Close()

	// the read loop notices the client going away; its messages are ignored
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(job *jobs.Job) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(newJobUpdate(job))
	}
	ping := func() error {
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
	}

	s.follow(jobID, closed, send, ping)
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
		time.Now().Add(wsWriteTimeout),
	)
}
