package progress

import (
	"sync"

	"github.com/MimeLyc/clipwave/internal/jobs"
	"github.com/MimeLyc/clipwave/pkg/log"
)

const DefaultBuffer = 16

// Subscription receives job snapshots in the order they were emitted. The
// channel is closed after a terminal snapshot, on Unsubscribe, or when the
// subscriber falls so far behind that its buffer fills.
type Subscription struct {
	id    uint64
	jobID string
	ch    chan *jobs.Job
}

func (s *Subscription) Events() <-chan *jobs.Job {
	return s.ch
}

func (s *Subscription) JobID() string {
	return s.jobID
}

// Hub fans job snapshots out to every subscriber of that job.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]*Subscription
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[uint64]*Subscription),
	}
}

func (h *Hub) Subscribe(jobID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:    h.nextID,
		jobID: jobID,
		ch:    make(chan *jobs.Job, buffer),
	}
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[uint64]*Subscription)
	}
	h.subs[jobID][sub.id] = sub
	return sub
}

// Unsubscribe is idempotent.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

// Notify delivers snapshot to every subscriber of jobID without blocking.
func (h *Hub) Notify(jobID string, snapshot *jobs.Job) {
	if snapshot == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs[jobID] {
		select {
		case sub.ch <- snapshot:
		default:
			log.Warn("Dropping slow subscriber %d of job %s", sub.id, jobID)
			h.removeLocked(sub)
		}
	}

	if snapshot.Status.Terminal() {
		for _, sub := range h.subs[jobID] {
			h.removeLocked(sub)
		}
	}
}

// Subscribers returns the number of live subscriptions for jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

func (h *Hub) removeLocked(sub *Subscription) {
	set, ok := h.subs[sub.jobID]
	if !ok {
		return
	}
	if _, ok := set[sub.id]; !ok {
		return
	}
	delete(set, sub.id)
	close(sub.ch)
	if len(set) == 0 {
		delete(h.subs, sub.jobID)
	}
}
