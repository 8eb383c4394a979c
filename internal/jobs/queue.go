package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/clipwave/pkg/file"
	"github.com/MimeLyc/clipwave/pkg/log"
	"github.com/google/uuid"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidProgress = errors.New("progress must not decrease")
	ErrJobNotRunning   = errors.New("job is not processing")
)

const interruptedByRestart = "interrupted by restart"

// Executor runs one job to completion. It is called with the job already in
// processing state and reports intermediate progress through Queue.Checkpoint.
type Executor func(ctx context.Context, job *Job) (*Outcome, error)

type Option func(*Queue)

// WithMaxJobs caps the registry size; the oldest terminal jobs are pruned
// together with their artifacts.
func WithMaxJobs(n int) Option {
	return func(q *Queue) {
		q.maxJobs = n
	}
}

func WithNotifier(n Notifier) Option {
	return func(q *Queue) {
		q.notifier = n
	}
}

type Queue struct {
	workerCount int
	maxJobs     int
	store       Store
	notifier    Notifier

	mu         sync.RWMutex
	jobs       map[string]*Job
	started    bool
	pendingIDs chan string

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueue(workerCount int, store Store, opts ...Option) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		workerCount: workerCount,
		maxJobs:     1000,
		store:       store,
		jobs:        make(map[string]*Job),
		pendingIDs:  make(chan string, 1024),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.hydrateFromStore(ctx)
	return q
}

// Submit records a queued job and schedules it. It never waits on the run.
func (q *Queue) Submit(req SubmitRequest) *Job {
	now := time.Now()
	job := &Job{
		ID:          uuid.NewString(),
		SourceURL:   strings.TrimSpace(req.SourceURL),
		Instruction: req.Instruction,
		Owner:       req.Owner,
		Status:      StatusQueued,
		Progress:    0,
		CurrentStep: StepQueued,
		Segments:    []Segment{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	started := q.started
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	if started {
		q.enqueuePendingID(job.ID)
	}
	log.Info("Job %s queued for %s", job.ID, job.SourceURL)
	return snapshot
}

func (q *Queue) Get(id string) (*Job, bool) {
	q.mu.RLock()
	job, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// List returns snapshots newest first. An empty owner lists every job.
func (q *Queue) List(owner string) []*Job {
	q.mu.RLock()
	ret := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		if owner != "" && job.Owner != owner {
			continue
		}
		ret = append(ret, cloneJob(job))
	}
	q.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		if ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].ID > ret[j].ID
		}
		return ret[i].CreatedAt.After(ret[j].CreatedAt)
	})
	return ret
}

func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var stats Stats
	for _, job := range q.jobs {
		stats.Total++
		switch job.Status {
		case StatusQueued:
			stats.Queued++
		case StatusProcessing:
			stats.Processing++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// Delete removes the job record and its artifact. A run in flight keeps going
// but its next checkpoint fails and whatever it produces is discarded.
func (q *Queue) Delete(id string) (bool, error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return false, nil
	}
	delete(q.jobs, id)
	snapshot := cloneJob(job)
	q.mu.Unlock()

	removeArtifact(snapshot)
	if q.store != nil {
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			return true, fmt.Errorf("delete job %s from store: %w", id, err)
		}
	}
	log.Info("Job %s deleted", id)
	return true, nil
}

// DeleteOlderThan removes terminal jobs created before cutoff and returns
// their IDs. Queued and processing jobs are left alone.
func (q *Queue) DeleteOlderThan(cutoff time.Time) []string {
	q.mu.Lock()
	removed := make([]*Job, 0)
	for id, job := range q.jobs {
		if !job.Status.Terminal() || !job.CreatedAt.Before(cutoff) {
			continue
		}
		delete(q.jobs, id)
		removed = append(removed, cloneJob(job))
	}
	q.mu.Unlock()

	return q.discard(removed)
}

// ActiveIDs returns the IDs of queued and processing jobs.
func (q *Queue) ActiveIDs() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ids := make([]string, 0)
	for id, job := range q.jobs {
		if !job.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	pending := make([]*Job, 0)
	for _, job := range q.jobs {
		if job.Status == StatusQueued {
			pending = append(pending, job)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	ids := make([]string, 0, len(pending))
	for _, job := range pending {
		ids = append(ids, job.ID)
	}
	q.mu.Unlock()

	for _, id := range ids {
		q.enqueuePendingID(id)
	}

	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

// Stop cancels in-flight runs and waits for the workers to exit.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.cancel()
		q.wg.Wait()
	})
}

// Checkpoint advances a processing job's progress and step label, then
// notifies observers. Progress may never decrease.
func (q *Queue) Checkpoint(id string, progress int, step string) (*Job, error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return nil, ErrJobNotFound
	}
	if job.Status != StatusProcessing {
		q.mu.Unlock()
		return nil, ErrJobNotRunning
	}
	if progress < job.Progress || progress >= ProgressCompleted {
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: %d after %d", ErrInvalidProgress, progress, job.Progress)
	}
	job.Progress = progress
	job.CurrentStep = step
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	q.notify(snapshot)
	return snapshot, nil
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case id := <-q.pendingIDs:
			job, ok := q.markRunning(id)
			if !ok {
				continue
			}

			outcome, err := exec(q.ctx, job)
			if err == nil && (outcome == nil || outcome.ResultRef == "") {
				err = errors.New("run finished without an artifact")
			}
			if err != nil {
				q.markFailed(id, err)
				continue
			}
			q.markCompleted(id, outcome)
		}
	}
}

func (q *Queue) enqueuePendingID(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() {
			select {
			case q.pendingIDs <- id:
			case <-q.ctx.Done():
			}
		}()
	}
}

func (q *Queue) markRunning(id string) (*Job, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusQueued {
		q.mu.Unlock()
		return nil, false
	}
	job.Status = StatusProcessing
	job.Progress = ProgressStarted
	job.CurrentStep = StepDownloading
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	q.notify(snapshot)
	log.Info("Job %s started", id)
	return cloneJob(snapshot), true
}

func (q *Queue) markCompleted(id string, outcome *Outcome) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusProcessing {
		q.mu.Unlock()
		// deleted while running: nobody owns the artifact any more
		if err := file.RemoveIfExists(outcome.ResultRef); err != nil {
			log.Warn("Failed to remove orphaned artifact %s: %v", outcome.ResultRef, err)
		}
		return
	}
	job.Status = StatusCompleted
	job.Progress = ProgressCompleted
	job.CurrentStep = StepCompleted
	job.ResultRef = outcome.ResultRef
	job.Segments = append([]Segment{}, outcome.Segments...)
	job.Error = ""
	job.UpdatedAt = time.Now()
	pruned := q.pruneTerminalJobsLocked(id)
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	q.notify(snapshot)
	q.discard(pruned)
	log.Info("Job %s completed with %d segments", id, len(snapshot.Segments))
}

func (q *Queue) markFailed(id string, err error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusProcessing {
		q.mu.Unlock()
		return
	}
	job.Status = StatusFailed
	job.CurrentStep = StepFailed
	job.Error = err.Error()
	job.ResultRef = ""
	job.Segments = []Segment{}
	job.UpdatedAt = time.Now()
	pruned := q.pruneTerminalJobsLocked(id)
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	q.notify(snapshot)
	q.discard(pruned)
	log.Error("Job %s failed: %v", id, err)
}

func (q *Queue) pruneTerminalJobsLocked(keepID string) []*Job {
	if q.maxJobs <= 0 || len(q.jobs) <= q.maxJobs {
		return nil
	}

	terminal := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		if job.Status.Terminal() && job.ID != keepID {
			terminal = append(terminal, job)
		}
	}
	if len(terminal) == 0 {
		return nil
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].UpdatedAt.Before(terminal[j].UpdatedAt)
	})

	toRemove := min(len(q.jobs)-q.maxJobs, len(terminal))
	pruned := make([]*Job, 0, toRemove)
	for i := 0; i < toRemove; i++ {
		delete(q.jobs, terminal[i].ID)
		pruned = append(pruned, cloneJob(terminal[i]))
	}
	return pruned
}

// discard releases artifacts and store rows of jobs already dropped from the map.
func (q *Queue) discard(removed []*Job) []string {
	ids := make([]string, 0, len(removed))
	for _, job := range removed {
		removeArtifact(job)
		if q.store != nil {
			if err := q.store.DeleteJob(context.Background(), job.ID); err != nil {
				log.Error("Failed to delete job %s from store: %v", job.ID, err)
			}
		}
		ids = append(ids, job.ID)
	}
	return ids
}

func (q *Queue) hydrateFromStore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load jobs from store: %v", err)
		return
	}

	now := time.Now()
	toPersist := make([]*Job, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		if job.Status == StatusProcessing {
			// the run and its temp storage died with the previous process
			job.Status = StatusFailed
			job.CurrentStep = StepFailed
			job.Error = interruptedByRestart
			job.ResultRef = ""
			job.UpdatedAt = now
			toPersist = append(toPersist, cloneJob(job))
		}
		if job.Segments == nil {
			job.Segments = []Segment{}
		}
		q.jobs[job.ID] = job
	}
	q.mu.Unlock()

	for _, job := range toPersist {
		q.persistJob(job)
	}
	if len(loaded) > 0 {
		log.Info("Restored %d jobs from store (%d interrupted)", len(loaded), len(toPersist))
	}
}

func (q *Queue) persistJob(job *Job) {
	if q.store == nil || job == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func (q *Queue) notify(job *Job) {
	if q.notifier == nil {
		return
	}
	q.notifier.Notify(job.ID, cloneJob(job))
}

func removeArtifact(job *Job) {
	if job == nil || job.ResultRef == "" {
		return
	}
	if err := file.RemoveIfExists(job.ResultRef); err != nil {
		log.Warn("Failed to remove artifact %s: %v", job.ResultRef, err)
	}
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	if job.Segments != nil {
		tmp.Segments = append([]Segment{}, job.Segments...)
	}
	return &tmp
}
