package jobs

import "context"

// Store persists job records so the registry survives restarts.
type Store interface {
	LoadJobs(ctx context.Context) ([]*Job, error)
	UpsertJob(ctx context.Context, job *Job) error
	DeleteJob(ctx context.Context, jobID string) error
}

// Notifier receives a snapshot after every state transition of a job.
type Notifier interface {
	Notify(jobID string, snapshot *Job)
}
