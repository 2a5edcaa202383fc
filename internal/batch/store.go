package batch

import "context"

// Store persists job states so a restarted process picks the queue back up.
type Store interface {
	LoadJobs(ctx context.Context) ([]*SubtitleJob, error)
	UpsertJob(ctx context.Context, job *SubtitleJob) error
	DeleteJob(ctx context.Context, jobID string) error
}
