// Package batch queues subtitle generation jobs and runs them strictly one
// at a time. A job's own chunk transcription is internally concurrent, so
// sequential job execution is what bounds total resource usage.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"subforge/pkg/log"
)

var (
	ErrAlreadyRunning = errors.New("batch is already running")
	ErrEmptyQueue     = errors.New("no pending jobs in queue")
	ErrJobProcessing  = errors.New("job is currently processing")
	ErrJobNotFound    = errors.New("job not found")
)

// Executor runs one job and returns the path of the written subtitle file.
type Executor func(ctx context.Context, job SubtitleJob, progress func(percent float64, message string)) (string, error)

// Coordinator owns the job map. Its run loop is the single writer of job
// state; callers only enqueue, cancel and remove.
type Coordinator struct {
	exec   Executor
	store  Store
	logger *log.Logger

	mu      sync.RWMutex
	jobs    map[string]*SubtitleJob
	order   []string
	dedupe  map[string]string
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewCoordinator(exec Executor, store Store, logger *log.Logger) *Coordinator {
	c := &Coordinator{
		exec:   exec,
		store:  store,
		logger: logger,
		jobs:   make(map[string]*SubtitleJob),
		dedupe: make(map[string]string),
	}
	c.hydrateFromStore(context.Background())
	return c
}

// Enqueue adds a job unless an equivalent one (same source, clip range and
// backend) is already queued or processing. The second return value reports
// whether a new job was created.
func (c *Coordinator) Enqueue(req EnqueueRequest) (*SubtitleJob, bool) {
	now := time.Now()
	key := req.DedupeKey()

	c.mu.Lock()
	if id, ok := c.dedupe[key]; ok {
		if existing, exists := c.jobs[id]; exists {
			snapshot := cloneJob(existing)
			c.mu.Unlock()
			return snapshot, false
		}
		delete(c.dedupe, key)
	}

	job := &SubtitleJob{
		ID:         uuid.NewString(),
		SourcePath: req.SourcePath,
		ClipStart:  req.ClipStart,
		ClipEnd:    req.ClipEnd,
		Backend:    req.Backend,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	c.jobs[job.ID] = job
	c.order = append(c.order, job.ID)
	c.dedupe[key] = job.ID
	snapshot := cloneJob(job)
	c.mu.Unlock()

	c.persistJob(snapshot)
	return snapshot, true
}

func (c *Coordinator) Get(id string) (*SubtitleJob, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	job, ok := c.jobs[id]
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// List returns job snapshots in enqueue order.
func (c *Coordinator) List() []*SubtitleJob {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ret := make([]*SubtitleJob, 0, len(c.order))
	for _, id := range c.order {
		if job, ok := c.jobs[id]; ok {
			ret = append(ret, cloneJob(job))
		}
	}
	return ret
}

// Counters recomputes the aggregate view from job states.
func (c *Coordinator) Counters() Counters {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n Counters
	for _, job := range c.jobs {
		n.Total++
		switch job.Status {
		case StatusPending:
			n.Pending++
		case StatusProcessing:
			n.Processing++
		case StatusCompleted:
			n.Completed++
		case StatusFailed:
			n.Failed++
		case StatusCancelled:
			n.Cancelled++
		}
	}
	return n
}

func (c *Coordinator) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Start launches the run loop in the background. Use Wait to block until
// the batch stops.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if c.nextPendingLocked() == "" {
		c.mu.Unlock()
		return ErrEmptyQueue
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.run(ctx, done)
	return nil
}

// Wait blocks until the current batch run finishes. Returns immediately if
// no run is in flight.
func (c *Coordinator) Wait() {
	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// Cancel requests cooperative cancellation of the current run. The in-flight
// network call may still complete before the job observes it.
func (c *Coordinator) Cancel() {
	c.mu.RLock()
	cancel := c.cancel
	running := c.running
	c.mu.RUnlock()
	if running && cancel != nil {
		cancel()
	}
}

// RemoveJob removes a job unless it is currently processing.
func (c *Coordinator) RemoveJob(id string) error {
	c.mu.Lock()
	job, ok := c.jobs[id]
	if !ok {
		c.mu.Unlock()
		return ErrJobNotFound
	}
	if job.Status == StatusProcessing {
		c.mu.Unlock()
		return ErrJobProcessing
	}
	c.removeLocked(id)
	c.mu.Unlock()

	c.deleteFromStore(id)
	return nil
}

// Clear removes every job that is not currently processing and returns how
// many were removed.
func (c *Coordinator) Clear() int {
	c.mu.Lock()
	removed := make([]string, 0, len(c.jobs))
	for id, job := range c.jobs {
		if job.Status != StatusProcessing {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		c.removeLocked(id)
	}
	c.mu.Unlock()

	for _, id := range removed {
		c.deleteFromStore(id)
	}
	return len(removed)
}

// RemoveByStatus removes all jobs in the given status and returns how many
// were removed. Processing jobs are never removed.
func (c *Coordinator) RemoveByStatus(status Status) int {
	if status == StatusProcessing {
		return 0
	}

	c.mu.Lock()
	removed := make([]string, 0)
	for id, job := range c.jobs {
		if job.Status == status {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		c.removeLocked(id)
	}
	c.mu.Unlock()

	for _, id := range removed {
		c.deleteFromStore(id)
	}
	return len(removed)
}

func (c *Coordinator) run(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
		close(done)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		id := c.nextPendingLocked()
		if id == "" {
			c.mu.Unlock()
			return
		}
		job := c.jobs[id]
		job.Status = StatusProcessing
		job.Progress = 0
		job.UpdatedAt = time.Now()
		snapshot := cloneJob(job)
		c.mu.Unlock()
		c.persistJob(snapshot)

		c.logger.Info("Starting job %s for %s", snapshot.ID, snapshot.SourcePath)
		outputPath, err := c.exec(ctx, *snapshot, func(percent float64, _ string) {
			c.setProgress(id, percent)
		})

		switch {
		case ctx.Err() != nil:
			c.finishJob(id, StatusCancelled, "", "cancelled")
			c.logger.Info("Job %s cancelled", snapshot.ID)
			return
		case err != nil:
			c.finishJob(id, StatusFailed, "", fmt.Sprintf("subtitle generation failed: %v", err))
			c.logger.Error("Job %s failed: %v", snapshot.ID, err)
			return
		default:
			c.finishJob(id, StatusCompleted, outputPath, "")
			c.logger.Info("Job %s completed: %s", snapshot.ID, outputPath)
		}
	}
}

// nextPendingLocked returns the oldest pending job ID, or "".
func (c *Coordinator) nextPendingLocked() string {
	for _, id := range c.order {
		if job, ok := c.jobs[id]; ok && job.Status == StatusPending {
			return id
		}
	}
	return ""
}

func (c *Coordinator) setProgress(id string, percent float64) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[id]
	if !ok || job.Status != StatusProcessing {
		return
	}
	if percent > job.Progress {
		job.Progress = percent
		job.UpdatedAt = time.Now()
	}
}

func (c *Coordinator) finishJob(id string, status Status, outputPath, errMessage string) {
	c.mu.Lock()
	job, ok := c.jobs[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	job.Status = status
	job.OutputPath = outputPath
	job.Error = errMessage
	if status == StatusCompleted {
		job.Progress = 100
	}
	job.UpdatedAt = time.Now()
	c.releaseDedupeLocked(job)
	snapshot := cloneJob(job)
	c.mu.Unlock()

	c.persistJob(snapshot)
}

func (c *Coordinator) removeLocked(id string) {
	if job, ok := c.jobs[id]; ok {
		c.releaseDedupeLocked(job)
	}
	delete(c.jobs, id)
	for i, queued := range c.order {
		if queued == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Coordinator) releaseDedupeLocked(job *SubtitleJob) {
	if job == nil {
		return
	}
	key := job.dedupeKey()
	if id, ok := c.dedupe[key]; ok && id == job.ID {
		delete(c.dedupe, key)
	}
}

func (c *Coordinator) hydrateFromStore(ctx context.Context) {
	if c.store == nil {
		return
	}
	loaded, err := c.store.LoadJobs(ctx)
	if err != nil {
		c.logger.Error("Failed to load jobs from store: %v", err)
		return
	}

	now := time.Now()
	toPersist := make([]*SubtitleJob, 0)

	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].CreatedAt.Before(loaded[j].CreatedAt)
	})

	c.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		// a job interrupted mid-run restarts from scratch
		if job.Status == StatusProcessing {
			job.Status = StatusPending
			job.Progress = 0
			job.UpdatedAt = now
			toPersist = append(toPersist, cloneJob(job))
		}
		c.jobs[job.ID] = job
		c.order = append(c.order, job.ID)
		if !job.Status.Terminal() {
			c.dedupe[job.dedupeKey()] = job.ID
		}
	}
	c.mu.Unlock()

	for _, job := range toPersist {
		c.persistJob(job)
	}
}

func (c *Coordinator) persistJob(job *SubtitleJob) {
	if c.store == nil || job == nil {
		return
	}
	if err := c.store.UpsertJob(context.Background(), job); err != nil {
		c.logger.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func (c *Coordinator) deleteFromStore(id string) {
	if c.store == nil {
		return
	}
	if err := c.store.DeleteJob(context.Background(), id); err != nil {
		c.logger.Error("Failed to delete job %s from store: %v", id, err)
	}
}

func cloneJob(job *SubtitleJob) *SubtitleJob {
	if job == nil {
		return nil
	}
	tmp := *job
	return &tmp
}
