package batch

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether a job in this status will never change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// EnqueueRequest describes a job to add to the batch queue.
type EnqueueRequest struct {
	SourcePath string
	ClipStart  time.Duration
	ClipEnd    time.Duration
	Backend    string
}

// DedupeKey identifies equivalent requests: same source, same clip range,
// same backend.
func (r EnqueueRequest) DedupeKey() string {
	return fmt.Sprintf("%s|%d-%d|%s", r.SourcePath, r.ClipStart.Milliseconds(), r.ClipEnd.Milliseconds(), r.Backend)
}

// SubtitleJob is one unit of batch work. The coordinator's run loop is the
// only writer; everything handed out is a snapshot copy.
type SubtitleJob struct {
	ID         string        `json:"id"`
	SourcePath string        `json:"source_path"`
	ClipStart  time.Duration `json:"clip_start"`
	ClipEnd    time.Duration `json:"clip_end"`
	Backend    string        `json:"backend"`
	Status     Status        `json:"status"`
	Progress   float64       `json:"progress"`
	OutputPath string        `json:"output_path,omitempty"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (j *SubtitleJob) dedupeKey() string {
	return EnqueueRequest{
		SourcePath: j.SourcePath,
		ClipStart:  j.ClipStart,
		ClipEnd:    j.ClipEnd,
		Backend:    j.Backend,
	}.DedupeKey()
}

// Counters aggregates job states. They are recomputed from the job map on
// demand, never maintained incrementally.
type Counters struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}
