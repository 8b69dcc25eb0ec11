package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/async"
	"github.com/joseph-ayodele/ratecon-intake/internal/common"
	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
	"github.com/joseph-ayodele/ratecon-intake/internal/pipeline"
)

// JobView is the public state of one document job.
type JobView struct {
	JobID       uuid.UUID          `json:"job_id"`
	UserID      int64              `json:"user_id"`
	FileName    string             `json:"file_name,omitempty"`
	State       constants.DocState `json:"state"`
	StatusText  string             `json:"status_text,omitempty"`
	Result      string             `json:"result,omitempty"`
	Record      *entity.Record     `json:"record,omitempty"`
	Error       string             `json:"error,omitempty"`
	SubmittedAt time.Time          `json:"submitted_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// JobTracker records job progress for polling clients. It is the HTTP transport's
// pipeline.Notifier: the status message becomes StatusText, the answer becomes Result.
type JobTracker struct {
	mu        sync.RWMutex
	jobs      map[uuid.UUID]*JobView
	retention time.Duration
	now       func() time.Time
}

var _ pipeline.Notifier = (*JobTracker)(nil)

// NewJobTracker keeps finished jobs for retention (default one hour).
func NewJobTracker(retention time.Duration) *JobTracker {
	if retention <= 0 {
		retention = time.Hour
	}
	return &JobTracker{jobs: map[uuid.UUID]*JobView{}, retention: retention, now: time.Now}
}

// Track registers a queued job.
func (t *JobTracker) Track(job async.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.pruneLocked(now)
	t.jobs[job.ID] = &JobView{
		JobID:       job.ID,
		UserID:      job.UserID,
		FileName:    job.FileName,
		State:       constants.DocStateQueued,
		SubmittedAt: job.SubmittedAt,
		UpdatedAt:   now,
	}
}

func (t *JobTracker) Get(id uuid.UUID) (JobView, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.jobs[id]
	if !ok {
		return JobView{}, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	out := *v
	return out, nil
}

// Fail marks a job that never reached a worker.
func (t *JobTracker) Fail(id uuid.UUID, msg string) {
	t.update(id, func(v *JobView) {
		v.State = constants.DocStateFailed
		v.Error = msg
	})
}

func (t *JobTracker) Status(_ context.Context, job async.Job, state constants.DocState, text string) error {
	t.update(job.ID, func(v *JobView) {
		v.State = state
		if text != "" {
			v.StatusText = text
		}
	})
	return nil
}

func (t *JobTracker) ClearStatus(_ context.Context, job async.Job) error {
	t.update(job.ID, func(v *JobView) { v.StatusText = "" })
	return nil
}

func (t *JobTracker) SendResult(_ context.Context, job async.Job, text string, rec entity.Record) error {
	t.update(job.ID, func(v *JobView) {
		v.Result = text
		v.Record = &rec
	})
	return nil
}

func (t *JobTracker) SendError(_ context.Context, job async.Job, text string) error {
	t.update(job.ID, func(v *JobView) { v.Error = text })
	return nil
}

func (t *JobTracker) update(id uuid.UUID, fn func(*JobView)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.jobs[id]; ok {
		fn(v)
		v.UpdatedAt = t.now()
	}
}

func (t *JobTracker) pruneLocked(now time.Time) {
	for id, v := range t.jobs {
		if v.State.Terminal() && now.Sub(v.UpdatedAt) > t.retention {
			delete(t.jobs, id)
		}
	}
}
