package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/common"
)

// Registry keeps one FIFO queue and one worker goroutine per user.
// Queues are created on the first job and removed once drained.
type Registry struct {
	handler  Handler
	logger   *slog.Logger
	timeout  time.Duration
	observer func(active int)

	mu     sync.Mutex
	queues map[int64]*userQueue
	closed bool
	wg     sync.WaitGroup
}

type userQueue struct {
	jobs []Job
	busy bool
}

type Option func(*Registry)

func WithHandler(h Handler) Option {
	return func(r *Registry) { r.handler = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithObserver is called with the number of live user workers whenever it changes.
func WithObserver(f func(active int)) Option {
	return func(r *Registry) { r.observer = f }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger:  slog.Default(),
		timeout: constants.DefaultJobTimeout,
		queues:  make(map[int64]*userQueue),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) Enqueue(_ context.Context, job Job) (int, error) {
	if r.handler == nil {
		return 0, errors.New("registry has no handler")
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("cannot enqueue: registry is shutting down", "user_id", job.UserID, "job_id", job.ID)
		return 0, common.NewAppError("SHUTTING_DOWN", "not accepting documents", common.ErrShuttingDown)
	}
	q, ok := r.queues[job.UserID]
	if !ok {
		q = &userQueue{}
		r.queues[job.UserID] = q
		r.wg.Add(1)
	}
	q.jobs = append(q.jobs, job)
	ahead := len(q.jobs) - 1
	if q.busy {
		ahead++
	}
	active := len(r.queues)
	r.mu.Unlock()

	if !ok {
		r.notify(active)
		go r.work(job.UserID, q)
	}
	r.logger.Info("queued document", "user_id", job.UserID, "job_id", job.ID, "ahead", ahead)
	return ahead, nil
}

// work drains q strictly in arrival order and removes the queue once empty.
func (r *Registry) work(userID int64, q *userQueue) {
	defer r.wg.Done()
	r.logger.Debug("worker started", "user_id", userID)

	for {
		r.mu.Lock()
		if len(q.jobs) == 0 {
			delete(r.queues, userID)
			active := len(r.queues)
			r.mu.Unlock()
			r.notify(active)
			r.logger.Debug("worker stopped", "user_id", userID)
			return
		}
		job := q.jobs[0]
		q.jobs[0] = Job{}
		q.jobs = q.jobs[1:]
		q.busy = true
		r.mu.Unlock()

		r.run(job)

		r.mu.Lock()
		q.busy = false
		r.mu.Unlock()
	}
}

func (r *Registry) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("job handler panicked", "user_id", job.UserID, "job_id", job.ID, "panic", fmt.Sprint(p))
		}
	}()
	start := time.Now()
	r.handler.Handle(ctx, job)
	r.logger.Info("job finished",
		"user_id", job.UserID,
		"job_id", job.ID,
		"waited_ms", start.Sub(job.SubmittedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

func (r *Registry) notify(active int) {
	if r.observer != nil {
		r.observer(active)
	}
}

// Pending reports queued (not yet started) jobs of a user.
func (r *Registry) Pending(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.queues[userID]; ok {
		return len(q.jobs)
	}
	return 0
}

// Active reports the number of live user workers.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}

// Shutdown stops accepting jobs and waits for every queue to drain or ctx to end.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); r.wg.Wait() }()

	select {
	case <-ctx.Done():
		r.logger.Warn("shutdown interrupted by context")
	case <-done:
		r.logger.Info("queues drained, shutdown complete")
	}
}
