package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one uploaded document waiting for its owner's worker.
type Job struct {
	ID          uuid.UUID
	UserID      int64
	FileRef     string // opaque reference understood by the document source
	FileName    string
	SubmittedAt time.Time
	TraceID     string
}

// Handler processes one job. It owns error reporting; the registry only logs panics.
type Handler interface {
	Handle(ctx context.Context, job Job)
}

type HandlerFunc func(ctx context.Context, job Job)

func (f HandlerFunc) Handle(ctx context.Context, job Job) { f(ctx, job) }

// Queue accepts jobs; Enqueue reports how many jobs of the same user are ahead.
type Queue interface {
	Enqueue(ctx context.Context, job Job) (int, error)
	Shutdown(ctx context.Context)
}
