package pipeline

import (
	"context"
	"io"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/async"
	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
	"github.com/joseph-ayodele/ratecon-intake/internal/extract"
	"github.com/joseph-ayodele/ratecon-intake/internal/ocr"
)

// DocumentSource hands out the raw bytes behind an opaque file reference.
type DocumentSource interface {
	Fetch(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Notifier is the chat-transport side of a job: one editable status message plus
// the final answer. Status with an empty text is a state change only; the shown
// message stays as it is.
type Notifier interface {
	Status(ctx context.Context, job async.Job, state constants.DocState, text string) error
	ClearStatus(ctx context.Context, job async.Job) error
	SendResult(ctx context.Context, job async.Job, text string, rec entity.Record) error
	SendError(ctx context.Context, job async.Job, text string) error
}

// Accounts is the slice of the user-profile store the pipeline needs.
// ConsumeUse decides itself whether the user is charged.
type Accounts interface {
	Template(ctx context.Context, userID int64) (string, error)
	ConsumeUse(ctx context.Context, userID int64) error
}

// Enqueuer is the queue registry as seen by transports.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) (int, error)
}

type TextSource interface {
	Acquire(ctx context.Context, path string) ocr.Result
}

type RecordExtractor interface {
	ExtractReport(ctx context.Context, text string) extract.Report
}

type TextRenderer interface {
	Render(rec entity.Record, userTemplate string) string
}
