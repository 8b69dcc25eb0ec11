package export

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/ratecon-intake/internal/pipeline"
)

// DocumentProcessor is the core pipeline entry point.
type DocumentProcessor interface {
	Process(ctx context.Context, pdfPath, template string) (pipeline.Outcome, error)
}

// Item is the result for one file of a batch.
type Item struct {
	Path    string
	Outcome pipeline.Outcome
	Err     error
}

type Summary struct {
	Processed int
	Failed    int
	Elapsed   time.Duration
}

// Runner processes many files with bounded parallelism.
type Runner struct {
	proc     DocumentProcessor
	workers  int
	template string
	logger   *slog.Logger
}

func NewRunner(proc DocumentProcessor, workers int, template string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Runner{proc: proc, workers: workers, template: template, logger: logger}
}

// Run processes paths and returns one Item per path, in input order. A failing file does
// not stop the batch; only ctx cancellation cuts it short.
func (r *Runner) Run(ctx context.Context, paths []string) ([]Item, Summary) {
	start := time.Now()
	items := make([]Item, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, p := range paths {
		items[i].Path = p
		if gctx.Err() != nil {
			items[i].Err = gctx.Err()
			continue
		}
		g.Go(func() error {
			out, err := r.proc.Process(gctx, p, r.template)
			items[i].Outcome = out
			items[i].Err = err
			if err != nil {
				r.logger.Error("batch.file.failed", "path", p, "error", err)
				return nil
			}
			r.logger.Info("batch.file.ok", "path", p, "load_number", out.Record.LoadNumber, "method", out.Method)
			return nil
		})
	}
	_ = g.Wait()

	var sum Summary
	for _, it := range items {
		if it.Err != nil {
			sum.Failed++
		} else {
			sum.Processed++
		}
	}
	sum.Elapsed = time.Since(start)
	r.logger.Info("batch.done", "processed", sum.Processed, "failed", sum.Failed, "elapsed_ms", sum.Elapsed.Milliseconds())
	return items, sum
}
