package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/async"
	"github.com/joseph-ayodele/ratecon-intake/internal/extract"
)

type Config struct {
	PulseEvery    time.Duration // default 1.5s
	TempDir       string        // "" = os.TempDir()
	NotifyTimeout time.Duration // budget for failure/cleanup messages after the job context ended
}

// Orchestrator runs one queued document through the pipeline and reports on it.
// It implements async.Handler.
type Orchestrator struct {
	proc     *Processor
	source   DocumentSource
	notifier Notifier
	accounts Accounts
	cfg      Config
	logger   *slog.Logger
}

var _ async.Handler = (*Orchestrator)(nil)

func NewOrchestrator(proc *Processor, source DocumentSource, notifier Notifier, accounts Accounts, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PulseEvery <= 0 {
		cfg.PulseEvery = constants.ProgressPulseEvery
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &Orchestrator{
		proc:     proc,
		source:   source,
		notifier: notifier,
		accounts: accounts,
		cfg:      cfg,
		logger:   logger,
	}
}

// Handle never panics and never returns an error: failures become a user-visible
// message, and the temp file and status message are always released.
func (o *Orchestrator) Handle(ctx context.Context, job async.Job) {
	start := time.Now()
	log := o.logger.With("job_id", job.ID, "user_id", job.UserID)
	rep := NewStatusReporter(o.notifier, job, log)
	var tmpPath string

	err := o.safeRun(ctx, job, rep, &tmpPath)

	// The job context may be expired; cleanup still needs to reach the transport.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.NotifyTimeout)
	defer cancel()

	if err != nil {
		documentsTotal.WithLabelValues("failed").Inc()
		log.Error("pipeline.failed", "state", rep.State(), "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if serr := o.notifier.SendError(cctx, job, FailureText(err)); serr != nil {
			log.Warn("failure message not delivered", "error", serr)
		}
		rep.Update(cctx, constants.DocStateFailed, FailureText(err))
	} else {
		documentsTotal.WithLabelValues("delivered").Inc()
		log.Info("pipeline.delivered", "elapsed_ms", time.Since(start).Milliseconds())
	}

	if tmpPath != "" {
		if rerr := os.Remove(tmpPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			log.Warn("temp file not removed", "path", tmpPath, "error", rerr)
		}
	}
	rep.Clear(cctx)
}

func (o *Orchestrator) safeRun(ctx context.Context, job async.Job, rep *StatusReporter, tmpPath *string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("internal failure: %v", p)
		}
	}()
	return o.run(ctx, job, rep, tmpPath)
}

func (o *Orchestrator) run(ctx context.Context, job async.Job, rep *StatusReporter, tmpPath *string) error {
	rep.Update(ctx, constants.DocStateDownloading, TextDownloading)
	path, err := o.download(ctx, job)
	*tmpPath = path
	if err != nil {
		return err
	}
	if err := checkPDF(path); err != nil {
		return err
	}

	rep.Update(ctx, constants.DocStateExtractingText, TextReading)
	res := o.proc.Acquire(ctx, path)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reading document: %w", err)
	}

	report := o.extractWithPulse(ctx, rep, res.Text)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("extracting fields: %w", err)
	}

	tmpl, err := o.accounts.Template(ctx, job.UserID)
	if err != nil {
		o.logger.Warn("user template unavailable, using default", "user_id", job.UserID, "error", err)
		tmpl = ""
	}
	rep.Update(ctx, constants.DocStateRendering, TextDone)
	text := o.proc.Render(report.Record, tmpl)
	if err := o.notifier.SendResult(ctx, job, text, report.Record); err != nil {
		return fmt.Errorf("deliver result: %w", err)
	}
	rep.Update(ctx, constants.DocStateDelivered, TextDone)

	if err := o.accounts.ConsumeUse(ctx, job.UserID); err != nil {
		o.logger.Error("usage not recorded", "user_id", job.UserID, "error", err)
	}
	return nil
}

// extractWithPulse keeps the status moving while extraction (usually the AI call) runs.
// The ticker never outlives this call, even when extraction panics.
func (o *Orchestrator) extractWithPulse(ctx context.Context, rep *StatusReporter, text string) extract.Report {
	stop := startPulse(ctx, rep, o.cfg.PulseEvery)
	defer stop()
	return o.proc.Extract(ctx, text)
}

// download copies the document into a temp file and returns its path, also on error
// once the file exists.
func (o *Orchestrator) download(ctx context.Context, job async.Job) (string, error) {
	defer observeStage("download", time.Now())
	rc, err := o.source.Fetch(ctx, job.FileRef)
	if err != nil {
		return "", fmt.Errorf("fetch document: %w", err)
	}
	defer func() { _ = rc.Close() }()

	f, err := os.CreateTemp(o.cfg.TempDir, "rc-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return path, fmt.Errorf("save document: %w", err)
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("save document: %w", err)
	}
	return path, nil
}
