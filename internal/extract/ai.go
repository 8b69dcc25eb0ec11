package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
	"github.com/joseph-ayodele/ratecon-intake/internal/llm"
)

// AIExtractor asks a language model for the full record.
type AIExtractor struct {
	backend  llm.FieldExtractor
	maxChars int
	logger   *slog.Logger
}

// NewAIExtractor wraps backend; a nil backend yields ErrNotConfigured on every call.
func NewAIExtractor(backend llm.FieldExtractor, maxChars int, logger *slog.Logger) *AIExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxChars <= 0 {
		maxChars = constants.AIMaxPromptChars
	}
	return &AIExtractor{backend: backend, maxChars: maxChars, logger: logger}
}

func (a *AIExtractor) Name() string { return "ai" }

func (a *AIExtractor) Configured() bool { return a != nil && a.backend != nil }

func (a *AIExtractor) Extract(ctx context.Context, text string) (entity.Record, error) {
	if !a.Configured() {
		return entity.Record{}, ErrNotConfigured
	}
	start := time.Now()
	rec, raw, err := a.backend.ExtractFields(ctx, llm.ExtractRequest{Text: text, MaxChars: a.maxChars})
	if err != nil {
		a.logger.Warn("extract.ai.failed",
			"error", err,
			"raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.Record{}, err
	}
	return rec.Normalize(), nil
}
