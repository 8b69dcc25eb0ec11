package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/common"
	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
	"github.com/joseph-ayodele/ratecon-intake/internal/extract"
	"github.com/joseph-ayodele/ratecon-intake/internal/ocr"
)

// Outcome is everything one document run produced.
type Outcome struct {
	Record   entity.Record
	Text     string // rendered
	Method   string // text acquisition method
	Pages    int
	TextLen  int
	Layers   []extract.LayerReport
	Warnings []string
	Duration time.Duration
}

// Processor coordinates text acquisition, extraction and rendering for one file.
type Processor struct {
	Logger    *slog.Logger
	Text      TextSource
	Extractor RecordExtractor
	Renderer  TextRenderer
}

func NewProcessor(logger *slog.Logger, text TextSource, extractor RecordExtractor, renderer TextRenderer) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Text: text, Extractor: extractor, Renderer: renderer}
}

// Process runs the whole pipeline over the PDF at pdfPath and renders it with template
// ("" selects the default). Only an unreadable or non-PDF input is an error.
func (p *Processor) Process(ctx context.Context, pdfPath, template string) (Outcome, error) {
	start := time.Now()
	if err := checkPDF(pdfPath); err != nil {
		return Outcome{}, err
	}

	res := p.Acquire(ctx, pdfPath)
	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("acquire text: %w", err)
	}
	rep := p.Extract(ctx, res.Text)
	text := p.Render(rep.Record, template)

	out := Outcome{
		Record:   rep.Record,
		Text:     text,
		Method:   res.Method,
		Pages:    res.Pages,
		TextLen:  len(res.Text),
		Layers:   rep.Layers,
		Warnings: res.Warnings,
		Duration: time.Since(start),
	}
	p.Logger.Info("processor.ok",
		"path", pdfPath,
		"method", out.Method,
		"pages", out.Pages,
		"load_number", out.Record.LoadNumber,
		"elapsed_ms", out.Duration.Milliseconds(),
	)
	return out, nil
}

func (p *Processor) Acquire(ctx context.Context, path string) ocr.Result {
	defer observeStage("acquire", time.Now())
	res := p.Text.Acquire(ctx, path)
	textMethodTotal.WithLabelValues(res.Method).Inc()
	return res
}

func (p *Processor) Extract(ctx context.Context, text string) extract.Report {
	defer observeStage("extract", time.Now())
	return p.Extractor.ExtractReport(ctx, text)
}

func (p *Processor) Render(rec entity.Record, template string) string {
	defer observeStage("render", time.Now())
	return p.Renderer.Render(rec, template)
}

func observeStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func checkPDF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return common.NewAppError("INVALID_DOCUMENT", "cannot open document", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 5)
	n, _ := io.ReadFull(f, head)
	if !constants.LooksLikePDF(head[:n]) {
		return common.NewAppError("INVALID_DOCUMENT", "file is not a PDF", common.ErrInvalidInput)
	}
	return nil
}
