package ocr

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/ratecon-intake/constants"
)

// Extraction methods reported in Result.Method.
const (
	MethodPDFText         = "pdf-text"
	MethodPDFOCR          = "pdf-ocr"
	MethodPDFTextDegraded = "pdf-text-degraded" // OCR was needed but failed
)

type Config struct {
	TextLayer string // "native" (default) | "pdftotext"
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	TessdataDir   string // exported as TESSDATA_PREFIX for tesseract
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit
}

type Result struct {
	Text     string
	Pages    int
	Method   string
	Verdict  Verdict // heuristics over the direct text layer
	Duration time.Duration
	Warnings []string
}

type Extractor struct {
	cfg    Config
	runner Runner
	layer  TextLayer
	logger *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the os/exec runner (tests, sandboxes).
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithTextLayer replaces the text-layer reader selected by Config.TextLayer.
func WithTextLayer(l TextLayer) Option {
	return func(e *Extractor) {
		if l != nil {
			e.layer = l
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = constants.OCRDPI
	}

	runner := ExecRunner{Logger: logger}
	if cfg.TessdataDir != "" {
		runner.Env = []string{"TESSDATA_PREFIX=" + cfg.TessdataDir}
	}
	e := &Extractor{cfg: cfg, runner: runner, logger: logger}
	for _, o := range opts {
		o(e)
	}
	if e.layer == nil {
		if cfg.TextLayer == "pdftotext" {
			e.layer = PopplerTextLayer{Binary: cfg.Pdftotext, Runner: e.runner}
		} else {
			e.layer = NativeTextLayer{}
		}
	}
	return e
}

// Acquire produces the best-effort transcript of every page of the PDF at path.
// It never fails: when OCR is needed but unavailable, whatever text exists is returned.
func (e *Extractor) Acquire(ctx context.Context, path string) Result {
	start := time.Now()
	e.logger.Debug("ocr.acquire.start", "path", path)

	var res Result
	pages, err := e.layer.PageTexts(ctx, path)
	if err != nil {
		e.logger.Warn("ocr.text_layer.failed", "path", path, "error", err)
		res.Warnings = append(res.Warnings, "text layer: "+err.Error())
	}
	res.Text = strings.Join(pages, "\n")
	res.Pages = len(pages)
	res.Method = MethodPDFText
	res.Verdict = Assess(res.Text)

	if res.Verdict.NeedsOCR() {
		e.logger.Info("ocr.fallback.start",
			"path", path,
			"broken", res.Verdict.Broken,
			"too_short", res.Verdict.TooShort,
			"text_len", len(strings.TrimSpace(res.Text)),
		)
		txt, n, warns, err := e.pdfToOCR(ctx, path)
		res.Warnings = append(res.Warnings, warns...)
		if err != nil {
			e.logger.Error("ocr.fallback.failed", "path", path, "error", err)
			res.Warnings = append(res.Warnings, "ocr: "+err.Error())
			res.Method = MethodPDFTextDegraded
		} else {
			res.Text = txt
			res.Pages = n
			res.Method = MethodPDFOCR
		}
	}

	res.Text = strings.TrimSpace(res.Text)
	res.Duration = time.Since(start)
	e.logger.Info("ocr.acquire.ok",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"bytes", len(res.Text),
		"warnings", len(res.Warnings),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res
}

// AcquireAsync runs Acquire on its own goroutine so event-driven callers are not blocked.
// The channel receives exactly one Result and is then closed.
func (e *Extractor) AcquireAsync(ctx context.Context, path string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		ch <- e.Acquire(ctx, path)
	}()
	return ch
}
