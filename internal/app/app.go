// Package app assembles the processing stack from configuration for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/ratecon-intake/internal/common"
	"github.com/joseph-ayodele/ratecon-intake/internal/distance"
	"github.com/joseph-ayodele/ratecon-intake/internal/extract"
	"github.com/joseph-ayodele/ratecon-intake/internal/llm/openai"
	"github.com/joseph-ayodele/ratecon-intake/internal/ocr"
	"github.com/joseph-ayodele/ratecon-intake/internal/pipeline"
	"github.com/joseph-ayodele/ratecon-intake/internal/profiles"
	"github.com/joseph-ayodele/ratecon-intake/internal/render"
	"github.com/joseph-ayodele/ratecon-intake/internal/repository"
)

// Stack is the document pipeline built from one Config.
type Stack struct {
	OCR       *ocr.Extractor
	LLM       *openai.Client // nil when no API key is configured
	Distance  *distance.Client
	Extractor *extract.Service
	Renderer  *render.Renderer
	Processor *pipeline.Processor
}

// BuildStack wires text acquisition, extraction and rendering. Missing optional services
// (AI key, geo lookups) disable their layer instead of failing.
func BuildStack(cfg *common.Config, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := extract.ParseMergePolicy(cfg.Pipeline.MergePolicy)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", err.Error(), common.ErrInvalidInput)
	}

	st := &Stack{
		OCR: ocr.NewExtractor(ocr.Config{
			TextLayer:     cfg.OCR.TextLayer,
			Pdftotext:     cfg.OCR.Pdftotext,
			Pdftoppm:      cfg.OCR.Pdftoppm,
			Tesseract:     cfg.OCR.Tesseract,
			TesseractLang: cfg.OCR.TesseractLang,
			TessdataDir:   cfg.OCR.TessdataDir,
			DPI:           cfg.OCR.DPI,
			MaxPages:      cfg.OCR.MaxPages,
		}, logger),
		Renderer: render.NewRenderer(logger),
	}

	opts := []extract.Option{extract.WithLogger(logger), extract.WithObserver(pipeline.ObserveLayer)}
	if !cfg.Geo.Disabled {
		st.Distance = distance.NewClient(distance.Config{
			GeocoderURL: cfg.Geo.GeocoderURL,
			RouterURL:   cfg.Geo.RouterURL,
			UserAgent:   cfg.Geo.UserAgent,
			Timeout:     cfg.Geo.Timeout,
		}, http.DefaultClient, logger)
		opts = append(opts, extract.WithResolver(st.Distance))
	}

	var ai extract.Extractor
	if cfg.AIEnabled() {
		st.LLM = openai.NewClient(openai.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			Temperature:    cfg.LLM.Temperature,
			Timeout:        cfg.LLM.Timeout,
			MaxPromptChars: cfg.LLM.MaxPromptChars,
		}, logger)
		ai = extract.NewAIExtractor(st.LLM, cfg.LLM.MaxPromptChars, logger)
		logger.Info("ai layer enabled", "model", st.LLM.Model(), "policy", policy)
	} else {
		logger.Warn("AI API key not configured, AI extraction will be skipped")
	}

	st.Extractor = extract.NewService(extract.NewRegexExtractor(), ai, policy, opts...)
	st.Processor = pipeline.NewProcessor(logger, st.OCR, st.Extractor, st.Renderer)
	return st, nil
}

// OpenDatabase opens the user store described by cfg.Database.
func OpenDatabase(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*repository.DB, error) {
	db, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		SQLitePath:       cfg.Database.SQLitePath,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// NewAccounts builds the profile service; template conversion uses the AI backend when present.
func NewAccounts(db *repository.DB, cfg *common.Config, st *Stack, logger *slog.Logger) *profiles.Service {
	var opts []profiles.Option
	if st != nil && st.LLM != nil {
		opts = append(opts, profiles.WithTemplateGenerator(st.LLM))
	}
	return profiles.NewService(repository.NewUserRepository(db, logger), cfg.Admin, logger, opts...)
}
