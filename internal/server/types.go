package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
	"github.com/joseph-ayodele/ratecon-intake/internal/extract"
	"github.com/joseph-ayodele/ratecon-intake/internal/pipeline"
	"github.com/joseph-ayodele/ratecon-intake/internal/profiles"
)

// AccountService is the account surface the API exposes.
type AccountService interface {
	Register(ctx context.Context, tgID int64, username string) (*entity.User, error)
	Authorize(ctx context.Context, tgID int64) (*entity.User, error)
	Status(ctx context.Context, tgID int64) (profiles.Status, error)
	Template(ctx context.Context, tgID int64) (string, error)
	SetTemplate(ctx context.Context, tgID int64, example string) (string, error)
	ResetTemplate(ctx context.Context, tgID int64) error
	GrantPro(ctx context.Context, tgID int64, days int) (time.Time, error)
	IsAdmin(tgID int64) bool
}

type documentProcessor interface {
	Process(ctx context.Context, pdfPath, template string) (pipeline.Outcome, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func(ctx context.Context) error

type Config struct {
	MaxUploadBytes   int64
	ThrottleInterval time.Duration
	TempDir          string
	JobRetention     time.Duration
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	accounts  AccountService
	processor documentProcessor
	queue     pipeline.Enqueuer
	uploads   *UploadStore
	jobs      *JobTracker
	throttle  *Throttle
	health    HealthChecker
	cfg       Config
	logger    *slog.Logger
}

type Deps struct {
	Accounts  AccountService
	Processor documentProcessor
	Queue     pipeline.Enqueuer
	Uploads   *UploadStore
	Jobs      *JobTracker
	Health    HealthChecker
}

func NewServer(deps Deps, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if deps.Uploads == nil {
		deps.Uploads = NewUploadStore()
	}
	if deps.Jobs == nil {
		deps.Jobs = NewJobTracker(cfg.JobRetention)
	}
	return &Server{
		accounts:  deps.Accounts,
		processor: deps.Processor,
		queue:     deps.Queue,
		uploads:   deps.Uploads,
		jobs:      deps.Jobs,
		throttle:  NewThrottle(cfg.ThrottleInterval),
		health:    deps.Health,
		cfg:       cfg,
		logger:    logger,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.route(mux, "POST /v1/users", s.registerHandler)
	s.route(mux, "GET /v1/users/{id}/status", s.statusHandler)
	s.route(mux, "POST /v1/users/{id}/documents", s.uploadHandler)
	s.route(mux, "GET /v1/users/{id}/template", s.getTemplateHandler)
	s.route(mux, "PUT /v1/users/{id}/template", s.setTemplateHandler)
	s.route(mux, "DELETE /v1/users/{id}/template", s.resetTemplateHandler)
	s.route(mux, "POST /v1/admin/users/{id}/pro", s.grantProHandler)
	s.route(mux, "GET /v1/jobs/{id}", s.jobHandler)
	s.route(mux, "POST /v1/extract", s.extractHandler)
	return mux
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, h))
}

// Response types for API endpoints.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
	Error  string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type RegisterRequest struct {
	TelegramID int64  `json:"tg_id"`
	Username   string `json:"username"`
}

type StatusResponse struct {
	profiles.Status
	Text string `json:"text"`
}

type TemplateRequest struct {
	Example string `json:"example"`
}

type TemplateResponse struct {
	Template  string `json:"template"`
	IsDefault bool   `json:"is_default"`
}

type GrantProRequest struct {
	Days int `json:"days"`
}

type GrantProResponse struct {
	TelegramID int64     `json:"tg_id"`
	ExpiryDate time.Time `json:"expiry_date"`
}

type UploadResponse struct {
	JobID    string             `json:"job_id"`
	State    constants.DocState `json:"state"`
	Position int                `json:"position"`
}

type ExtractResponse struct {
	Record    entity.Record         `json:"record"`
	Text      string                `json:"text"`
	Method    string                `json:"method"`
	Pages     int                   `json:"pages"`
	Layers    []extract.LayerReport `json:"layers"`
	Warnings  []string              `json:"warnings,omitempty"`
	ElapsedMS int64                 `json:"elapsed_ms"`
}
