package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
)

// LayerReport describes one layer run.
type LayerReport struct {
	Name    string        `json:"name"`
	Outcome string        `json:"outcome"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Report is the merged record plus how it was obtained.
type Report struct {
	Record          entity.Record
	Layers          []LayerReport
	MilesBackfilled bool
}

// Service runs the extractor strategy list and merges the partial records.
type Service struct {
	layers   []Extractor
	resolver MilesResolver
	policy   MergePolicy
	observer LayerObserver
	logger   *slog.Logger
}

type Option func(*Service)

func WithResolver(r MilesResolver) Option { return func(s *Service) { s.resolver = r } }

func WithObserver(o LayerObserver) Option { return func(s *Service) { s.observer = o } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService orders the deterministic and AI layers by policy. ai may be nil.
func NewService(deterministic Extractor, ai Extractor, policy MergePolicy, opts ...Option) *Service {
	s := &Service{policy: policy, logger: slog.Default()}
	if s.policy == "" {
		s.policy = DeterministicFirst
	}
	for _, o := range opts {
		o(s)
	}
	if a, ok := ai.(*AIExtractor); ok && !a.Configured() {
		ai = nil
	}
	switch {
	case ai == nil:
		s.layers = []Extractor{deterministic}
	case s.policy == AIFirst:
		s.layers = []Extractor{ai, deterministic}
	default:
		s.layers = []Extractor{deterministic, ai}
	}
	return s
}

func (s *Service) Policy() MergePolicy { return s.policy }

// Layers reports the layer names in run order.
func (s *Service) Layers() []string {
	names := make([]string, 0, len(s.layers))
	for _, l := range s.layers {
		names = append(names, l.Name())
	}
	return names
}

// Extract returns the best-effort record; it never fails.
func (s *Service) Extract(ctx context.Context, text string) entity.Record {
	return s.ExtractReport(ctx, text).Record
}

// ExtractReport runs the layers in order. A layer after the first runs only while the
// record is still incomplete; a failing layer contributes nothing.
func (s *Service) ExtractReport(ctx context.Context, text string) Report {
	rid := uuid.New().String()
	start := time.Now()
	s.logger.Info("extract.start", "req_id", rid, "policy", s.policy, "text_len", len(text), "layers", s.Layers())

	rep := Report{Record: entity.Record{}.Normalize()}
	for i, layer := range s.layers {
		lr := LayerReport{Name: layer.Name()}
		if i > 0 && !rep.Record.Incomplete() {
			lr.Outcome = OutcomeSkipped
			rep.Layers = append(rep.Layers, lr)
			s.observe(lr)
			continue
		}

		t0 := time.Now()
		partial, err := s.runLayer(ctx, layer, text)
		lr.Elapsed = time.Since(t0)
		switch {
		case err != nil:
			lr.Outcome = OutcomeError
			lr.Error = err.Error()
			s.logger.Warn("extract.layer.failed", "req_id", rid, "layer", lr.Name, "error", err,
				"elapsed_ms", lr.Elapsed.Milliseconds())
		case partial.IsEmpty():
			lr.Outcome = OutcomeEmpty
		default:
			lr.Outcome = OutcomeOK
			rep.Record = fillGaps(rep.Record, partial)
		}
		rep.Layers = append(rep.Layers, lr)
		s.observe(lr)
	}

	rep.Record, rep.MilesBackfilled = s.backfillMiles(ctx, rid, rep.Record)

	s.logger.Info("extract.ok",
		"req_id", rid,
		"load_number", rep.Record.LoadNumber,
		"rate", rep.Record.Rate,
		"total_miles", rep.Record.TotalMiles,
		"pickups", len(rep.Record.Pickups),
		"deliveries", len(rep.Record.Deliveries),
		"miles_backfilled", rep.MilesBackfilled,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rep
}

// runLayer converts panics into errors so one misbehaving layer cannot sink extraction.
func (s *Service) runLayer(ctx context.Context, layer Extractor, text string) (rec entity.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("extractor panic")
			s.logger.Error("extract.layer.panic", "layer", layer.Name(), "panic", r)
		}
	}()
	return layer.Extract(ctx, text)
}

func (s *Service) backfillMiles(ctx context.Context, rid string, rec entity.Record) (entity.Record, bool) {
	if s.resolver == nil || !rec.MilesMissing() || len(rec.Pickups) == 0 || len(rec.Deliveries) == 0 {
		return rec, false
	}
	origin := rec.Pickups[0].Address
	dest := rec.Deliveries[len(rec.Deliveries)-1].Address
	miles := s.resolver.Miles(ctx, origin, dest)
	s.logger.Debug("extract.miles.backfill", "req_id", rid, "miles", miles)
	rec.TotalMiles = miles
	return rec, true
}

func (s *Service) observe(lr LayerReport) {
	if s.observer != nil {
		s.observer(lr.Name, lr.Outcome, lr.Elapsed.Milliseconds())
	}
}
