package extract

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
)

// ErrNotConfigured is returned by a layer whose backend is missing.
var ErrNotConfigured = errors.New("extractor backend not configured")

// Extractor is one layer of the extraction strategy list: text -> partial record.
// Implementations may fail; the Service turns a failure into "no contribution".
type Extractor interface {
	Name() string
	Extract(ctx context.Context, text string) (entity.Record, error)
}

// MilesResolver computes driving miles between two addresses, "" when unresolvable.
type MilesResolver interface {
	Miles(ctx context.Context, origin, destination string) string
}

// LayerObserver receives one call per layer run (metrics hook).
type LayerObserver func(layer, outcome string, elapsedMS int64)

// Layer outcomes reported to observers and in Report.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)
