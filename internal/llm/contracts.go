package llm

import (
	"context"

	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
)

type ExtractRequest struct {
	Text     string
	MaxChars int // prompt excerpt cap; <= 0 uses constants.AIMaxPromptChars
}

// FieldExtractor is the interface the extraction layer depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (entity.Record, []byte /*rawJSON*/, error)
}

// TemplateGenerator converts a user's plain example message into template syntax.
type TemplateGenerator interface {
	GenerateTemplate(ctx context.Context, example string) (string, error)
}
