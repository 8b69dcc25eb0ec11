package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
	"github.com/joseph-ayodele/ratecon-intake/internal/llm"
)

// ErrEmptyAnswer is returned when the backend answers without any content.
var ErrEmptyAnswer = errors.New("empty model answer")

// ExtractFields implements llm.FieldExtractor with a single chat completion.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (entity.Record, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	maxChars := req.MaxChars
	if maxChars <= 0 {
		maxChars = c.cfg.MaxPromptChars
	}
	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.Text),
		"max_chars", maxChars,
	)

	content, err := c.complete(ctx, rid, completion{
		system:      llm.ExtractionSystemPrompt,
		user:        llm.BuildExtractionPrompt(req.Text, maxChars),
		temperature: c.cfg.Temperature,
		timeout:     c.cfg.Timeout,
		jsonMode:    !c.cfg.DisableJSONMode,
	})
	if err != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.Record{}, nil, err
	}

	rec, raw, err := llm.DecodeRecord(content, c.log)
	if err != nil {
		c.log.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "content_bytes", len(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.Record{}, raw, err
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"broker", rec.Broker,
		"load_number", rec.LoadNumber,
		"rate", rec.Rate,
		"pickups", len(rec.Pickups),
		"deliveries", len(rec.Deliveries),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, raw, nil
}

// GenerateTemplate implements llm.TemplateGenerator.
func (c *Client) GenerateTemplate(ctx context.Context, example string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("llm.template.start", "req_id", rid, "model", c.cfg.Model, "example_len", len(example))

	content, err := c.complete(ctx, rid, completion{
		system:      llm.TemplateSystemPrompt,
		user:        llm.BuildTemplatePrompt(example),
		temperature: 0.1,
		timeout:     c.cfg.TemplateTimeout,
	})
	if err != nil {
		c.log.Error("llm.template.http_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	tmpl := llm.CleanTemplate(content)
	if tmpl == "" {
		return "", ErrEmptyAnswer
	}
	c.log.Info("llm.template.ok", "req_id", rid, "template_len", len(tmpl),
		"elapsed_ms", time.Since(start).Milliseconds())
	return tmpl, nil
}

type completion struct {
	system      string
	user        string
	temperature float64
	timeout     time.Duration
	jsonMode    bool
}

func (c *Client) complete(ctx context.Context, rid string, in completion) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", errors.New("llm api key not configured")
	}
	if in.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(in.system),
			openai.UserMessage(in.user),
		},
		Temperature: openai.Float(in.temperature),
	}
	if in.jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		c.log.Warn("llm.no_choices", "req_id", rid)
		return "", ErrEmptyAnswer
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyAnswer
	}
	c.log.Debug("llm.usage", "req_id", rid,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return content, nil
}
