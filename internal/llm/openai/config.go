package openai

import (
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/joseph-ayodele/ratecon-intake/constants"
)

// Config for any OpenAI-compatible chat completions backend (DeepSeek by default).
type Config struct {
	APIKey          string        // if empty, falls back to env DEEPSEEK_API_KEY
	BaseURL         string        // default https://api.deepseek.com/v1
	Model           string        // default deepseek-chat
	Temperature     float64       // extraction temperature, 0 for deterministic answers
	Timeout         time.Duration // per extraction request
	TemplateTimeout time.Duration // per template generation request
	MaxPromptChars  int           // document excerpt cap
	MaxRetries      int           // SDK retries on 429/5xx; negative disables
	DisableJSONMode bool          // some compatible servers reject response_format
}

type Client struct {
	cfg Config
	api openai.Client
	log *slog.Logger
}

// NewClient builds the backend. Extra request options are appended after the defaults,
// so tests can point the SDK at an httptest server.
func NewClient(cfg Config, logger *slog.Logger, opts ...option.RequestOption) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = constants.DefaultAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = constants.DefaultAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultAITimeout
	}
	if cfg.TemplateTimeout <= 0 {
		cfg.TemplateTimeout = constants.TemplateAITimeout
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = constants.AIMaxPromptChars
	}
	if logger == nil {
		logger = slog.Default()
	}

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(retries),
	}
	return &Client{
		cfg: cfg,
		api: openai.NewClient(append(base, opts...)...),
		log: logger,
	}
}

// Model reports the configured model name.
func (c *Client) Model() string { return c.cfg.Model }
