package common

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joseph-ayodele/ratecon-intake/constants"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "ratecon"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "RATECON"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Geo      GeoConfig      `mapstructure:"geo"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds database-related configuration.
// An empty DSN selects the local sqlite file.
type DatabaseConfig struct {
	DSN              string        `mapstructure:"dsn"`
	SQLitePath       string        `mapstructure:"sqlite_path"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr         string        `mapstructure:"http_addr"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	ThrottleInterval time.Duration `mapstructure:"throttle_interval"`
	MaxUploadBytes   int64         `mapstructure:"max_upload_bytes"`
}

// OCRConfig holds text acquisition configuration
type OCRConfig struct {
	TextLayer     string `mapstructure:"text_layer"` // native | pdftotext
	Pdftotext     string `mapstructure:"pdftotext"`
	Pdftoppm      string `mapstructure:"pdftoppm"`
	Tesseract     string `mapstructure:"tesseract"`
	TesseractLang string `mapstructure:"tesseract_lang"`
	TessdataDir   string `mapstructure:"tessdata_dir"`
	DPI           int    `mapstructure:"dpi"`
	MaxPages      int    `mapstructure:"max_pages"`
}

// LLMConfig holds AI backend configuration. An empty APIKey disables the AI layer.
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxPromptChars int           `mapstructure:"max_prompt_chars"`
}

// GeoConfig holds geocoding and routing configuration
type GeoConfig struct {
	Disabled    bool          `mapstructure:"disabled"`
	GeocoderURL string        `mapstructure:"geocoder_url"`
	RouterURL   string        `mapstructure:"router_url"`
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds orchestrator configuration
type PipelineConfig struct {
	MergePolicy   string        `mapstructure:"merge_policy"` // deterministic-first | ai-first
	JobTimeout    time.Duration `mapstructure:"job_timeout"`
	PulseInterval time.Duration `mapstructure:"pulse_interval"`
	BatchWorkers  int           `mapstructure:"batch_workers"`
}

// AdminConfig lists privileged Telegram IDs. IDs is filled by the loader.
type AdminConfig struct {
	IDs []int64 `mapstructure:"-"`
}

// IsAdmin reports whether id is privileged.
func (a AdminConfig) IsAdmin(id int64) bool {
	for _, v := range a.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// LogConfig controls the slog handler built by the binaries.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

// AIEnabled reports whether an AI backend can be constructed.
func (c *Config) AIEnabled() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}

// Loader handles loading configuration from files, environment and defaults.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader around v; nil uses the global viper instance so cobra flag
// bindings apply.
func NewLoader(v *viper.Viper) *Loader {
	if v == nil {
		v = viper.GetViper()
	}
	return &Loader{v: v}
}

// Viper exposes the underlying instance for flag binding.
func (l *Loader) Viper() *viper.Viper { return l.v }

// Load reads configFile (or searches default locations when empty), overlays environment
// variables, applies defaults and validates the result.
func (l *Loader) Load(configFile string) (*Config, error) {
	cfg, err := l.LoadWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation is Load minus Validate.
func (l *Loader) LoadWithoutValidation(configFile string) (*Config, error) {
	if configFile != "" {
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("$HOME/.config/ratecon")
		l.v.AddConfigPath("/etc/ratecon")
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	ids, err := parseIDs(l.v.Get("admin.ids"))
	if err != nil {
		return nil, NewAppError("CONFIG_ERROR", "admin.ids must be a list of integers", err)
	}
	cfg.Admin.IDs = ids
	return &cfg, nil
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// Plain names used by existing deployments.
	_ = l.v.BindEnv("database.dsn", EnvPrefix+"_DATABASE_DSN", "DATABASE_URL")
	_ = l.v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "DEEPSEEK_API_KEY")
	_ = l.v.BindEnv("admin.ids", EnvPrefix+"_ADMIN_IDS", "ADMIN_IDS")
	_ = l.v.BindEnv("server.http_addr", EnvPrefix+"_SERVER_HTTP_ADDR", "HTTP_ADDR")
	_ = l.v.BindEnv("ocr.tessdata_dir", EnvPrefix+"_OCR_TESSDATA_DIR", "TESSDATA_PREFIX")
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("database.sqlite_path", "./bot_database.db")
	l.v.SetDefault("database.max_conns", 10)
	l.v.SetDefault("database.min_conns", 1)
	l.v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	l.v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	l.v.SetDefault("database.dial_timeout", 3*time.Second)
	l.v.SetDefault("database.statement_timeout", time.Duration(0))

	l.v.SetDefault("server.http_addr", ":8080")
	l.v.SetDefault("server.read_timeout", 30*time.Second)
	l.v.SetDefault("server.write_timeout", 2*time.Minute)
	l.v.SetDefault("server.shutdown_timeout", 30*time.Second)
	l.v.SetDefault("server.throttle_interval", constants.DefaultThrottleEvery)
	l.v.SetDefault("server.max_upload_bytes", int64(20<<20))

	l.v.SetDefault("ocr.text_layer", "native")
	l.v.SetDefault("ocr.pdftotext", "pdftotext")
	l.v.SetDefault("ocr.pdftoppm", "pdftoppm")
	l.v.SetDefault("ocr.tesseract", "tesseract")
	l.v.SetDefault("ocr.tesseract_lang", "eng")
	l.v.SetDefault("ocr.dpi", constants.OCRDPI)
	l.v.SetDefault("ocr.max_pages", 0)

	l.v.SetDefault("llm.base_url", constants.DefaultAIBaseURL)
	l.v.SetDefault("llm.model", constants.DefaultAIModel)
	l.v.SetDefault("llm.temperature", 0.0)
	l.v.SetDefault("llm.timeout", constants.DefaultAITimeout)
	l.v.SetDefault("llm.max_prompt_chars", constants.AIMaxPromptChars)

	l.v.SetDefault("geo.disabled", false)
	l.v.SetDefault("geo.geocoder_url", constants.DefaultGeocoderURL)
	l.v.SetDefault("geo.router_url", constants.DefaultRouterURL)
	l.v.SetDefault("geo.user_agent", constants.DefaultGeoUserAgent)
	l.v.SetDefault("geo.timeout", constants.DefaultGeoTimeout)

	l.v.SetDefault("pipeline.merge_policy", "deterministic-first")
	l.v.SetDefault("pipeline.job_timeout", constants.DefaultJobTimeout)
	l.v.SetDefault("pipeline.pulse_interval", constants.ProgressPulseEvery)
	l.v.SetDefault("pipeline.batch_workers", 4)

	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "text")
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "server.http_addr is required", ErrInvalidInput)
	}
	switch c.OCR.TextLayer {
	case "native", "pdftotext":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("ocr.text_layer %q must be native or pdftotext", c.OCR.TextLayer), ErrInvalidInput)
	}
	if c.OCR.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "ocr.dpi must be positive", ErrInvalidInput)
	}
	switch c.Pipeline.MergePolicy {
	case "deterministic-first", "ai-first":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("pipeline.merge_policy %q must be deterministic-first or ai-first", c.Pipeline.MergePolicy), ErrInvalidInput)
	}
	if c.Pipeline.JobTimeout <= 0 {
		return NewAppError("CONFIG_ERROR", "pipeline.job_timeout must be positive", ErrInvalidInput)
	}
	if c.AIEnabled() && c.LLM.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "llm.base_url is required when an API key is set", ErrInvalidInput)
	}
	return nil
}

func parseIDs(raw any) ([]int64, error) {
	var parts []string
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case string:
		parts = strings.Split(t, ",")
	case []string:
		parts = t
	case []any:
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
	case []int:
		out := make([]int64, 0, len(t))
		for _, v := range t {
			out = append(out, int64(v))
		}
		return out, nil
	case int:
		return []int64{int64(t)}, nil
	case int64:
		return []int64{t}, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", raw)
	}

	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", p, err)
		}
		out = append(out, id)
	}
	return out, nil
}
