package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := NewLoader(viper.New()).Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "native", cfg.OCR.TextLayer)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, "https://api.deepseek.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "LazyBot_Logistics/2.0", cfg.Geo.UserAgent)
	assert.Equal(t, "deterministic-first", cfg.Pipeline.MergePolicy)
	assert.Equal(t, 1500*time.Millisecond, cfg.Pipeline.PulseInterval)
	assert.Empty(t, cfg.Admin.IDs)
	assert.False(t, cfg.AIEnabled())
}

func TestLoader_LegacyEnvNames(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/bot")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("ADMIN_IDS", "111, 222,")

	cfg, err := NewLoader(viper.New()).Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@localhost:5432/bot", cfg.Database.DSN)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.True(t, cfg.AIEnabled())
	assert.Equal(t, []int64{111, 222}, cfg.Admin.IDs)
	assert.True(t, cfg.Admin.IsAdmin(222))
	assert.False(t, cfg.Admin.IsAdmin(333))
}

func TestLoader_PrefixedEnvOverridesDefault(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RATECON_PIPELINE_MERGE_POLICY", "ai-first")
	t.Setenv("RATECON_OCR_DPI", "200")

	cfg, err := NewLoader(viper.New()).Load("")
	require.NoError(t, err)
	assert.Equal(t, "ai-first", cfg.Pipeline.MergePolicy)
	assert.Equal(t, 200, cfg.OCR.DPI)
}

func TestLoader_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratecon.yaml")
	content := `
server:
  http_addr: ":9090"
ocr:
  text_layer: pdftotext
admin:
  ids: [42, 43]
geo:
  disabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader(viper.New()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "pdftotext", cfg.OCR.TextLayer)
	assert.Equal(t, []int64{42, 43}, cfg.Admin.IDs)
	assert.True(t, cfg.Geo.Disabled)
}

func TestLoader_MissingExplicitFile(t *testing.T) {
	_, err := NewLoader(viper.New()).Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{HTTPAddr: ":8080"},
			OCR:      OCRConfig{TextLayer: "native", DPI: 300},
			Pipeline: PipelineConfig{MergePolicy: "deterministic-first", JobTimeout: time.Minute},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing addr", mutate: func(c *Config) { c.Server.HTTPAddr = "" }, wantErr: true},
		{name: "bad text layer", mutate: func(c *Config) { c.OCR.TextLayer = "magic" }, wantErr: true},
		{name: "bad dpi", mutate: func(c *Config) { c.OCR.DPI = 0 }, wantErr: true},
		{name: "bad merge policy", mutate: func(c *Config) { c.Pipeline.MergePolicy = "random" }, wantErr: true},
		{name: "api key without base url", mutate: func(c *Config) { c.LLM.APIKey = "k" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 404, HTTPStatus(WrapError(ErrNotFound, "user 1")))
	assert.Equal(t, 402, HTTPStatus(NewAppError("QUOTA", "no uses left", ErrQuotaExceeded)))
	assert.Equal(t, 429, HTTPStatus(ErrThrottled))
	assert.Equal(t, 500, HTTPStatus(os.ErrClosed))
	assert.Equal(t, "QUOTA", ErrorCode(NewAppError("QUOTA", "no uses left", ErrQuotaExceeded)))
	assert.Equal(t, "NOT_FOUND", ErrorCode(ErrNotFound))
}
