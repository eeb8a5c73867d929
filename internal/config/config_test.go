package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/datacloak/internal/privacy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestGetDefaultsMatchEngineDefaults(t *testing.T) {
	cfg := GetDefaults()
	require.NoError(t, validateConfig(cfg))

	engine, err := cfg.PrivacyEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, privacy.DefaultEngineConfig(), engine)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  email_validation: regex
  credit_card_validation: basic
  max_text_length: 2048
  regex_timeout: 250ms
server:
  port: 9090
  echo_original: true
logging:
  level: debug
  format: console
stats:
  enabled: true
  redis_url: redis://:secret@cache:6379/1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "regex", cfg.Engine.EmailValidation)
	assert.Equal(t, "basic", cfg.Engine.CreditCardValidation)
	assert.Equal(t, 2048, cfg.Engine.MaxTextLength)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.RegexTimeout)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.EchoOriginal)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Stats.Enabled)

	// untouched sections keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 500, cfg.Batch.BatchSize)

	engine, err := cfg.PrivacyEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, privacy.EmailValidationRegex, engine.EmailValidation)
	assert.Equal(t, privacy.CreditCardValidationBasic, engine.CreditCardValidation)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("DATACLOAK_ENGINE_MAX_TEXT_LENGTH", "512")
	t.Setenv("DATACLOAK_SERVER_PORT", "7070")

	path := writeConfig(t, "logging:\n  level: warn\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Engine.MaxTextLength)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown email mode", "engine:\n  email_validation: strict\n"},
		{"unknown card mode", "engine:\n  credit_card_validation: checksum\n"},
		{"zero max length", "engine:\n  max_text_length: 0\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"bad log level", "logging:\n  level: verbose\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"bad rate limit", "rate_limit:\n  enabled: true\n  burst: 0\n"},
		{"audit without url", "audit:\n  enabled: true\n  database_url: \"\"\n"},
		{"zero workers", "batch:\n  worker_count: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestYAMLMasksCredentials(t *testing.T) {
	cfg := GetDefaults()
	cfg.Stats.RedisURL = "redis://:hunter2@cache:6379/0"
	cfg.WebSocket.Password = "admin-pass"

	out, err := cfg.YAML()
	require.NoError(t, err)

	text := string(out)
	assert.NotContains(t, text, "hunter2")
	assert.NotContains(t, text, "admin-pass")
	assert.NotContains(t, text, "datacloak:datacloak@")
	assert.Contains(t, text, "max_text_length: 100000")

	// the original is not modified
	assert.Equal(t, "admin-pass", cfg.WebSocket.Password)
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "postgres://user:***@db:5432/app", MaskURL("postgres://user:pw@db:5432/app"))
	assert.Equal(t, "redis://cache:6379/0", MaskURL("redis://cache:6379/0"))
	assert.Equal(t, "not a url", MaskURL("not a url"))
}

func TestWatchReportsChanges(t *testing.T) {
	path := writeConfig(t, "engine:\n  max_text_length: 1000\n")

	changes := make(chan *Config, 4)
	cfg, err := Watch(path, func(c *Config) { changes <- c }, func(error) {})
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Engine.MaxTextLength)

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_text_length: 2000\n"), 0o600))

	select {
	case updated := <-changes:
		assert.Equal(t, 2000, updated.Engine.MaxTextLength)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}
