package ffi

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/datacloak/internal/privacy"
)

func TestRegistryLifecycle(t *testing.T) {
	registry := NewRegistry(nil)

	h, err := registry.Create(privacy.DefaultEngineConfig())
	require.NoError(t, err)
	assert.NotZero(t, h)
	assert.Equal(t, 1, registry.Len())

	other, err := registry.Create(privacy.DefaultEngineConfig())
	require.NoError(t, err)
	assert.NotEqual(t, h, other)

	registry.Destroy(h)
	registry.Destroy(h)
	registry.Destroy(0)
	registry.Destroy(Handle(9999))
	assert.Equal(t, 1, registry.Len())

	_, err = registry.DetectPII(h, "john@test.com")
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestDetectPIIJSON(t *testing.T) {
	registry := NewRegistry(nil)
	h, err := registry.Create(privacy.DefaultEngineConfig())
	require.NoError(t, err)

	out, err := registry.DetectPII(h, "Contact us at support@example.com for help")
	require.NoError(t, err)

	var raw []map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, map[string]interface{}{
		"field_name": "text",
		"pii_type":   "email",
		"confidence": 0.95,
		"sample":     "support@example.com",
		"masked":     "s***@example.com",
	}, raw[0])

	out, err = registry.DetectPII(h, "no pii")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestMaskTextJSON(t *testing.T) {
	registry := NewRegistry(nil)
	h, err := registry.Create(privacy.DefaultEngineConfig())
	require.NoError(t, err)

	out, err := registry.MaskText(h, "Call 555-123-4567 or email john@test.com")
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &raw))
	for _, key := range []string{"original_text", "masked_text", "detected_pii", "metadata"} {
		assert.Contains(t, raw, key)
	}

	var metadata map[string]interface{}
	require.NoError(t, json.Unmarshal(raw["metadata"], &metadata))
	assert.Equal(t, float64(2), metadata["pii_items_found"])
	assert.Equal(t, float64(1), metadata["fields_processed"])
	assert.GreaterOrEqual(t, metadata["processing_time"], float64(0))

	var outcome privacy.MaskingOutcome
	require.NoError(t, json.Unmarshal(out, &outcome))
	assert.Equal(t, "Call ***-***-4567 or email j***@test.com", outcome.MaskedText)
}

func TestBoundaryErrors(t *testing.T) {
	cfg := privacy.DefaultEngineConfig()
	cfg.MaxTextLength = 8
	registry := NewRegistry(nil)
	h, err := registry.Create(cfg)
	require.NoError(t, err)

	t.Run("ZeroHandle", func(t *testing.T) {
		_, err := registry.MaskText(0, "text")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		_, err := registry.DetectPII(h, "\xff\xfe")
		assert.ErrorIs(t, err, ErrEncoding)
	})

	t.Run("InputTooLarge", func(t *testing.T) {
		_, err := registry.MaskText(h, strings.Repeat("x", 9))
		var sizeErr *privacy.InputTooLargeError
		assert.True(t, errors.As(err, &sizeErr))
	})
}

func TestParseConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, privacy.DefaultEngineConfig(), cfg)
	})

	t.Run("Overrides", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`{
			"enable_redos_protection": false,
			"email_validation": "regex",
			"credit_card_validation": "full",
			"max_text_length": 500,
			"regex_timeout_ms": 250
		}`))
		require.NoError(t, err)
		assert.False(t, cfg.EnableReDoSProtection)
		assert.Equal(t, privacy.EmailValidationRegex, cfg.EmailValidation)
		assert.Equal(t, privacy.CreditCardValidationFull, cfg.CreditCardValidation)
		assert.Equal(t, 500, cfg.MaxTextLength)
		assert.Equal(t, 250*time.Millisecond, cfg.RegexTimeout)
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, input := range []string{
			`not json`,
			`{"email_validation": "strict"}`,
			`{"credit_card_validation": "none"}`,
			`{"max_text_length": -1}`,
		} {
			_, err := ParseConfig([]byte(input))
			assert.ErrorIs(t, err, ErrInvalidArgument, input)
		}
	})
}
