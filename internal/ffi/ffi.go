// Package ffi is the Go side of the C export layer. It owns engine handles,
// serializes results to JSON and reports rich errors; cmd/libdatacloak
// collapses those errors to NULL for C callers.
package ffi

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/raaihank/datacloak/internal/logger"
	"github.com/raaihank/datacloak/internal/privacy"
)

// Version is reported by datacloak_version
const Version = privacy.Version

var (
	// ErrInvalidArgument reports a zero handle or missing text
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEncoding reports text that is not valid UTF-8
	ErrEncoding = errors.New("text is not valid UTF-8")
	// ErrUnknownHandle reports a handle that was never created or is destroyed
	ErrUnknownHandle = errors.New("unknown engine handle")
)

// Handle identifies an engine across the C boundary. Zero is never issued.
type Handle uintptr

// Config is the JSON form of privacy.EngineConfig accepted by
// datacloak_create_with_config. Missing fields keep their defaults.
type Config struct {
	EnableReDoSProtection *bool  `json:"enable_redos_protection,omitempty"`
	EmailValidation       string `json:"email_validation,omitempty"`
	CreditCardValidation  string `json:"credit_card_validation,omitempty"`
	MaxTextLength         int    `json:"max_text_length,omitempty"`
	RegexTimeoutMS        uint64 `json:"regex_timeout_ms,omitempty"`
}

// EngineConfig merges c over the default engine configuration
func (c Config) EngineConfig() (privacy.EngineConfig, error) {
	cfg := privacy.DefaultEngineConfig()

	if c.EnableReDoSProtection != nil {
		cfg.EnableReDoSProtection = *c.EnableReDoSProtection
	}
	if c.EmailValidation != "" {
		mode, err := privacy.ParseEmailValidation(c.EmailValidation)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		cfg.EmailValidation = mode
	}
	if c.CreditCardValidation != "" {
		mode, err := privacy.ParseCreditCardValidation(c.CreditCardValidation)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		cfg.CreditCardValidation = mode
	}
	if c.MaxTextLength < 0 {
		return cfg, fmt.Errorf("%w: negative max_text_length", ErrInvalidArgument)
	}
	if c.MaxTextLength > 0 {
		cfg.MaxTextLength = c.MaxTextLength
	}
	if c.RegexTimeoutMS > 0 {
		cfg.RegexTimeout = time.Duration(c.RegexTimeoutMS) * time.Millisecond
	}

	return cfg, nil
}

// ParseConfig decodes a JSON engine configuration
func ParseConfig(data []byte) (privacy.EngineConfig, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return privacy.EngineConfig{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return c.EngineConfig()
}

// Registry maps handles to live engines
type Registry struct {
	mu      sync.RWMutex
	next    Handle
	engines map[Handle]*privacy.Engine
	logger  *logger.Logger
}

// NewRegistry creates an empty handle registry
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		engines: make(map[Handle]*privacy.Engine),
		logger:  log,
	}
}

// Create builds an engine and returns its handle
func (r *Registry) Create(cfg privacy.EngineConfig) (Handle, error) {
	engine, err := privacy.New(cfg, r.logger)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.engines[r.next] = engine
	return r.next, nil
}

// Destroy releases the engine behind h. Unknown or zero handles are ignored.
func (r *Registry) Destroy(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.engines, h)
}

// Len returns the number of live engines
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.engines)
}

func (r *Registry) lookup(h Handle) (*privacy.Engine, error) {
	if h == 0 {
		return nil, ErrInvalidArgument
	}

	r.mu.RLock()
	engine, ok := r.engines[h]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrUnknownHandle
	}
	return engine, nil
}

// DetectPII returns the JSON array of detections for text
func (r *Registry) DetectPII(h Handle, text string) ([]byte, error) {
	engine, err := r.lookup(h)
	if err != nil {
		return nil, err
	}
	if !utf8.ValidString(text) {
		return nil, ErrEncoding
	}

	results, err := engine.Detect(text)
	if err != nil {
		return nil, err
	}
	return json.Marshal(results)
}

// MaskText returns the JSON masking outcome for text
func (r *Registry) MaskText(h Handle, text string) ([]byte, error) {
	engine, err := r.lookup(h)
	if err != nil {
		return nil, err
	}
	if !utf8.ValidString(text) {
		return nil, ErrEncoding
	}

	outcome, err := engine.MaskText(text)
	if err != nil {
		return nil, err
	}
	return json.Marshal(outcome)
}
