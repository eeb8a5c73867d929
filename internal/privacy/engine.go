package privacy

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/raaihank/datacloak/internal/logger"
	"go.uber.org/zap"
)

const (
	baseConfidence      = 0.95
	invalidPenalty      = 0.7
	acceptanceThreshold = 0.6
)

// Engine detects and masks PII. Its patterns and configuration are fixed at
// construction, so a single Engine may be shared by concurrent callers.
type Engine struct {
	patterns  []compiledPattern
	config    EngineConfig
	validator validator
	logger    *logger.Logger
}

// New creates a new engine with the built-in pattern set
func New(cfg EngineConfig, log *logger.Logger) (*Engine, error) {
	return newEngine(cfg, defaultPatternSources, log)
}

func newEngine(cfg EngineConfig, sources []patternSource, log *logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.Nop()
	}

	patterns, err := compilePatterns(sources)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		patterns:  patterns,
		config:    cfg,
		validator: newValidator(cfg),
		logger:    log,
	}

	log.Debug("PII engine initialized",
		zap.Int("patterns", len(patterns)),
		zap.String("email_validation", string(cfg.EmailValidation)),
		zap.String("credit_card_validation", string(cfg.CreditCardValidation)),
		zap.Int("max_text_length", cfg.MaxTextLength),
	)

	return engine, nil
}

// Config returns the configuration the engine was built with
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Types returns the PII types in registry order
func (e *Engine) Types() []PIIType {
	types := make([]PIIType, len(e.patterns))
	for i, p := range e.patterns {
		types[i] = p.piiType
	}
	return types
}

// Detect finds all PII in text
func (e *Engine) Detect(text string) ([]Detection, error) {
	return e.DetectContext(context.Background(), text)
}

// DetectContext finds all PII in text, checking ctx between pattern passes.
//
// Each pattern contributes its leftmost non-overlapping matches in text
// order. Matches of different types may overlap and are all kept. A match
// failing semantic validation is penalized rather than discarded, and only
// matches whose confidence exceeds the acceptance threshold are returned.
func (e *Engine) DetectContext(ctx context.Context, text string) ([]Detection, error) {
	if len(text) > e.config.MaxTextLength {
		return nil, &InputTooLargeError{Actual: len(text), Max: e.config.MaxTextLength}
	}

	results := make([]Detection, 0)

	for _, p := range e.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		found := 0
		for _, sample := range p.re.FindAllString(text, -1) {
			confidence := baseConfidence
			if !e.validator.validate(p.piiType, sample) {
				confidence *= invalidPenalty
			}

			if confidence <= acceptanceThreshold {
				continue
			}

			results = append(results, Detection{
				FieldName:  DefaultFieldName,
				PIIType:    p.piiType,
				Confidence: confidence,
				Sample:     sample,
				Masked:     Mask(sample, p.piiType),
			})
			found++
		}

		if found > 0 {
			e.logger.Debug("PII detected",
				zap.String("entity_type", string(p.piiType)),
				zap.Int("count", found),
			)
		}
	}

	return results, nil
}

// MaskText detects PII in text and replaces every occurrence of each sample
// with its masked form
func (e *Engine) MaskText(text string) (*MaskingOutcome, error) {
	return e.MaskTextContext(context.Background(), text)
}

// MaskTextContext is MaskText with cancellation between pattern passes.
//
// Samples are substituted longest first so that a long match is replaced
// before any shorter sample contained in it. Substitution is literal: every
// occurrence of a sample string is replaced, wherever it appears.
func (e *Engine) MaskTextContext(ctx context.Context, text string) (*MaskingOutcome, error) {
	start := time.Now()

	detected, err := e.DetectContext(ctx, text)
	if err != nil {
		return nil, err
	}

	sorted := slices.Clone(detected)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Sample) > len(sorted[j].Sample)
	})

	masked := text
	for _, d := range sorted {
		if d.Sample == "" {
			continue
		}
		masked = strings.ReplaceAll(masked, d.Sample, d.Masked)
	}

	return &MaskingOutcome{
		OriginalText: text,
		MaskedText:   masked,
		DetectedPII:  detected,
		Metadata: MaskingMetadata{
			ProcessingTime:  uint64(time.Since(start).Milliseconds()),
			FieldsProcessed: 1,
			PIIItemsFound:   uint32(len(detected)),
		},
	}, nil
}
