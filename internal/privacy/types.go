package privacy

import (
	"fmt"
	"time"
)

// Version of the detection engine and its wire formats
const Version = "1.0.0"

// PIIType identifies which pattern, validator and masker apply to a match
type PIIType string

const (
	TypeEmail      PIIType = "email"
	TypePhone      PIIType = "phone"
	TypeSSN        PIIType = "ssn"
	TypeCreditCard PIIType = "credit_card"
)

// DefaultFieldName is the logical field every detection is attributed to.
// The engine always operates on a single text blob.
const DefaultFieldName = "text"

// AllTypes returns every PII type the engine knows, in registry order
func AllTypes() []PIIType {
	return []PIIType{TypeEmail, TypePhone, TypeSSN, TypeCreditCard}
}

// Detection represents one accepted match
type Detection struct {
	FieldName  string  `json:"field_name"`
	PIIType    PIIType `json:"pii_type"`
	Confidence float64 `json:"confidence"`
	Sample     string  `json:"sample"`
	Masked     string  `json:"masked"`
}

// MaskingMetadata describes a single MaskText call
type MaskingMetadata struct {
	ProcessingTime  uint64 `json:"processing_time"` // milliseconds
	FieldsProcessed uint32 `json:"fields_processed"`
	PIIItemsFound   uint32 `json:"pii_items_found"`
}

// MaskingOutcome contains the result of masking text
type MaskingOutcome struct {
	OriginalText string          `json:"original_text"`
	MaskedText   string          `json:"masked_text"`
	DetectedPII  []Detection     `json:"detected_pii"`
	Metadata     MaskingMetadata `json:"metadata"`
}

// CountByType tallies detections per PII type
func CountByType(detections []Detection) map[PIIType]int {
	counts := make(map[PIIType]int)
	for _, d := range detections {
		counts[d.PIIType]++
	}
	return counts
}

// EmailValidation selects how email matches are validated
type EmailValidation string

const (
	EmailValidationRegex     EmailValidation = "regex"
	EmailValidationValidator EmailValidation = "validator"
	EmailValidationHybrid    EmailValidation = "hybrid"
)

// ParseEmailValidation parses a configured email validation mode
func ParseEmailValidation(s string) (EmailValidation, error) {
	switch mode := EmailValidation(s); mode {
	case EmailValidationRegex, EmailValidationValidator, EmailValidationHybrid:
		return mode, nil
	}
	return "", fmt.Errorf("invalid email validation mode: %q (must be regex, validator, or hybrid)", s)
}

// CreditCardValidation selects how credit card matches are validated
type CreditCardValidation string

const (
	CreditCardValidationBasic CreditCardValidation = "basic"
	CreditCardValidationLuhn  CreditCardValidation = "luhn"
	CreditCardValidationFull  CreditCardValidation = "full"
)

// ParseCreditCardValidation parses a configured credit card validation mode
func ParseCreditCardValidation(s string) (CreditCardValidation, error) {
	switch mode := CreditCardValidation(s); mode {
	case CreditCardValidationBasic, CreditCardValidationLuhn, CreditCardValidationFull:
		return mode, nil
	}
	return "", fmt.Errorf("invalid credit card validation mode: %q (must be basic, luhn, or full)", s)
}

// EngineConfig is fixed when an Engine is constructed
type EngineConfig struct {
	// EnableReDoSProtection is advisory. Go's regexp package guarantees
	// matching time linear in the input, and MaxTextLength bounds the input.
	EnableReDoSProtection bool

	EmailValidation      EmailValidation
	CreditCardValidation CreditCardValidation

	// MaxTextLength is the largest accepted input, in bytes
	MaxTextLength int

	// RegexTimeout is advisory; use DetectContext to impose a deadline
	RegexTimeout time.Duration
}

// DefaultEngineConfig returns the configuration used when none is supplied
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		EnableReDoSProtection: true,
		EmailValidation:       EmailValidationValidator,
		CreditCardValidation:  CreditCardValidationLuhn,
		MaxTextLength:         100_000,
		RegexTimeout:          time.Second,
	}
}
