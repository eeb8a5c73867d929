package privacy

import "strings"

// validator applies the per-type semantic checks selected by an EngineConfig
type validator struct {
	email      EmailValidation
	creditCard CreditCardValidation
}

func newValidator(cfg EngineConfig) validator {
	return validator{email: cfg.EmailValidation, creditCard: cfg.CreditCardValidation}
}

// validate reports whether a raw pattern match passes semantic validation.
// Types without a semantic check are always accepted.
func (v validator) validate(piiType PIIType, sample string) bool {
	switch piiType {
	case TypeEmail:
		if v.email == EmailValidationRegex {
			return true
		}
		// validator and hybrid currently apply the same structural check
		return ValidateEmail(sample)
	case TypeCreditCard:
		if v.creditCard == CreditCardValidationBasic {
			return true
		}
		// luhn and full currently apply the same checksum
		return ValidateLuhn(sample)
	default:
		return true
	}
}

// ValidateEmail checks that an address has exactly one @ and a domain
// containing a dot but no empty label ("..").
func ValidateEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}

	domain := parts[1]
	return strings.Contains(domain, ".") && !strings.Contains(domain, "..")
}

// ValidateLuhn checks a card number against the Luhn (mod 10) checksum.
// Non-digit characters are ignored; the digit count must be within 13-19.
//
//	ValidateLuhn("4532123456789012") => true
//	ValidateLuhn("4532123456789013") => false
func ValidateLuhn(cardNumber string) bool {
	digits := digitsOnly(cardNumber)
	length := len(digits)
	if length < 13 || length > 19 {
		return false
	}

	sum := 0
	double := false
	for i := length - 1; i >= 0; i-- {
		digit := int(digits[i] - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}

// digitsOnly strips every byte that is not an ASCII digit
func digitsOnly(text string) string {
	var builder strings.Builder
	builder.Grow(len(text))

	for i := 0; i < len(text); i++ {
		if c := text[i]; c >= '0' && c <= '9' {
			builder.WriteByte(c)
		}
	}

	return builder.String()
}
