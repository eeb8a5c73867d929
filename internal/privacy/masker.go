package privacy

import (
	"strings"
	"unicode/utf8"
)

const (
	maskedEmailFallback      = "***@domain.com"
	maskedPhoneFallback      = "***-***-****"
	maskedSSNFallback        = "***-**-****"
	maskedCreditCardFallback = "**** **** **** ****"
	maskedGeneric            = "***"
)

// Mask returns the redacted replacement for a sample of the given type.
// It keeps the first character of an email local part, or the last four
// digits (or characters, for SSNs) of numeric identifiers.
func Mask(sample string, piiType PIIType) string {
	switch piiType {
	case TypeEmail:
		return maskEmail(sample)
	case TypePhone:
		digits := digitsOnly(sample)
		if len(digits) < 4 {
			return maskedPhoneFallback
		}
		return "***-***-" + digits[len(digits)-4:]
	case TypeSSN:
		if utf8.RuneCountInString(sample) < 4 {
			return maskedSSNFallback
		}
		return "***-**-" + lastRunes(sample, 4)
	case TypeCreditCard:
		digits := digitsOnly(sample)
		if len(digits) < 4 {
			return maskedCreditCardFallback
		}
		return "**** **** **** " + digits[len(digits)-4:]
	default:
		return maskedGeneric
	}
}

func maskEmail(sample string) string {
	at := strings.IndexByte(sample, '@')
	if at <= 0 {
		return maskedEmailFallback
	}

	first, _ := utf8.DecodeRuneInString(sample)
	return string(first) + "***" + sample[at:]
}

// lastRunes returns the trailing n runes of s
func lastRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
