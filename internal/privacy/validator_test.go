package privacy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// luhnCheckDigit computes the digit that makes prefix+digit Luhn-valid
func luhnCheckDigit(prefix string) byte {
	sum := 0
	double := true
	for i := len(prefix) - 1; i >= 0; i-- {
		digit := int(prefix[i] - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return byte('0' + (10-sum%10)%10)
}

func TestValidateLuhn(t *testing.T) {
	t.Run("KnownNumbers", func(t *testing.T) {
		assert.True(t, ValidateLuhn("4532015112830366"))
		assert.True(t, ValidateLuhn("4111111111111111"))
		assert.True(t, ValidateLuhn("4111-1111-1111-1111"))
		assert.True(t, ValidateLuhn("4111 1111 1111 1111"))
		assert.True(t, ValidateLuhn("378282246310005"))
		assert.True(t, ValidateLuhn("4532123456789014"))

		assert.False(t, ValidateLuhn("4532015112830367"))
		assert.False(t, ValidateLuhn("4532123456789012"))
		assert.False(t, ValidateLuhn("4532123456789013"))
	})

	t.Run("LengthBounds", func(t *testing.T) {
		assert.False(t, ValidateLuhn(""))
		assert.False(t, ValidateLuhn("0"))
		// 12 zeros sums to 0 but is too short
		assert.False(t, ValidateLuhn("000000000000"))
		assert.True(t, ValidateLuhn("0000000000000"))
		assert.True(t, ValidateLuhn("0000000000000000000"))
		assert.False(t, ValidateLuhn("00000000000000000000"))
	})

	t.Run("GeneratedNumbers", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		for length := 13; length <= 19; length++ {
			for n := 0; n < 200; n++ {
				prefix := make([]byte, length-1)
				for i := range prefix {
					prefix[i] = byte('0' + rng.Intn(10))
				}
				check := luhnCheckDigit(string(prefix))
				valid := string(prefix) + string(check)
				assert.True(t, ValidateLuhn(valid), "expected valid: %s", valid)

				bumped := string(prefix) + string('0'+(check-'0'+1)%10)
				assert.False(t, ValidateLuhn(bumped), "expected invalid: %s", bumped)
			}
		}
	})
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"support@example.com", true},
		{"john.doe@mail.example.co.uk", true},
		{"user@localhost", false},
		{"user@example..com", false},
		{"a@b@example.com", false},
		{"no-at-sign.example.com", false},
		{"@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateEmail(tt.email))
		})
	}
}

func TestValidatorModes(t *testing.T) {
	badEmail := "x@a..com"
	badCard := "4111111111111112"

	tests := []struct {
		name       string
		email      EmailValidation
		creditCard CreditCardValidation
		wantEmail  bool
		wantCard   bool
	}{
		{"RegexBasic", EmailValidationRegex, CreditCardValidationBasic, true, true},
		{"ValidatorLuhn", EmailValidationValidator, CreditCardValidationLuhn, false, false},
		{"HybridFull", EmailValidationHybrid, CreditCardValidationFull, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validator{email: tt.email, creditCard: tt.creditCard}
			assert.Equal(t, tt.wantEmail, v.validate(TypeEmail, badEmail))
			assert.Equal(t, tt.wantCard, v.validate(TypeCreditCard, badCard))
			assert.True(t, v.validate(TypePhone, "555-123-4567"))
			assert.True(t, v.validate(TypeSSN, "123-45-6789"))
			assert.True(t, v.validate(PIIType("passport"), "X1234567"))
		})
	}
}

func TestParseModes(t *testing.T) {
	mode, err := ParseEmailValidation("hybrid")
	assert.NoError(t, err)
	assert.Equal(t, EmailValidationHybrid, mode)

	_, err = ParseEmailValidation("strict")
	assert.Error(t, err)

	card, err := ParseCreditCardValidation("full")
	assert.NoError(t, err)
	assert.Equal(t, CreditCardValidationFull, card)

	_, err = ParseCreditCardValidation("LUHN")
	assert.Error(t, err)
}
