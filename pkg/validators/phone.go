package validators

import (
	"fmt"
	"regexp"
)

// E.164-style numbers with an optional leading +, 8 to 15 digits.
var phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

// ValidatePhone checks that a value looks like an international phone number.
func ValidatePhone(fieldName, value string) *ValidationResult {
	if len(value) == 0 {
		return requiredResult(fieldName, value)
	}

	if !phonePattern.MatchString(value) {
		userFriendlyName := ToUserFriendlyName(fieldName)
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("Please enter a valid %s.", userFriendlyName)),
			WithSuggestedAction("Please provide a phone number in international format, e.g. '+2348012345678'."),
			WithValidationCode(ValidationCodeInvalid),
		)
	}

	return NewValidationResult(true, fieldName, WithValue(value))
}

// ValidateNumeric checks that a value contains only digits of the given length.
func ValidateNumeric(fieldName, value string, length int) *ValidationResult {
	if len(value) == 0 {
		return requiredResult(fieldName, value)
	}

	ok := len(value) == length
	if ok {
		for _, r := range value {
			if r < '0' || r > '9' {
				ok = false
				break
			}
		}
	}
	if !ok {
		userFriendlyName := ToUserFriendlyName(fieldName)
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s must be exactly %d digits.", userFriendlyName, length)),
			WithSuggestedAction(fmt.Sprintf("Please provide a numeric %s of %d digits.", ToUserFriendlyName(fieldName), length)),
			WithValidationCode(ValidationCodeInvalid),
		)
	}

	return NewValidationResult(true, fieldName, WithValue(value))
}
