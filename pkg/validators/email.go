package validators

import (
	"fmt"

	"github.com/asaskevich/govalidator"
)

// ValidateEmail checks that a value is a well-formed email address.
func ValidateEmail(fieldName, value string) *ValidationResult {
	if len(value) == 0 {
		return requiredResult(fieldName, value)
	}

	if !govalidator.IsEmail(value) {
		userFriendlyName := ToUserFriendlyName(fieldName)
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("Please enter a valid %s.", userFriendlyName)),
			WithSuggestedAction("Please provide a valid email address, e.g. 'name@example.com'."),
			WithValidationCode(ValidationCodeInvalid),
		)
	}

	return NewValidationResult(true, fieldName, WithValue(value))
}
