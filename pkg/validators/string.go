package validators

import (
	"fmt"
	"strings"
)

// ToUserFriendlyName converts snake_case field names to user-friendly names.
// Examples: "first_name" -> "First name", "email_address" -> "Email address".
func ToUserFriendlyName(fieldName string) string {
	if fieldName == "" {
		return fieldName
	}

	parts := strings.Split(fieldName, "_")
	for i, part := range parts {
		if i == 0 && len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
		} else {
			parts[i] = strings.ToLower(part)
		}
	}
	return strings.Join(parts, " ")
}

// ValidateRequired checks that a string is non-empty.
func ValidateRequired(fieldName, value string) *ValidationResult {
	if len(strings.TrimSpace(value)) == 0 {
		return requiredResult(fieldName, value)
	}
	return NewValidationResult(true, fieldName, WithValue(value))
}

// ValidateStringLength checks minimum and maximum length bounds.
func ValidateStringLength(fieldName, value string, minLength, maxLength int) *ValidationResult {
	userFriendlyName := ToUserFriendlyName(fieldName)

	if len(value) < minLength {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s must be at least %d characters long.", userFriendlyName, minLength)),
			WithSuggestedAction(fmt.Sprintf("Please provide a %s with at least %d characters.", strings.ToLower(userFriendlyName), minLength)),
			WithValidationCode(ValidationCodeInvalid),
		)
	}
	if len(value) > maxLength {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s must be no more than %d characters long.", userFriendlyName, maxLength)),
			WithSuggestedAction(fmt.Sprintf("Please provide a %s with no more than %d characters.", strings.ToLower(userFriendlyName), maxLength)),
			WithValidationCode(ValidationCodeInvalid),
		)
	}
	return NewValidationResult(true, fieldName, WithValue(value))
}
