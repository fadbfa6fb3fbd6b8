package validators

import (
	"fmt"

	"github.com/plaenen/corebank/pkg/domain"
)

// ValidationCode classifies a validation outcome.
type ValidationCode string

const (
	ValidationCodeSuccess  ValidationCode = "success"
	ValidationCodeRequired ValidationCode = "required"
	ValidationCodeInvalid  ValidationCode = "invalid"
)

// ValidationOption customizes a ValidationResult.
type ValidationOption func(*ValidationResult)

// ValidationResult is the outcome of validating one field.
type ValidationResult struct {
	IsValid         bool           `json:"is_valid"`
	FieldName       string         `json:"field_name"`
	Value           string         `json:"value"`
	Message         string         `json:"message"`
	SuggestedAction string         `json:"suggested_action"`
	ValidationCode  ValidationCode `json:"validation_code"`
}

// WithValue sets the value shown in messages.
func WithValue(value string) ValidationOption {
	return func(vr *ValidationResult) {
		vr.Value = value
	}
}

// WithMessage sets a custom validation message.
func WithMessage(message string) ValidationOption {
	return func(vr *ValidationResult) {
		vr.Message = message
	}
}

// WithSuggestedAction sets a custom suggested action.
func WithSuggestedAction(action string) ValidationOption {
	return func(vr *ValidationResult) {
		vr.SuggestedAction = action
	}
}

// WithValidationCode sets the validation code.
func WithValidationCode(code ValidationCode) ValidationOption {
	return func(vr *ValidationResult) {
		vr.ValidationCode = code
	}
}

// NewValidationResult creates a ValidationResult with options applied.
func NewValidationResult(isValid bool, fieldName string, options ...ValidationOption) *ValidationResult {
	vr := &ValidationResult{
		IsValid:        isValid,
		FieldName:      fieldName,
		ValidationCode: ValidationCodeSuccess,
	}
	for _, option := range options {
		option(vr)
	}
	return vr
}

// Violation converts a failed result to the domain violation type.
// Returns the zero value for valid results.
func (vr *ValidationResult) Violation() domain.Violation {
	if vr.IsValid {
		return domain.Violation{}
	}
	return domain.Violation{Field: vr.FieldName, Message: vr.Message}
}

// Builder collects validation results across fields and produces a single
// ValidationError listing every violation, never just the first.
type Builder struct {
	results []*ValidationResult
}

// NewBuilder creates an empty validation builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a validation result.
func (b *Builder) Add(result *ValidationResult) *Builder {
	b.results = append(b.results, result)
	return b
}

// HasErrors reports whether any collected result failed.
func (b *Builder) HasErrors() bool {
	for _, r := range b.results {
		if !r.IsValid {
			return true
		}
	}
	return false
}

// Err returns a *domain.ValidationError carrying all violations,
// or nil when everything passed.
func (b *Builder) Err() error {
	var violations []domain.Violation
	for _, r := range b.results {
		if !r.IsValid {
			violations = append(violations, r.Violation())
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return domain.NewValidationError(violations...)
}

func requiredResult(fieldName, value string) *ValidationResult {
	userFriendlyName := ToUserFriendlyName(fieldName)
	return NewValidationResult(false, fieldName,
		WithValue(value),
		WithMessage(fmt.Sprintf("%s is required.", userFriendlyName)),
		WithSuggestedAction(fmt.Sprintf("Please provide a valid %s.", userFriendlyName)),
		WithValidationCode(ValidationCodeRequired),
	)
}
