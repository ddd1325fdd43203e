package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// knownExpectedVariants are the valid Expected discriminator keys (spec §3).
var knownExpectedVariants = map[string]struct{}{
	"must_contain":           {},
	"must_not_contain":       {},
	"regex_match":            {},
	"regex_not_match":        {},
	"json_schema":            {},
	"semantic_similarity_to": {},
	"judge_criteria":         {},
	"faithfulness":           {},
	"relevance":              {},
	"args_valid":             {},
	"sequence_valid":         {},
	"tool_blocklist":         {},
}

// RegisterCustomValidators registers assay-specific validation rules.
// Must be called before validating an EvalConfig.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("expected_variant", validateExpectedVariant); err != nil {
		return fmt.Errorf("failed to register expected_variant validator: %w", err)
	}
	return nil
}

// validateExpectedVariant checks that a TestCase's Expected map carries
// exactly one recognized discriminator key.
func validateExpectedVariant(fl validator.FieldLevel) bool {
	m, ok := fl.Field().Interface().(map[string]any)
	if !ok {
		return false
	}
	found := 0
	for key := range m {
		if _, known := knownExpectedVariants[key]; known {
			found++
		}
	}
	return found == 1
}

// Validate validates an EvalConfig using struct tags and cross-field rules.
// Returns an error with actionable, joined messages on failure.
func Validate(c *EvalConfig) error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := validateUniqueTestIDs(c); err != nil {
		return err
	}

	return nil
}

// validateUniqueTestIDs ensures TestCase.ID is unique within the suite, per
// the EvalConfig invariant in the data model.
func validateUniqueTestIDs(c *EvalConfig) error {
	seen := make(map[string]struct{}, len(c.Tests))
	for _, tc := range c.Tests {
		if _, dup := seen[tc.ID]; dup {
			return fmt.Errorf("tests: duplicate test id %q", tc.ID)
		}
		seen[tc.ID] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "expected_variant":
		return fmt.Sprintf("%s must contain exactly one recognized expected-result variant", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
