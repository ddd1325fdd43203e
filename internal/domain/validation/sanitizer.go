// Package validation sanitizes the traced tool name and argument values a
// client hands to the MCP stdio server's assay_check_args (name and
// arguments) and assay_policy_decide (name only) tools before they reach the
// policy engine.
package validation

import (
	"regexp"
	"strings"
)

// Size limits for sanitization.
const (
	// MaxStringLength is the maximum length of any string value (1MB).
	// Strings longer than this are truncated to prevent memory exhaustion.
	MaxStringLength = 1048576

	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 255
)

// toolNamePattern validates tool names.
// Tool names must start with a letter and contain only alphanumeric characters,
// underscores, and hyphens. This prevents injection attacks via tool names.
var toolNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// Sanitizer validates traced tool names and recursively sanitizes argument
// values before they reach the policy engine.
type Sanitizer struct {
	// Stateless - regex is package-level
}

// NewSanitizer creates a new Sanitizer instance.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// ValidateToolName validates a traced tool name against injection patterns.
// It returns a ValidationError if the name is invalid.
//
// Valid tool names:
//   - Start with a letter
//   - Contain only alphanumeric characters, underscores, and hyphens
//   - Are at most MaxToolNameLength characters
//   - Do not contain path traversal sequences
func (s *Sanitizer) ValidateToolName(name string) error {
	// Empty name check
	if name == "" {
		return NewValidationError(ErrCodeInvalidParams, "tool name is required")
	}

	// Length check
	if len(name) > MaxToolNameLength {
		return NewValidationError(ErrCodeInvalidParams, "tool name too long")
	}

	// Path traversal check (before pattern match for clearer error)
	if strings.Contains(name, "..") || strings.Contains(name, "/") {
		return NewValidationError(ErrCodeInvalidParams, "invalid characters in tool name")
	}

	// Pattern check
	if !toolNamePattern.MatchString(name) {
		return NewValidationError(ErrCodeInvalidParams, "invalid tool name format")
	}

	return nil
}

// SanitizeValue recursively sanitizes a value.
// For strings, it removes null bytes and truncates at MaxStringLength.
// For maps and slices, it recurses into each element.
// For other types (numbers, booleans, nil), it returns them unchanged.
func (s *Sanitizer) SanitizeValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return s.sanitizeString(val), nil

	case map[string]interface{}:
		result := make(map[string]interface{}, len(val))
		for k, v := range val {
			sanitized, err := s.SanitizeValue(v)
			if err != nil {
				return nil, err
			}
			result[k] = sanitized
		}
		return result, nil

	case []interface{}:
		result := make([]interface{}, len(val))
		for i, v := range val {
			sanitized, err := s.SanitizeValue(v)
			if err != nil {
				return nil, err
			}
			result[i] = sanitized
		}
		return result, nil

	default:
		// Numbers, booleans, nil pass through unchanged
		return v, nil
	}
}

// sanitizeString removes null bytes and truncates oversized strings.
func (s *Sanitizer) sanitizeString(str string) string {
	// Remove null bytes
	str = strings.ReplaceAll(str, "\x00", "")

	// Truncate if too long
	if len(str) > MaxStringLength {
		str = str[:MaxStringLength]
	}

	return str
}

// SanitizeToolCall validates a traced tool name and sanitizes its argument
// map, as found in the `tool_name`/`args` fields of an assay_check_args
// call. Returns the sanitized args map.
func (s *Sanitizer) SanitizeToolCall(toolName string, args map[string]interface{}) (map[string]interface{}, error) {
	if err := s.ValidateToolName(toolName); err != nil {
		return nil, err
	}

	sanitized, err := s.SanitizeValue(args)
	if err != nil {
		return nil, err
	}
	result, _ := sanitized.(map[string]interface{})
	if result == nil {
		result = map[string]interface{}{}
	}
	return result, nil
}
