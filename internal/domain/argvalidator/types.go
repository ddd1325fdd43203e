// Package argvalidator implements the Argument Validator (C2): per-tool
// JSON-Schema compilation, cached and validated against a tool call's
// arguments.
package argvalidator

import "github.com/assay-dev/assay/internal/domain/diagnostic"

// Verdict is the outcome of validating one tool call's arguments.
type Verdict struct {
	Allowed    bool               `json:"allowed"`
	ReasonCode diagnostic.Code    `json:"reason_code"`
	Details    []Violation        `json:"details,omitempty"`
}

// Violation is a single JSON-Schema constraint failure.
type Violation struct {
	Path       string `json:"path"`
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

func allowed() Verdict {
	return Verdict{Allowed: true, ReasonCode: "OK"}
}

func blocked(code diagnostic.Code, violations []Violation) Verdict {
	return Verdict{Allowed: false, ReasonCode: code, Details: violations}
}
