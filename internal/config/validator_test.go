package config

import (
	"strings"
	"testing"
)

// minimalValidConfig returns a minimal valid EvalConfig for testing.
func minimalValidConfig() *EvalConfig {
	cfg := &EvalConfig{
		Version: 1,
		Suite:   "demo-suite",
		Model:   "gpt-4",
		Tests: []TestCaseConfig{
			{
				ID:    "t1",
				Input: TestInputConfig{Prompt: "hello"},
				Expected: map[string]any{
					"must_contain": "world",
				},
			},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_MissingSuite(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Suite = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() expected error for missing suite, got nil")
	}
	if !strings.Contains(err.Error(), "Suite") {
		t.Errorf("error = %q, want to contain 'Suite'", err.Error())
	}
}

func TestValidate_EmptyTests(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Tests = nil

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() expected error for empty tests, got nil")
	}
}

func TestValidate_InvalidVersion(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Version = 2

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() expected error for invalid version, got nil")
	}
	if !strings.Contains(err.Error(), "Version") {
		t.Errorf("error = %q, want to contain 'Version'", err.Error())
	}
}

func TestValidate_DuplicateTestIDs(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Tests = append(cfg.Tests, cfg.Tests[0])

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() expected error for duplicate test ids, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate test id") {
		t.Errorf("error = %q, want to contain 'duplicate test id'", err.Error())
	}
}

func TestValidate_MissingExpectedVariant(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Tests[0].Expected = map[string]any{"not_a_real_variant": true}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() expected error for unrecognized expected variant, got nil")
	}
}

func TestValidate_AmbiguousExpectedVariant(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Tests[0].Expected = map[string]any{
		"must_contain":     "a",
		"must_not_contain": "b",
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() expected error for ambiguous (two-variant) Expected, got nil")
	}
}

func TestValidate_InvalidQuarantineMode(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Settings.Quarantine = "yolo"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() expected error for invalid quarantine mode, got nil")
	}
}

func TestValidate_MissingTestID(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Tests[0].ID = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() expected error for missing test id, got nil")
	}
}
