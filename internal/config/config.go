// Package config provides configuration types for assay.
//
// An EvalConfig is the top-level suite configuration file (YAML): version,
// suite name, model identifier, runner settings, the test list, and scoring
// thresholds. A Policy (see internal/domain/policy) is loaded separately and
// may be referenced by path (legacy v0) or inlined per-test.
package config

// EvalConfig is the top-level configuration for an assay suite run.
type EvalConfig struct {
	// Version is the config schema version. 0 is legacy (external policy
	// paths, inlined at load time by the migration resolver); 1 is current.
	Version int `yaml:"version" mapstructure:"version" validate:"oneof=0 1"`

	// Suite is the human-readable suite name, used in reports and baselines.
	Suite string `yaml:"suite" mapstructure:"suite" validate:"required"`

	// Model identifies the target model/provider for live (non-replay) runs.
	Model string `yaml:"model" mapstructure:"model"`

	// Settings configures the runner: parallelism, timeouts, caching, seed.
	Settings Settings `yaml:"settings" mapstructure:"settings"`

	// Tests is the suite's test list. Must be non-empty.
	Tests []TestCaseConfig `yaml:"tests" mapstructure:"tests" validate:"required,min=1,dive"`

	// Thresholds carries global default thresholds (e.g. minimum similarity
	// score) applied when a TestCase's Expected variant omits its own.
	Thresholds map[string]float64 `yaml:"thresholds" mapstructure:"thresholds"`

	// Thresholding carries percentile-calibration settings. It is decoded
	// and validated, but no command reads it: `calibrate` takes its
	// percentile from its own --percentile flag, and the per-test regression
	// check reads the inline thresholding block inside an Expected variant.
	Thresholding *ThresholdingConfig `yaml:"thresholding" mapstructure:"thresholding"`
}

// Settings configures the test runner.
type Settings struct {
	// Parallel is the number of concurrent worker goroutines (bounded
	// semaphore). Defaults to 4.
	Parallel int `yaml:"parallel" mapstructure:"parallel" validate:"omitempty,min=1"`

	// TimeoutSeconds bounds a single live-provider call. Defaults to 30.
	TimeoutSeconds int `yaml:"timeout_seconds" mapstructure:"timeout_seconds" validate:"omitempty,min=1"`

	// Cache toggles the VCR/incremental-skip cache layer. Defaults to true.
	Cache *bool `yaml:"cache" mapstructure:"cache"`

	// Seed is decoded from the config file; no component reads it, and
	// judge sample ordering does not depend on it.
	Seed int64 `yaml:"seed" mapstructure:"seed"`

	// Judge configures the LLM-as-judge sampling policy.
	Judge JudgeSettings `yaml:"judge" mapstructure:"judge"`

	// Retries is the maximum number of attempts per test before a
	// Flaky/Unstable classification is finalized. Defaults to 3.
	Retries int `yaml:"retries" mapstructure:"retries" validate:"omitempty,min=1"`

	// ReplayStrict forbids all live network calls; every prompt must resolve
	// against a precomputed trace or the run fails with E_REPLAY_STRICT_MISSING.
	ReplayStrict bool `yaml:"replay_strict" mapstructure:"replay_strict"`

	// Quarantine selects how quarantined test results are overlaid onto the
	// final status: "off", "warn", or "strict".
	Quarantine string `yaml:"quarantine" mapstructure:"quarantine" validate:"omitempty,oneof=off warn strict"`

	// StrictCfg rejects unknown YAML keys in this config file; without it,
	// unknown keys are ignored. Policy files are decoded without unknown-key
	// rejection in either mode.
	StrictCfg bool `yaml:"strict_cfg" mapstructure:"strict_cfg"`
}

// JudgeSettings configures majority-vote LLM-as-judge sampling.
type JudgeSettings struct {
	// Samples is the number of independent samples drawn per judged
	// assertion. Defaults to 3 (majority of 3).
	Samples int `yaml:"samples" mapstructure:"samples" validate:"omitempty,min=1"`

	// Model is the judge model identifier, if different from Settings.Model.
	Model string `yaml:"model" mapstructure:"model"`

	// RubricVersion pins the rubric text/version used for cache keys.
	RubricVersion string `yaml:"rubric_version" mapstructure:"rubric_version"`
}

// ThresholdingConfig configures percentile-based threshold calibration.
type ThresholdingConfig struct {
	// Percentile is the target percentile (0-100) used to recommend a
	// minimum score from historical runs.
	Percentile float64 `yaml:"percentile" mapstructure:"percentile" validate:"omitempty,min=0,max=100"`

	// MinSamples is the minimum number of historical samples required
	// before a calibrated threshold is trusted.
	MinSamples int `yaml:"min_samples" mapstructure:"min_samples" validate:"omitempty,min=1"`
}

// TestCaseConfig is the YAML representation of a TestCase, converted into
// the runner's runner.TestCase by the cmd package before a run.
type TestCaseConfig struct {
	// ID uniquely identifies this test within the suite.
	ID string `yaml:"id" mapstructure:"id" validate:"required"`

	// Input carries the prompt (or reference to a replay trace) and optional
	// structured context.
	Input TestInputConfig `yaml:"input" mapstructure:"input" validate:"required"`

	// Expected is a raw mapping decoded by the loader into the Expected
	// tagged union, since its shape depends on a discriminator field.
	Expected map[string]any `yaml:"expected" mapstructure:"expected" validate:"required,expected_variant"`

	// Assertions are optional TraceAssertion checks run against the
	// response's tool-call metadata.
	Assertions []map[string]any `yaml:"assertions" mapstructure:"assertions"`

	// Tags classify the test for coverage/filtering purposes.
	Tags []string `yaml:"tags" mapstructure:"tags"`

	// Metadata is free-form, carried through to reports unmodified.
	Metadata map[string]any `yaml:"metadata" mapstructure:"metadata"`

	// Policy is the legacy (version=0) external policy file path. The
	// migration resolver inlines this into Expected.ArgsValid/SequenceValid.
	Policy string `yaml:"policy" mapstructure:"policy"`
}

// TestInputConfig is a TestCase's input section.
type TestInputConfig struct {
	Prompt  string         `yaml:"prompt" mapstructure:"prompt" validate:"required"`
	Context map[string]any `yaml:"context" mapstructure:"context"`
}

// SetDefaults applies sensible default values to the configuration.
// Mirrors the teacher's convention of a separate defaulting pass that runs
// before validation so required-by-default fields are satisfied.
func (c *EvalConfig) SetDefaults() {
	if c.Settings.Parallel == 0 {
		c.Settings.Parallel = 4
	}
	if c.Settings.TimeoutSeconds == 0 {
		c.Settings.TimeoutSeconds = 30
	}
	if c.Settings.Cache == nil {
		enabled := true
		c.Settings.Cache = &enabled
	}
	if c.Settings.Retries == 0 {
		c.Settings.Retries = 3
	}
	if c.Settings.Quarantine == "" {
		c.Settings.Quarantine = "off"
	}
	if c.Settings.Judge.Samples == 0 {
		c.Settings.Judge.Samples = 3
	}
	if c.Settings.Judge.Model == "" {
		c.Settings.Judge.Model = c.Model
	}
}

// CacheEnabled reports whether the VCR/incremental-skip cache is active.
func (c EvalConfig) CacheEnabled() bool {
	return c.Settings.Cache == nil || *c.Settings.Cache
}
