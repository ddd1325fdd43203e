// Package config provides configuration loading for assay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for assay.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself,
// which Viper's built-in SetConfigName would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("assay")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: ASSAY_SETTINGS_PARALLEL, etc.
	viper.SetEnvPrefix("ASSAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an assay config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching the binary "assay" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".assay"),
	}
	if runtime.GOOS == "windows" {
		// %ProgramData%\assay (typically C:\ProgramData\assay)
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "assay"))
		}
	} else {
		paths = append(paths, "/etc/assay")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for assay.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "assay"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all config keys for environment variable support.
// Example: ASSAY_SETTINGS_PARALLEL overrides settings.parallel.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("version")
	_ = viper.BindEnv("suite")
	_ = viper.BindEnv("model")

	_ = viper.BindEnv("settings.parallel")
	_ = viper.BindEnv("settings.timeout_seconds")
	_ = viper.BindEnv("settings.cache")
	_ = viper.BindEnv("settings.seed")
	_ = viper.BindEnv("settings.retries")
	_ = viper.BindEnv("settings.replay_strict")
	_ = viper.BindEnv("settings.quarantine")
	_ = viper.BindEnv("settings.strict_cfg")
	_ = viper.BindEnv("settings.judge.samples")
	_ = viper.BindEnv("settings.judge.model")
	_ = viper.BindEnv("settings.judge.rubric_version")

	// Note: tests/thresholds are structured/array fields, complex to override
	// via env. Users should use the config file for these.
}

// SetStrictOverride forces settings.strict_cfg to true regardless of what
// the config file says, for the root `--strict` persistent flag: a CLI flag
// should win over whatever the suite file happens to declare.
func SetStrictOverride() {
	viper.Set("settings.strict_cfg", true)
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the validated EvalConfig.
func LoadConfig() (*EvalConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg EvalConfig
	if err := decode(&cfg); err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT validate. Use this when CLI flags may override settings before
// validation (e.g. `--strict`).
func LoadConfigRaw() (*EvalConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg EvalConfig
	if err := decode(&cfg); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// decode unmarshals viper's current state into cfg, rejecting unknown keys
// with mapstructure's ErrorUnused equivalent (viper.UnmarshalExact) when
// settings.strict_cfg is set, matching strict mode's documented contract.
func decode(cfg *EvalConfig) error {
	if viper.GetBool("settings.strict_cfg") {
		if err := viper.UnmarshalExact(cfg); err != nil {
			return fmt.Errorf("failed to unmarshal config (strict mode rejects unknown keys): %w", err)
		}
		return nil
	}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
