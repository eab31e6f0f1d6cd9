/*
Copyright 2025 Hare Krishna Rai

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/harekrishnarai/pipeaudit/pkg/constants"
	auditerrors "github.com/harekrishnarai/pipeaudit/pkg/errors"
	"github.com/harekrishnarai/pipeaudit/pkg/rules"
	"github.com/harekrishnarai/pipeaudit/pkg/state"
)

// Config represents the complete pipeaudit configuration. The GitHub token
// is deliberately absent: it only comes from flags and the environment.
type Config struct {
	Version  string   `yaml:"version" json:"version"`
	Rules    Rules    `yaml:"rules" json:"rules"`
	Output   Output   `yaml:"output" json:"output"`
	Audit    Audit    `yaml:"audit" json:"audit"`
	Policies []string `yaml:"policies,omitempty" json:"policies,omitempty"`
}

// Rules configuration for rule management
type Rules struct {
	Enabled  []string `yaml:"enabled" json:"enabled"`
	Disabled []string `yaml:"disabled" json:"disabled"`
	Ignore   Ignore   `yaml:"ignore" json:"ignore"`
}

// Ignore configures which findings are dropped by path
type Ignore struct {
	Files []string               `yaml:"files" json:"files"` // File patterns to ignore
	Rules map[string]RuleIgnores `yaml:"rules" json:"rules"` // Per-rule ignores
}

// RuleIgnores for specific rule overrides
type RuleIgnores struct {
	Files []string `yaml:"files" json:"files"`
}

// Output configuration
type Output struct {
	Format      string `yaml:"format" json:"format"` // "cli", "json", "sarif"
	File        string `yaml:"file,omitempty" json:"file,omitempty"`
	MinSeverity string `yaml:"min_severity" json:"min_severity"`
}

// Audit configures how rules run
type Audit struct {
	Pedantic bool   `yaml:"pedantic" json:"pedantic"`
	Offline  bool   `yaml:"offline" json:"offline"`
	APIBase  string `yaml:"api_base,omitempty" json:"api_base,omitempty"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Rules: Rules{
			Enabled:  []string{}, // Empty means all enabled
			Disabled: []string{},
			Ignore: Ignore{
				Files: []string{},
				Rules: make(map[string]RuleIgnores),
			},
		},
		Output: Output{
			Format:      constants.DefaultOutputFormat,
			MinSeverity: constants.DefaultMinSeverity,
		},
	}
}

// LoadConfig loads configuration from file or returns default
func LoadConfig(configPath string) (*Config, error) {
	// If no config path specified, try to find one
	if configPath == "" {
		configPath = findConfigFile()
	}

	// If still no config file, return default
	if configPath == "" {
		return DefaultConfig(), nil
	}

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, auditerrors.NewConfigError(fmt.Sprintf("failed to open config file %s", configPath), err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, auditerrors.NewConfigError(fmt.Sprintf("failed to read config file %s", configPath), err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(content, config); err != nil {
		return nil, auditerrors.NewConfigError(fmt.Sprintf("failed to parse config file %s", configPath), err,
			"Check the file is valid YAML")
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// findConfigFile searches for configuration files in common locations
func findConfigFile() string {
	// Search order: current dir, home dir
	candidates := []string{
		constants.ConfigFilePipeauditYML,
		constants.ConfigFilePipeauditYAML,
		constants.ConfigFileBaseYML,
		constants.ConfigFileBaseYAML,
	}

	// Check current directory first
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	// Check home directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		for _, candidate := range candidates {
			fullPath := filepath.Join(homeDir, candidate)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath
			}
		}
	}

	return ""
}

// validateConfig validates the configuration structure and fills defaults
func validateConfig(config *Config) error {
	if config.Version == "" {
		config.Version = "1"
	}

	if config.Output.Format == "" {
		config.Output.Format = constants.DefaultOutputFormat
	}
	if !isSupportedFormat(config.Output.Format) {
		return auditerrors.NewValidationError("unsupported output format", "output.format", config.Output.Format,
			fmt.Sprintf("Use one of: %s", strings.Join(constants.SupportedOutputFormats, ", ")))
	}

	if config.Output.MinSeverity == "" {
		config.Output.MinSeverity = constants.DefaultMinSeverity
	}
	if _, err := rules.ParseSeverity(config.Output.MinSeverity); err != nil {
		return auditerrors.NewValidationError("invalid minimum severity", "output.min_severity", config.Output.MinSeverity,
			"Use one of: unknown, informational, low, medium, high")
	}

	if base := config.Audit.APIBase; base != "" {
		u, err := url.Parse(base)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return auditerrors.NewValidationError("invalid GitHub API base", "audit.api_base", base,
				"Use an absolute URL such as https://github.example.com/api/v3/")
		}
	}

	patterns := append([]string{}, config.Rules.Ignore.Files...)
	for _, ruleIgnores := range config.Rules.Ignore.Rules {
		patterns = append(patterns, ruleIgnores.Files...)
	}
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return auditerrors.NewValidationError("invalid ignore pattern", "rules.ignore", pattern)
		}
	}

	return nil
}

func isSupportedFormat(format string) bool {
	for _, f := range constants.SupportedOutputFormats {
		if f == format {
			return true
		}
	}
	return false
}

// MinSeverity returns the parsed minimum severity; findings below it are
// not reported
func (config *Config) MinSeverity() rules.Severity {
	severity, err := rules.ParseSeverity(config.Output.MinSeverity)
	if err != nil {
		return rules.SeverityUnknown
	}
	return severity
}

// ShouldIgnoreForRule checks if a finding should be ignored for a specific rule
func (config *Config) ShouldIgnoreForRule(ruleID, filePath string) bool {
	normalizedPath := filepath.ToSlash(filePath)

	// Check file patterns
	for _, filePattern := range config.Rules.Ignore.Files {
		if matchGlobPattern(filePattern, normalizedPath) {
			return true
		}
	}

	// Check rule-specific ignores
	if ruleIgnores, exists := config.Rules.Ignore.Rules[ruleID]; exists {
		for _, filePattern := range ruleIgnores.Files {
			if matchGlobPattern(filePattern, normalizedPath) {
				return true
			}
		}
	}

	return false
}

// IsRuleEnabled checks if a rule should be enabled
func (config *Config) IsRuleEnabled(ruleID string) bool {
	// If specific rules are enabled, only those are active
	if len(config.Rules.Enabled) > 0 {
		for _, enabled := range config.Rules.Enabled {
			if enabled == ruleID {
				return true
			}
		}
		return false
	}

	// If no specific enabled rules, check disabled list
	for _, disabled := range config.Rules.Disabled {
		if disabled == ruleID {
			return false
		}
	}

	return true
}

func matchGlobPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}

	normalizedPattern := filepath.ToSlash(pattern)
	matchers := []string{normalizedPattern}

	// Automatically add a glob that searches anywhere in the tree when the pattern isn't absolute
	if !strings.HasPrefix(normalizedPattern, "**/") &&
		!strings.HasPrefix(normalizedPattern, "./") &&
		!strings.HasPrefix(normalizedPattern, "/") &&
		!strings.Contains(normalizedPattern, ":") {
		matchers = append(matchers, "**/"+normalizedPattern)
	}

	for _, candidate := range matchers {
		matched, err := doublestar.Match(candidate, path)
		if err == nil && matched {
			return true
		}
	}

	return false
}

// ResolveToken picks the GitHub token: the flag value first, then GH_TOKEN,
// then GITHUB_TOKEN. It returns "" when none is set.
func ResolveToken(flagValue string) string {
	for _, token := range []string{flagValue, os.Getenv(constants.EnvGHToken), os.Getenv(constants.EnvGitHubToken)} {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	return ""
}

// ToAuditConfig produces the immutable per-run configuration
func (config *Config) ToAuditConfig(token string) state.AuditConfig {
	return state.AuditConfig{
		Pedantic:    config.Audit.Pedantic,
		Offline:     config.Audit.Offline,
		GitHubToken: token,
		APIBase:     config.Audit.APIBase,
	}
}

// SaveConfig saves configuration to a file
func SaveConfig(config *Config, filepath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Config is consumed by the rule engine
var _ rules.ConfigInterface = (*Config)(nil)
