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
	"os"
	"path/filepath"
	"testing"

	auditerrors "github.com/harekrishnarai/pipeaudit/pkg/errors"
	"github.com/harekrishnarai/pipeaudit/pkg/rules"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".pipeaudit.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Version != "1" {
		t.Errorf("Expected version '1', got '%s'", config.Version)
	}

	if config.Output.Format != "cli" {
		t.Errorf("Expected default format 'cli', got '%s'", config.Output.Format)
	}

	if config.MinSeverity() != rules.SeverityUnknown {
		t.Errorf("Expected default min severity to report everything, got '%s'", config.MinSeverity())
	}

	if config.Audit.Offline || config.Audit.Pedantic {
		t.Error("Expected online, non-pedantic defaults")
	}
}

func TestLoadConfig(t *testing.T) {
	// Test loading non-existent file returns default config
	config, err := LoadConfig("non-existent-file.yml")
	if err != nil {
		t.Fatalf("Expected no error for non-existent file, got: %v", err)
	}

	if config.Version != "1" {
		t.Errorf("Expected default config, got version '%s'", config.Version)
	}
}

func TestLoadConfig_Fields(t *testing.T) {
	path := writeConfig(t, `
rules:
  disabled: [ref-confusion]
  ignore:
    files: ["vendor/**"]
    rules:
      use-trusted-publishing:
        files: [".github/workflows/legacy.yml"]
output:
  format: json
  min_severity: medium
audit:
  pedantic: true
  offline: true
policies:
  - policies/
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.IsRuleEnabled("ref-confusion") || !config.IsRuleEnabled("use-trusted-publishing") {
		t.Error("Disabled rules not loaded correctly")
	}
	if config.Output.Format != "json" || config.MinSeverity() != rules.SeverityMedium {
		t.Errorf("Output not loaded correctly: %+v", config.Output)
	}
	if !config.Audit.Pedantic || !config.Audit.Offline {
		t.Errorf("Audit settings not loaded correctly: %+v", config.Audit)
	}
	if len(config.Policies) != 1 || config.Policies[0] != "policies/" {
		t.Errorf("Policies not loaded correctly: %v", config.Policies)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantType auditerrors.ErrorType
	}{
		{"malformed yaml", "rules: [", auditerrors.ErrorTypeConfig},
		{"unknown format", "output:\n  format: xml\n", auditerrors.ErrorTypeValidation},
		{"unknown severity", "output:\n  min_severity: critical\n", auditerrors.ErrorTypeValidation},
		{"bad glob", "rules:\n  ignore:\n    files: [\"[unterminated\"]\n", auditerrors.ErrorTypeValidation},
		{"api base without scheme", "audit:\n  api_base: github.example.com/api/v3\n", auditerrors.ErrorTypeValidation},
		{"api base unparsable", "audit:\n  api_base: \"http://[::1\"\n", auditerrors.ErrorTypeValidation},
		{"api base wrong scheme", "audit:\n  api_base: ftp://github.example.com/\n", auditerrors.ErrorTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if !auditerrors.IsType(err, tt.wantType) {
				t.Errorf("Expected a %s error, got %v", tt.wantType, err)
			}
		})
	}
}

func TestLoadConfig_APIBase(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "audit:\n  api_base: https://github.example.com/api/v3/\n"))
	if err != nil {
		t.Fatalf("Expected a valid API base to load, got %v", err)
	}
	if config.Audit.APIBase != "https://github.example.com/api/v3/" {
		t.Errorf("API base not loaded correctly: %q", config.Audit.APIBase)
	}
}

func TestIsRuleEnabled(t *testing.T) {
	// Test with no specific enabled rules (all enabled by default)
	config := DefaultConfig()

	if !config.IsRuleEnabled("any-rule") {
		t.Error("Expected rule to be enabled when no specific rules configured")
	}

	// Test with specific enabled rules
	config.Rules.Enabled = []string{"rule-1", "rule-2"}

	if !config.IsRuleEnabled("rule-1") {
		t.Error("Expected rule-1 to be enabled")
	}

	if config.IsRuleEnabled("rule-3") {
		t.Error("Expected rule-3 to be disabled")
	}

	// Test with disabled rules
	config.Rules.Enabled = []string{} // Reset enabled rules
	config.Rules.Disabled = []string{"rule-1"}

	if config.IsRuleEnabled("rule-1") {
		t.Error("Expected rule-1 to be disabled")
	}

	if !config.IsRuleEnabled("rule-2") {
		t.Error("Expected rule-2 to be enabled")
	}
}

func TestShouldIgnoreForRule(t *testing.T) {
	config := DefaultConfig()
	config.Rules.Ignore.Files = []string{"test/**"}
	config.Rules.Ignore.Rules = map[string]RuleIgnores{
		"known-vulnerable-actions": {
			Files: []string{"examples/**"},
		},
	}

	// Test file pattern ignore
	if !config.ShouldIgnoreForRule("any-rule", "test/file.yml") {
		t.Error("Expected finding in test/ to be ignored")
	}

	// Patterns also match below the working directory
	if !config.ShouldIgnoreForRule("any-rule", "repo/test/file.yml") {
		t.Error("Expected finding in repo/test/ to be ignored")
	}

	// Test rule-specific file ignore
	if !config.ShouldIgnoreForRule("known-vulnerable-actions", "examples/demo.yml") {
		t.Error("Expected findings in examples/ to be ignored for known-vulnerable-actions")
	}

	if config.ShouldIgnoreForRule("ref-confusion", "examples/demo.yml") {
		t.Error("Expected the rule-specific ignore not to apply to other rules")
	}

	// Test no ignore
	if config.ShouldIgnoreForRule("other-rule", "src/file.yml") {
		t.Error("Expected finding to not be ignored")
	}
}

func TestResolveToken(t *testing.T) {
	tests := []struct {
		name        string
		flag        string
		ghToken     string
		githubToken string
		want        string
	}{
		{"flag wins", "from-flag", "from-gh", "from-github", "from-flag"},
		{"GH_TOKEN before GITHUB_TOKEN", "", "from-gh", "from-github", "from-gh"},
		{"GITHUB_TOKEN fallback", "", "", "from-github", "from-github"},
		{"whitespace is not a token", "  ", "", "", ""},
		{"none", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GH_TOKEN", tt.ghToken)
			t.Setenv("GITHUB_TOKEN", tt.githubToken)

			if got := ResolveToken(tt.flag); got != tt.want {
				t.Errorf("ResolveToken(%q) = %q, want %q", tt.flag, got, tt.want)
			}
		})
	}
}

func TestToAuditConfig(t *testing.T) {
	config := DefaultConfig()
	config.Audit.Pedantic = true
	config.Audit.Offline = true
	config.Audit.APIBase = "https://ghe.example.com/api/v3/"

	audit := config.ToAuditConfig("token")
	if !audit.Pedantic || !audit.Offline || audit.GitHubToken != "token" || audit.APIBase != config.Audit.APIBase {
		t.Errorf("Unexpected audit config %+v", audit)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	// Create a test config
	config := DefaultConfig()
	config.Rules.Disabled = []string{"ref-confusion"}
	config.Output.MinSeverity = "high"

	tmpFile := filepath.Join(t.TempDir(), "test_config.yml")

	err := SaveConfig(config, tmpFile)
	if err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	// Load the config back
	loadedConfig, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify the loaded config
	if len(loadedConfig.Rules.Disabled) != 1 || loadedConfig.Rules.Disabled[0] != "ref-confusion" {
		t.Error("Disabled rules not loaded correctly")
	}

	if loadedConfig.MinSeverity() != rules.SeverityHigh {
		t.Errorf("MinSeverity not loaded correctly, expected 'high', got '%s'", loadedConfig.Output.MinSeverity)
	}
}
