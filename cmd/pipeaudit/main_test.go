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

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/harekrishnarai/pipeaudit/pkg/config"
	"github.com/harekrishnarai/pipeaudit/pkg/constants"
	auditerrors "github.com/harekrishnarai/pipeaudit/pkg/errors"
	"github.com/harekrishnarai/pipeaudit/pkg/policies"
)

const publishWorkflow = `name: release
on: push
jobs:
  publish:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - uses: pypa/gh-action-pypi-publish@release/v1
        with:
          password: ${{ secrets.PYPI_TOKEN }}
`

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"pipeaudit"}, args...))
	return out.String(), err
}

func writeWorkflow(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "release.yml")
	if err := os.WriteFile(path, []byte(publishWorkflow), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAuditJSON(t *testing.T) {
	path := writeWorkflow(t)

	out, err := runApp(t, "--offline", "--format", "json", path)
	if err != nil {
		t.Fatalf("audit failed: %v\n%s", err, out)
	}

	var result struct {
		RulesCount   int      `json:"rulesCount"`
		SkippedRules []string `json:"skippedRules"`
		Findings     []struct {
			Ident string `json:"ident"`
		} `json:"findings"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}

	if result.RulesCount != 1 {
		t.Errorf("Expected only the offline rule to run, got %d rules", result.RulesCount)
	}
	if len(result.SkippedRules) != 2 {
		t.Errorf("Expected the two online rules to be skipped, got %v", result.SkippedRules)
	}
	if len(result.Findings) != 1 || result.Findings[0].Ident != "use-trusted-publishing" {
		t.Errorf("Expected one use-trusted-publishing finding, got %+v", result.Findings)
	}
}

func TestAuditMinSeverityFilters(t *testing.T) {
	path := writeWorkflow(t)

	out, err := runApp(t, "--offline", "--format", "json", "--min-severity", "low", path)
	if err != nil {
		t.Fatalf("audit failed: %v\n%s", err, out)
	}
	if strings.Contains(out, `"ident": "use-trusted-publishing"`) {
		t.Errorf("Expected informational finding to be filtered\n%s", out)
	}
	if !strings.Contains(out, `"filteredCount": 1`) {
		t.Errorf("Expected one filtered finding\n%s", out)
	}
}

func TestAuditWithPolicy(t *testing.T) {
	path := writeWorkflow(t)
	policyPath := filepath.Join(t.TempDir(), "example.rego")
	if err := policies.CreateExamplePolicy(policyPath); err != nil {
		t.Fatal(err)
	}

	out, err := runApp(t, "--offline", "--format", "json", "--policy", policyPath, path)
	if err != nil {
		t.Fatalf("audit failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"ident": "unpinned-action"`) {
		t.Errorf("Expected a policy finding\n%s", out)
	}
}

func TestAuditErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		exitCode int
	}{
		{"no inputs", []string{"--offline"}, 2},
		{"missing input", []string{"--offline", filepath.Join(t.TempDir(), "nope.yml")}, 1},
		{"bad severity", []string{"--offline", "--min-severity", "severe", writeWorkflow(t)}, 2},
		{"bad format", []string{"--offline", "--format", "xml", writeWorkflow(t)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args...)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if got := exitCode(err); got != tt.exitCode {
				t.Errorf("Expected exit code %d, got %d (%v)", tt.exitCode, got, err)
			}
		})
	}
}

func TestDescribeError(t *testing.T) {
	wrapped := fmt.Errorf("%s: %w", constants.ErrConfigLoadFailed,
		auditerrors.NewValidationError("unsupported output format", "format", "xml", "Use one of: cli, json, sarif"))

	msg := describeError(wrapped)
	for _, want := range []string{"unsupported output format", "Suggestions:", "Use one of: cli, json, sarif"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected %q in %q", want, msg)
		}
	}

	if got := describeError(errors.New("plain failure")); got != "plain failure" {
		t.Errorf("Expected plain errors unchanged, got %q", got)
	}
}

func TestWarnf(t *testing.T) {
	t.Run("terminal", func(t *testing.T) {
		t.Setenv(constants.EnvGitHubActions, "")
		var buf bytes.Buffer
		warnf(&buf, "no workflow files found in %s", "repo")
		if got := buf.String(); !strings.Contains(got, "warning: no workflow files found in repo\n") {
			t.Errorf("unexpected warning %q", got)
		}
	})

	t.Run("github actions", func(t *testing.T) {
		t.Setenv(constants.EnvGitHubActions, "true")
		var buf bytes.Buffer
		warnf(&buf, "no GitHub token found\n")
		if got := buf.String(); got != "::warning::no GitHub token found\n" {
			t.Errorf("Expected a workflow command, got %q", got)
		}
	})
}

func TestListRules(t *testing.T) {
	out, err := runApp(t, "list-rules")
	if err != nil {
		t.Fatalf("list-rules failed: %v", err)
	}
	for _, ident := range []string{"use-trusted-publishing", "known-vulnerable-actions", "ref-confusion"} {
		if !strings.Contains(out, ident) {
			t.Errorf("Expected %s in rule list\n%s", ident, out)
		}
	}
}

func TestInitPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies", "example.rego")
	if _, err := runApp(t, "init-policy", path); err != nil {
		t.Fatalf("init-policy failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected policy file at %s: %v", path, err)
	}
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pipeaudit.yml")

	out, err := runApp(t, "init-config", path)
	if err != nil {
		t.Fatalf("init-config failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("Expected the written path in output\n%s", out)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Output.Format != constants.OutputFormatCLI {
		t.Errorf("Expected default format %q, got %q", constants.OutputFormatCLI, cfg.Output.Format)
	}

	_, err = runApp(t, "init-config", path)
	if !auditerrors.IsType(err, auditerrors.ErrorTypeConfig) {
		t.Errorf("Expected a config error for an existing file, got %v", err)
	}
}

func TestAuditVerboseReportsCacheStats(t *testing.T) {
	path := writeWorkflow(t)

	out, err := runApp(t, "--offline", "--verbose", "--format", "json", path)
	if err != nil {
		t.Fatalf("audit failed: %v\n%s", err, out)
	}

	var result struct {
		CacheStats map[string]struct {
			Entries int `json:"entries"`
		} `json:"cacheStats"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	for _, name := range []string{"branches", "tags", "ref-comparisons"} {
		if _, ok := result.CacheStats[name]; !ok {
			t.Errorf("Expected %s cache stats, got %v", name, result.CacheStats)
		}
	}
}
