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

package parser_test

import (
	"os"
	"path/filepath"
	"testing"

	auditerrors "github.com/harekrishnarai/pipeaudit/pkg/errors"
	"github.com/harekrishnarai/pipeaudit/pkg/parser"
)

const releaseWorkflow = `name: release
on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - run: make dist
  call:
    uses: org/shared/.github/workflows/release.yml@main
  publish:
    runs-on: ubuntu-latest
    steps:
      - uses: rubygems/release-gem@v1
        with:
          setup-trusted-publisher: true
          quoted: "true"
`

func writeWorkflow(t *testing.T, dir, name, content string) string {
	t.Helper()
	workflowsDir := filepath.Join(dir, ".github", "workflows")
	if err := os.MkdirAll(workflowsDir, 0755); err != nil {
		t.Fatalf("Failed to create workflows dir: %v", err)
	}
	path := filepath.Join(workflowsDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write workflow file: %v", err)
	}
	return path
}

func TestParseWorkflow_JobsInOrder(t *testing.T) {
	wf, err := parser.ParseWorkflow("release.yml", []byte(releaseWorkflow))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs := wf.Workflow.Jobs
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}

	expected := []struct {
		id   string
		kind parser.JobKind
	}{
		{"build", parser.NormalJob},
		{"call", parser.ReusableWorkflowCallJob},
		{"publish", parser.NormalJob},
	}
	for i, e := range expected {
		if jobs[i].ID != e.id || jobs[i].Kind != e.kind {
			t.Errorf("job %d: expected %s/%s, got %s/%s", i, e.id, e.kind, jobs[i].ID, jobs[i].Kind)
		}
	}
}

func TestParseWorkflow_StepBodies(t *testing.T) {
	wf, err := parser.ParseWorkflow("release.yml", []byte(releaseWorkflow))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	build := wf.Workflow.Jobs[0]
	if _, ok := build.Steps[0].Body.(parser.UsesBody); !ok {
		t.Errorf("expected first step to be a uses step, got %T", build.Steps[0].Body)
	}
	if run, ok := build.Steps[1].Body.(parser.RunBody); !ok || run.Run != "make dist" {
		t.Errorf("expected second step to run 'make dist', got %#v", build.Steps[1].Body)
	}

	publish := wf.Workflow.Jobs[2].Steps[0]
	uses, ok := publish.Body.(parser.UsesBody)
	if !ok {
		t.Fatalf("expected uses step, got %T", publish.Body)
	}
	if got := uses.With["setup-trusted-publisher"].String(); got != "true" {
		t.Errorf("expected boolean scalar to render as true, got %q", got)
	}
	if got := uses.With["quoted"].String(); got != "true" {
		t.Errorf("expected quoted scalar to render as true, got %q", got)
	}
	if publish.Location().String() != "jobs/publish/steps/0" {
		t.Errorf("unexpected step location %s", publish.Location())
	}
}

func TestParseWorkflow_StepLocationResolves(t *testing.T) {
	wf, err := parser.ParseWorkflow("release.yml", []byte(releaseWorkflow))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step := wf.Workflow.Jobs[2].Steps[0]
	result, err := wf.Mapper().Resolve(step.Location().With("with", "setup-trusted-publisher"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.LineNumber != 16 {
		t.Errorf("expected line 16, got %d", result.LineNumber)
	}
}

func TestFindWorkflows(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "release.yml", releaseWorkflow)
	writeWorkflow(t, dir, "ci.yaml", "on: push\njobs:\n  a:\n    runs-on: x\n    steps:\n      - run: true\n")
	writeWorkflow(t, dir, "README.md", "not a workflow")

	workflows, err := parser.FindWorkflows(dir)
	if err != nil {
		t.Fatalf("Failed to find workflows: %v", err)
	}

	if len(workflows) != 2 {
		t.Errorf("Expected to find 2 workflow files, got %d", len(workflows))
	}
}

func TestParseInvalidWorkflow(t *testing.T) {
	dir := t.TempDir()
	invalidYAML := `
name: Invalid Workflow
on: [push]
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
    - uses: actions/checkout@v3
  - name: Missing indentation
      run: echo "This YAML is invalid"
`
	writeWorkflow(t, dir, "invalid.yml", invalidYAML)

	if _, err := parser.FindWorkflows(dir); err == nil {
		t.Errorf("Expected error parsing invalid workflow, got nil")
	}
}

func TestLoadSingleWorkflow_RejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.txt")
	if err := os.WriteFile(path, []byte(releaseWorkflow), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := parser.LoadSingleWorkflow(path); err == nil {
		t.Error("Expected error for non-YAML extension")
	}
}

func TestLoadErrorsAreWorkflowErrors(t *testing.T) {
	empty := t.TempDir()
	txt := filepath.Join(t.TempDir(), "workflow.txt")
	if err := os.WriteFile(txt, []byte(releaseWorkflow), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		load func() error
	}{
		{"invalid yaml", func() error {
			_, err := parser.ParseWorkflow("bad.yml", []byte("jobs: [\n"))
			return err
		}},
		{"jobs not a mapping", func() error {
			_, err := parser.ParseWorkflow("bad.yml", []byte("on: push\njobs: [a, b]\n"))
			return err
		}},
		{"no workflows directory", func() error {
			_, err := parser.FindWorkflows(empty)
			return err
		}},
		{"missing file", func() error {
			_, err := parser.LoadSingleWorkflow(filepath.Join(empty, "missing.yml"))
			return err
		}},
		{"non-yaml extension", func() error {
			_, err := parser.LoadSingleWorkflow(txt)
			return err
		}},
		{"missing input", func() error {
			_, err := parser.Collect([]string{filepath.Join(empty, "nope")})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.load(); !auditerrors.IsType(err, auditerrors.ErrorTypeWorkflow) {
				t.Errorf("expected a workflow error, got %v", err)
			}
		})
	}
}

func TestParseUses(t *testing.T) {
	tests := []struct {
		uses     string
		owner    string
		repo     string
		subpath  string
		ref      string
		local    bool
		docker   bool
		sha      bool
		hasError bool
	}{
		{uses: "actions/checkout@v4", owner: "actions", repo: "checkout", ref: "v4"},
		{uses: "github/codeql-action/init@v3", owner: "github", repo: "codeql-action", subpath: "init", ref: "v3"},
		{uses: "actions/checkout@8e5e7e5ab8b370d6c329ec480221332ada57f0ab", owner: "actions", repo: "checkout", ref: "8e5e7e5ab8b370d6c329ec480221332ada57f0ab", sha: true},
		{uses: "./.github/actions/local", local: true},
		{uses: "docker://alpine:3.19", docker: true},
		{uses: "actions/checkout", hasError: true},
		{uses: "checkout@v4", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.uses, func(t *testing.T) {
			ref, err := parser.ParseUses(tt.uses)
			if tt.hasError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if ref.Owner != tt.owner || ref.Repo != tt.repo || ref.Subpath != tt.subpath || ref.Ref != tt.ref {
				t.Errorf("unexpected components: %+v", ref)
			}
			if ref.Local != tt.local || ref.Docker != tt.docker {
				t.Errorf("unexpected kind flags: %+v", ref)
			}
			if ref.IsCommitSHA() != tt.sha {
				t.Errorf("expected IsCommitSHA=%v", tt.sha)
			}
		})
	}
}
