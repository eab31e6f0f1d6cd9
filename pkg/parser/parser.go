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

package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harekrishnarai/pipeaudit/pkg/constants"
	auditerrors "github.com/harekrishnarai/pipeaudit/pkg/errors"
	"github.com/harekrishnarai/pipeaudit/pkg/linenum"
)

// WorkflowFile represents a GitHub Actions workflow file
type WorkflowFile struct {
	Path     string
	Name     string
	Content  []byte
	Workflow Workflow

	root   *yaml.Node
	mapper *linenum.LineMapper
}

// Workflow represents the parsed structure of a GitHub Actions workflow file.
// Jobs are kept in document order.
type Workflow struct {
	Name        string
	On          interface{}
	Env         map[string]EnvValue
	Permissions interface{}
	Jobs        []Job
}

// JobKind discriminates between the two shapes a job can take
type JobKind int

const (
	// NormalJob is a job that runs its own steps
	NormalJob JobKind = iota
	// ReusableWorkflowCallJob is a job that calls another workflow via a job-level uses
	ReusableWorkflowCallJob
)

func (k JobKind) String() string {
	if k == ReusableWorkflowCallJob {
		return "reusable-workflow-call"
	}
	return "normal"
}

// Job represents a job in a GitHub Actions workflow
type Job struct {
	ID              string
	Kind            JobKind
	Name            string
	RunsOn          interface{}
	Permissions     interface{}
	Needs           interface{}
	If              string
	Uses            string
	With            map[string]EnvValue
	Steps           []Step
	Env             map[string]EnvValue
	ContinueOnError interface{}
}

// Location returns the route to this job inside its workflow
func (j Job) Location() linenum.Route {
	return linenum.Route{"jobs", j.ID}
}

// Step represents a step in a GitHub Actions job
type Step struct {
	JobID string
	Index int
	Name  string
	ID    string
	If    string
	Env   map[string]EnvValue
	Body  StepBody
}

// Location returns the route to this step inside its workflow
func (s Step) Location() linenum.Route {
	return linenum.Route{"jobs", s.JobID, "steps", s.Index}
}

// StepBody is either a UsesBody or a RunBody
type StepBody interface {
	stepBody()
}

// UsesBody is the body of a step that invokes an external action
type UsesBody struct {
	Uses string
	With map[string]EnvValue
}

// RunBody is the body of a step that runs a script
type RunBody struct {
	Run              string
	Shell            string
	WorkingDirectory string
}

func (UsesBody) stepBody() {}
func (RunBody) stepBody()  {}

// EnvValue is a scalar from an env or with mapping, kept in its textual form
// so that `true` and "true" compare equal.
type EnvValue struct {
	value string
}

// UnmarshalYAML implements yaml.Unmarshaler
func (v *EnvValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value, got %s", node.Line, kindName(node.Kind))
	}
	v.value = node.Value
	return nil
}

func (v EnvValue) String() string {
	return v.value
}

type rawWorkflow struct {
	Name        string              `yaml:"name"`
	On          interface{}         `yaml:"on"`
	Env         map[string]EnvValue `yaml:"env,omitempty"`
	Permissions interface{}         `yaml:"permissions,omitempty"`
	Jobs        yaml.Node           `yaml:"jobs"`
}

type rawJob struct {
	Name            string              `yaml:"name,omitempty"`
	RunsOn          interface{}         `yaml:"runs-on"`
	Permissions     interface{}         `yaml:"permissions,omitempty"`
	Needs           interface{}         `yaml:"needs,omitempty"`
	If              string              `yaml:"if,omitempty"`
	Uses            string              `yaml:"uses,omitempty"`
	With            map[string]EnvValue `yaml:"with,omitempty"`
	Steps           []rawStep           `yaml:"steps"`
	Env             map[string]EnvValue `yaml:"env,omitempty"`
	ContinueOnError interface{}         `yaml:"continue-on-error,omitempty"`
}

type rawStep struct {
	Name             string              `yaml:"name,omitempty"`
	ID               string              `yaml:"id,omitempty"`
	If               string              `yaml:"if,omitempty"`
	Uses             string              `yaml:"uses,omitempty"`
	Run              string              `yaml:"run,omitempty"`
	Shell            string              `yaml:"shell,omitempty"`
	With             map[string]EnvValue `yaml:"with,omitempty"`
	Env              map[string]EnvValue `yaml:"env,omitempty"`
	WorkingDirectory string              `yaml:"working-directory,omitempty"`
}

// ParseWorkflow parses workflow content that is already in memory
func ParseWorkflow(path string, content []byte) (*WorkflowFile, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, auditerrors.NewWorkflowError("failed to parse workflow file", err, path,
			"Check that the file is valid YAML")
	}

	var raw rawWorkflow
	if err := root.Decode(&raw); err != nil {
		return nil, auditerrors.NewWorkflowError("failed to parse workflow file", err, path)
	}

	workflow := Workflow{
		Name:        raw.Name,
		On:          raw.On,
		Env:         raw.Env,
		Permissions: raw.Permissions,
	}

	if raw.Jobs.Kind != 0 && raw.Jobs.Kind != yaml.MappingNode {
		return nil, auditerrors.NewWorkflowError("failed to parse workflow file: jobs must be a mapping", nil, path)
	}

	for i := 0; i+1 < len(raw.Jobs.Content); i += 2 {
		id := raw.Jobs.Content[i].Value

		var rj rawJob
		if err := raw.Jobs.Content[i+1].Decode(&rj); err != nil {
			return nil, auditerrors.NewWorkflowError(fmt.Sprintf("failed to parse job %s", id), err, path)
		}
		workflow.Jobs = append(workflow.Jobs, buildJob(id, rj))
	}

	return &WorkflowFile{
		Path:     path,
		Name:     filepath.Base(path),
		Content:  content,
		Workflow: workflow,
		root:     &root,
		mapper:   linenum.NewLineMapperFromNode(content, &root),
	}, nil
}

func buildJob(id string, rj rawJob) Job {
	job := Job{
		ID:              id,
		Kind:            NormalJob,
		Name:            rj.Name,
		RunsOn:          rj.RunsOn,
		Permissions:     rj.Permissions,
		Needs:           rj.Needs,
		If:              rj.If,
		Uses:            rj.Uses,
		With:            rj.With,
		Env:             rj.Env,
		ContinueOnError: rj.ContinueOnError,
	}
	if rj.Uses != "" {
		job.Kind = ReusableWorkflowCallJob
		return job
	}

	for idx, rs := range rj.Steps {
		step := Step{
			JobID: id,
			Index: idx,
			Name:  rs.Name,
			ID:    rs.ID,
			If:    rs.If,
			Env:   rs.Env,
		}
		if rs.Uses != "" {
			with := rs.With
			if with == nil {
				with = map[string]EnvValue{}
			}
			step.Body = UsesBody{Uses: rs.Uses, With: with}
		} else {
			step.Body = RunBody{Run: rs.Run, Shell: rs.Shell, WorkingDirectory: rs.WorkingDirectory}
		}
		job.Steps = append(job.Steps, step)
	}
	return job
}

// Mapper returns the line mapper used to resolve locations in this workflow
func (w *WorkflowFile) Mapper() *linenum.LineMapper {
	if w.mapper == nil {
		// Hand-built WorkflowFiles carry only Content.
		mapper, err := linenum.NewLineMapper(w.Content)
		if err != nil {
			mapper = linenum.NewLineMapperFromNode(w.Content, nil)
		}
		w.mapper = mapper
	}
	return w.mapper
}

// Raw returns the workflow as plain maps and slices, suitable for policy input
func (w *WorkflowFile) Raw() (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if w.root == nil {
		if err := yaml.Unmarshal(w.Content, &out); err != nil {
			return nil, fmt.Errorf("failed to decode workflow %s: %w", w.Path, err)
		}
		return out, nil
	}
	if err := w.root.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", w.Path, err)
	}
	return out, nil
}

// FindWorkflows searches for GitHub Actions workflow files in a repository
func FindWorkflows(repoPath string) ([]*WorkflowFile, error) {
	workflowsDir := filepath.Join(repoPath, filepath.FromSlash(constants.GitHubWorkflowsPath))

	// Check if workflows directory exists
	if _, err := os.Stat(workflowsDir); os.IsNotExist(err) {
		return nil, auditerrors.NewWorkflowError(fmt.Sprintf("no %s directory found", constants.GitHubWorkflowsPath), nil, repoPath,
			"Pass a workflow file directly, or the root of a repository")
	}

	var workflows []*WorkflowFile
	err := filepath.Walk(workflowsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || !isYAML(info.Name()) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return auditerrors.NewWorkflowError("failed to read workflow file", err, path)
		}

		workflow, err := ParseWorkflow(path, content)
		if err != nil {
			return err
		}

		workflows = append(workflows, workflow)
		return nil
	})

	if err != nil {
		return nil, auditerrors.NewWorkflowError("error searching for workflow files", err, workflowsDir)
	}

	if len(workflows) == 0 {
		return nil, auditerrors.NewWorkflowError("no workflow files found", nil, workflowsDir)
	}

	return workflows, nil
}

// LoadSingleWorkflow loads and parses a single workflow file
func LoadSingleWorkflow(filePath string) (*WorkflowFile, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, auditerrors.NewWorkflowError("workflow file not found", nil, filePath)
	}

	if !isYAML(filePath) {
		return nil, auditerrors.NewWorkflowError("file does not have a YAML extension (.yml or .yaml)", nil, filePath)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, auditerrors.NewWorkflowError("failed to read workflow file", err, filePath)
	}

	return ParseWorkflow(filePath, content)
}

// Collect resolves each input to workflow files: directories are searched
// for .github/workflows, anything else is loaded as a single workflow.
func Collect(inputs []string) ([]*WorkflowFile, error) {
	var workflows []*WorkflowFile
	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, auditerrors.NewWorkflowError("cannot access input", err, input)
		}

		if info.IsDir() {
			found, err := FindWorkflows(input)
			if err != nil {
				return nil, err
			}
			workflows = append(workflows, found...)
			continue
		}

		workflow, err := LoadSingleWorkflow(input)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, workflow)
	}
	return workflows, nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")
}

func kindName(kind yaml.Kind) string {
	switch kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}
