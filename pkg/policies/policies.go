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

package policies

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"

	auditerrors "github.com/harekrishnarai/pipeaudit/pkg/errors"
	"github.com/harekrishnarai/pipeaudit/pkg/linenum"
	"github.com/harekrishnarai/pipeaudit/pkg/parser"
	"github.com/harekrishnarai/pipeaudit/pkg/rules"
)

const (
	// Query evaluated against every policy module
	Query = "data.pipeaudit.deny[x]"

	policyIdent = "custom-policy"
	policyDesc  = "workflow violates a custom policy"
)

// PolicyRule evaluates user-supplied Rego policies as a rule
type PolicyRule struct {
	policies []preparedPolicy
}

type preparedPolicy struct {
	file  string
	query rego.PreparedEvalQuery
}

// NewPolicyRule compiles every policy file up front, so a broken policy
// fails the run before any workflow is audited.
func NewPolicyRule(ctx context.Context, policyFiles []string) (*PolicyRule, error) {
	rule := &PolicyRule{}

	for _, policyFile := range policyFiles {
		policyContent, err := os.ReadFile(policyFile)
		if err != nil {
			return nil, auditerrors.NewConfigError(fmt.Sprintf("failed to read policy file %s", policyFile), err)
		}

		query, err := rego.New(
			rego.Query(Query),
			rego.Module(filepath.Base(policyFile), string(policyContent)),
		).PrepareForEval(ctx)
		if err != nil {
			return nil, auditerrors.NewConfigError(fmt.Sprintf("failed to compile policy %s", policyFile), err,
				"Check the policy with `opa check`",
				"Policies must declare `package pipeaudit` and a `deny` set")
		}

		rule.policies = append(rule.policies, preparedPolicy{file: policyFile, query: query})
	}

	return rule, nil
}

func (r *PolicyRule) Ident() string { return policyIdent }
func (r *PolicyRule) Desc() string  { return policyDesc }

// Audit evaluates each policy against the workflow. Every element of the
// deny set becomes one finding.
func (r *PolicyRule) Audit(ctx context.Context, workflow *parser.WorkflowFile) ([]rules.Finding, error) {
	if len(r.policies) == 0 {
		return nil, nil
	}

	input, err := prepareWorkflowData(workflow)
	if err != nil {
		return nil, err
	}

	var findings []rules.Finding
	for _, policy := range r.policies {
		rs, err := policy.query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return nil, fmt.Errorf("policy evaluation failed for %s: %w", policy.file, err)
		}

		for _, result := range rs {
			violation, ok := result.Bindings["x"].(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("policy %s: deny must contain objects, got %T", policy.file, result.Bindings["x"])
			}

			finding, err := convertViolationToFinding(violation, workflow)
			if err != nil {
				return nil, fmt.Errorf("policy %s: %w", policy.file, err)
			}
			findings = append(findings, finding)
		}
	}

	return findings, nil
}

// prepareWorkflowData builds the policy input: the workflow as plain data
// plus where it came from
func prepareWorkflowData(workflow *parser.WorkflowFile) (map[string]interface{}, error) {
	raw, err := workflow.Raw()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"path":     workflow.Path,
		"name":     workflow.Name,
		"workflow": raw,
	}, nil
}

// convertViolationToFinding converts a deny element into a finding. The
// location is built from job, step and keys, in that order.
func convertViolationToFinding(violation map[string]interface{}, workflow *parser.WorkflowFile) (rules.Finding, error) {
	id, _ := violation["id"].(string)
	if id == "" {
		id = policyIdent
	}

	description, _ := violation["description"].(string)
	if description == "" {
		description = policyDesc
	}

	severity := rules.SeverityMedium
	if s, ok := violation["severity"].(string); ok && s != "" {
		severity = parseSeverity(s)
	}

	confidence := rules.ConfidenceMedium
	if c, ok := violation["confidence"].(string); ok && c != "" {
		confidence, _ = rules.ParseConfidence(c)
	}

	route := linenum.Route{}
	if job, ok := violation["job"].(string); ok && job != "" {
		route = append(route, "jobs", job)

		if raw, present := violation["step"]; present {
			index, err := toInt(raw)
			if err != nil {
				return rules.Finding{}, fmt.Errorf("violation %s: step: %w", id, err)
			}
			route = append(route, "steps", index)
		}
	}

	if rawKeys, ok := violation["keys"].([]interface{}); ok {
		for _, k := range rawKeys {
			key, ok := k.(string)
			if !ok {
				return rules.Finding{}, fmt.Errorf("violation %s: keys must be strings, got %T", id, k)
			}
			route = append(route, key)
		}
	}

	annotation, _ := violation["annotation"].(string)
	if annotation == "" {
		annotation = description
	}

	return rules.NewFindingFor(id, description).
		Severity(severity).
		Confidence(confidence).
		AddLocation(rules.SymbolicLocation{Route: route, Annotation: annotation}).
		Build(workflow)
}

// parseSeverity accepts the severity names findings use, plus "critical"
// which policies commonly borrow from advisory databases
func parseSeverity(s string) rules.Severity {
	if strings.EqualFold(s, "critical") {
		return rules.SeverityHigh
	}
	severity, err := rules.ParseSeverity(s)
	if err != nil {
		return rules.SeverityUnknown
	}
	return severity
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %s", n)
		}
		return int(i), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

// LoadPolicyFiles loads policy files from a directory or file
func LoadPolicyFiles(policyPath string) ([]string, error) {
	var policyFiles []string

	fileInfo, err := os.Stat(policyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access policy path: %w", err)
	}

	if fileInfo.IsDir() {
		// Walk the directory to find .rego files
		err = filepath.Walk(policyPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && filepath.Ext(path) == ".rego" && !strings.HasSuffix(path, "_test.rego") {
				policyFiles = append(policyFiles, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk policy directory: %w", err)
		}
	} else {
		// Single file
		if filepath.Ext(policyPath) == ".rego" {
			policyFiles = append(policyFiles, policyPath)
		} else {
			return nil, fmt.Errorf("policy file must have .rego extension")
		}
	}

	if len(policyFiles) == 0 {
		return nil, fmt.Errorf("no policy files found at %s", policyPath)
	}

	return policyFiles, nil
}

// ExamplePolicy is written by CreateExamplePolicy
const ExamplePolicy = `package pipeaudit

# Workflows should not grant every permission at the top level
deny contains violation if {
	input.workflow.permissions == "write-all"

	violation := {
		"id": "broad-permissions",
		"description": "workflow grants write-all permissions",
		"severity": "high",
		"confidence": "high",
		"keys": ["permissions"],
		"annotation": "use per-scope permissions instead of write-all",
	}
}

# Actions from outside the organization should be pinned to a commit
deny contains violation if {
	some job_name, i
	uses := input.workflow.jobs[job_name].steps[i].uses
	not startswith(uses, "./")
	not startswith(uses, "docker://")
	not regex.match("@[0-9a-f]{40}$", uses)

	violation := {
		"id": "unpinned-action",
		"description": "action is not pinned to a commit SHA",
		"severity": "medium",
		"confidence": "high",
		"job": job_name,
		"step": i,
		"keys": ["uses"],
		"annotation": sprintf("%s is referenced by a mutable ref", [uses]),
	}
}
`

// CreateExamplePolicy creates an example policy file
func CreateExamplePolicy(filePath string) error {
	// Create the directory if it doesn't exist
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write the example policy file
	if err := os.WriteFile(filePath, []byte(ExamplePolicy), 0644); err != nil {
		return fmt.Errorf("failed to write example policy file: %w", err)
	}

	return nil
}
