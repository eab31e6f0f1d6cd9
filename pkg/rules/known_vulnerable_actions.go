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

package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/harekrishnarai/pipeaudit/pkg/github"
	"github.com/harekrishnarai/pipeaudit/pkg/parser"
	"github.com/harekrishnarai/pipeaudit/pkg/state"
)

const (
	knownVulnerableActionsIdent = "known-vulnerable-actions"
	knownVulnerableActionsDesc  = "action has a known vulnerability"
)

// KnownVulnerableActions reports uses: steps whose action version is covered
// by a GitHub Security Advisory.
type KnownVulnerableActions struct {
	client *github.Client
}

// NewKnownVulnerableActions creates the rule. It is skipped when no GitHub
// client is available.
func NewKnownVulnerableActions(st *state.AuditState) (Rule, error) {
	client, ok := st.GitHubClient()
	if !ok {
		return nil, ErrSkipRule
	}
	return &KnownVulnerableActions{client: client}, nil
}

func (r *KnownVulnerableActions) Ident() string { return knownVulnerableActionsIdent }
func (r *KnownVulnerableActions) Desc() string  { return knownVulnerableActionsDesc }

// Audit checks every remote action used by a normal job
func (r *KnownVulnerableActions) Audit(ctx context.Context, workflow *parser.WorkflowFile) ([]Finding, error) {
	var findings []Finding

	for _, job := range workflow.Workflow.Jobs {
		if job.Kind != parser.NormalJob {
			continue
		}

		for _, step := range job.Steps {
			body, ok := step.Body.(parser.UsesBody)
			if !ok {
				continue
			}
			uses, err := parser.ParseUses(body.Uses)
			if err != nil || !uses.IsRemote() {
				continue
			}

			version, ok, err := r.versionFor(ctx, uses)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			advisories, err := r.client.GHAAdvisories(ctx, uses.Owner, uses.Repo, version)
			if err != nil {
				return nil, err
			}

			for _, advisory := range advisories {
				finding, err := NewFinding(r).
					Severity(advisorySeverity(advisory.Severity)).
					Confidence(ConfidenceHigh).
					AddLocation(StepLocation(step).With("uses").
						Annotated(fmt.Sprintf("%s@%s is affected by %s", uses.Slug(), version, advisory.ID))).
					Build(workflow)
				if err != nil {
					return nil, err
				}
				findings = append(findings, finding)
			}
		}
	}

	return findings, nil
}

// versionFor maps a uses: ref to the version advisories are keyed by. A
// commit SHA is mapped through the longest tag pointing at it; ok is false
// when no tag does.
func (r *KnownVulnerableActions) versionFor(ctx context.Context, uses parser.UsesRef) (string, bool, error) {
	if !uses.IsCommitSHA() {
		return uses.Ref, true, nil
	}

	tag, err := r.client.LongestTagForCommit(ctx, uses.Owner, uses.Repo, strings.ToLower(uses.Ref))
	if err != nil {
		return "", false, err
	}
	if tag == nil {
		return "", false, nil
	}
	return tag.Name, true, nil
}

func advisorySeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "critical", "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityUnknown
	}
}
