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

	"github.com/harekrishnarai/pipeaudit/pkg/github"
	"github.com/harekrishnarai/pipeaudit/pkg/parser"
	"github.com/harekrishnarai/pipeaudit/pkg/state"
)

const (
	refConfusionIdent = "ref-confusion"
	refConfusionDesc  = "git ref for action with ambiguous ref type"

	refConfusionAnnotation = "uses a ref that is both a branch and a tag"
)

// RefConfusion reports symbolic refs that name both a branch and a tag in
// the action's repository, where either could be resolved.
type RefConfusion struct {
	client   *github.Client
	pedantic bool
}

// NewRefConfusion creates the rule. It is skipped when no GitHub client is
// available.
func NewRefConfusion(st *state.AuditState) (Rule, error) {
	client, ok := st.GitHubClient()
	if !ok {
		return nil, ErrSkipRule
	}
	return &RefConfusion{client: client, pedantic: st.Config.Pedantic}, nil
}

func (r *RefConfusion) Ident() string { return refConfusionIdent }
func (r *RefConfusion) Desc() string  { return refConfusionDesc }

// Audit checks uses: steps, and in pedantic mode reusable workflow calls too
func (r *RefConfusion) Audit(ctx context.Context, workflow *parser.WorkflowFile) ([]Finding, error) {
	var findings []Finding

	check := func(uses string, location SymbolicLocation) error {
		ref, err := parser.ParseUses(uses)
		if err != nil || !ref.IsRemote() || ref.IsCommitSHA() {
			return nil
		}

		confusable, err := r.confusable(ctx, ref)
		if err != nil || !confusable {
			return err
		}

		finding, err := NewFinding(r).
			Severity(SeverityMedium).
			Confidence(ConfidenceHigh).
			AddLocation(location.With("uses").Annotated(refConfusionAnnotation)).
			Build(workflow)
		if err != nil {
			return err
		}
		findings = append(findings, finding)
		return nil
	}

	for _, job := range workflow.Workflow.Jobs {
		if job.Kind == parser.ReusableWorkflowCallJob {
			if !r.pedantic {
				continue
			}
			if err := check(job.Uses, JobLocation(job)); err != nil {
				return nil, err
			}
			continue
		}

		for _, step := range job.Steps {
			body, ok := step.Body.(parser.UsesBody)
			if !ok {
				continue
			}
			if err := check(body.Uses, StepLocation(step)); err != nil {
				return nil, err
			}
		}
	}

	return findings, nil
}

func (r *RefConfusion) confusable(ctx context.Context, ref parser.UsesRef) (bool, error) {
	branches, err := r.client.ListBranches(ctx, ref.Owner, ref.Repo)
	if err != nil {
		return false, err
	}
	tags, err := r.client.ListTags(ctx, ref.Owner, ref.Repo)
	if err != nil {
		return false, err
	}

	isBranch := false
	for _, b := range branches {
		if b.Name == ref.Ref {
			isBranch = true
			break
		}
	}
	if !isBranch {
		return false, nil
	}
	for _, t := range tags {
		if t.Name == ref.Ref {
			return true, nil
		}
	}
	return false, nil
}
