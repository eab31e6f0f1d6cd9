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
	"strings"

	"github.com/harekrishnarai/pipeaudit/pkg/parser"
	"github.com/harekrishnarai/pipeaudit/pkg/state"
)

const (
	useTrustedPublishingIdent = "use-trusted-publishing"
	useTrustedPublishingDesc  = "prefer trusted publishing for authentication"

	usesManualCredential = "uses a manually-configured credential instead of Trusted Publishing"
)

// Package indices that support Trusted Publishing. A password sent to any
// other index is expected and not reported.
var knownPythonTPIndices = []string{
	"https://upload.pypi.org/legacy/",
	"https://test.pypi.org/legacy/",
}

// UseTrustedPublishing flags publishing actions that are configured with a
// long-lived credential where OIDC-based Trusted Publishing is available.
type UseTrustedPublishing struct {
	state *state.AuditState
}

// NewUseTrustedPublishing creates the rule. It needs nothing from the state.
func NewUseTrustedPublishing(st *state.AuditState) (Rule, error) {
	return &UseTrustedPublishing{state: st}, nil
}

func (r *UseTrustedPublishing) Ident() string { return useTrustedPublishingIdent }
func (r *UseTrustedPublishing) Desc() string  { return useTrustedPublishingDesc }

// Audit checks every uses: step of every normal job
func (r *UseTrustedPublishing) Audit(_ context.Context, workflow *parser.WorkflowFile) ([]Finding, error) {
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

			var credential SymbolicLocation
			switch {
			case strings.HasPrefix(body.Uses, "pypa/gh-action-pypi-publish"):
				if !pypiPublishUsesManualCredentials(body.With) {
					continue
				}
				credential = StepLocation(step).With("with", "password")
			case strings.HasPrefix(body.Uses, "rubygems/release-gem"):
				if !releaseGemUsesManualCredentials(body.With) {
					continue
				}
				credential = StepLocation(step)
			case strings.HasPrefix(body.Uses, "rubygems/configure-rubygems-credential"):
				if !rubygemsCredentialUsesManualCredentials(body.With) {
					continue
				}
				credential = StepLocation(step)
			default:
				continue
			}

			finding, err := NewFinding(r).
				Severity(SeverityInformational).
				Confidence(ConfidenceHigh).
				AddLocation(StepLocation(step).With("uses").Annotated("this step")).
				AddLocation(credential.Annotated(usesManualCredential)).
				Build(workflow)
			if err != nil {
				return nil, err
			}
			findings = append(findings, finding)
		}
	}

	return findings, nil
}

// A password alone means no Trusted Publishing, unless the upload goes to a
// third-party index that cannot offer it.
func pypiPublishUsesManualCredentials(with map[string]parser.EnvValue) bool {
	_, hasPassword := with["password"]

	repoURL, ok := with["repository-url"]
	if !ok {
		repoURL, ok = with["repository_url"]
	}
	if !ok {
		return hasPassword
	}

	for _, index := range knownPythonTPIndices {
		if repoURL.String() == index {
			return hasPassword
		}
	}
	return false
}

// Unset means the default, which is Trusted Publishing. Any value other than
// "true" turns it off.
func releaseGemUsesManualCredentials(with map[string]parser.EnvValue) bool {
	v, ok := with["setup-trusted-publisher"]
	if !ok {
		return false
	}
	return v.String() != "true"
}

func rubygemsCredentialUsesManualCredentials(with map[string]parser.EnvValue) bool {
	_, ok := with["api-token"]
	return ok
}
