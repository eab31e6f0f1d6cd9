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
	"errors"
	"fmt"

	auditerrors "github.com/harekrishnarai/pipeaudit/pkg/errors"
	"github.com/harekrishnarai/pipeaudit/pkg/parser"
	"github.com/harekrishnarai/pipeaudit/pkg/state"
)

//go:generate mockgen -destination=../concurrent/mock_rule_test.go -package=concurrent github.com/harekrishnarai/pipeaudit/pkg/rules Rule

// Rule is an audit over a single workflow. Implementations must not modify
// the workflow, and may consult a GitHub client from the audit state.
type Rule interface {
	Ident() string
	Desc() string
	Audit(ctx context.Context, workflow *parser.WorkflowFile) ([]Finding, error)
}

// Constructor builds a rule from the audit state. Constructors must not
// perform network I/O.
type Constructor func(st *state.AuditState) (Rule, error)

// ErrSkipRule is returned by a constructor when the rule cannot run in this
// configuration (for example, it needs a GitHub client and none is available).
var ErrSkipRule = errors.New("rule skipped")

// Entry describes a built-in rule
type Entry struct {
	Ident string
	Desc  string
	New   Constructor
}

// Registry returns the built-in rules in execution order
func Registry() []Entry {
	return []Entry{
		{Ident: useTrustedPublishingIdent, Desc: useTrustedPublishingDesc, New: NewUseTrustedPublishing},
		{Ident: knownVulnerableActionsIdent, Desc: knownVulnerableActionsDesc, New: NewKnownVulnerableActions},
		{Ident: refConfusionIdent, Desc: refConfusionDesc, New: NewRefConfusion},
	}
}

// NewRules instantiates every registry entry accepted by enabled. Rules that
// opt out with ErrSkipRule are left out, and their idents are returned in skipped.
func NewRules(st *state.AuditState, enabled func(ident string) bool) (rules []Rule, skipped []string, err error) {
	for _, entry := range Registry() {
		if enabled != nil && !enabled(entry.Ident) {
			continue
		}

		rule, err := entry.New(st)
		if errors.Is(err, ErrSkipRule) {
			skipped = append(skipped, entry.Ident)
			continue
		}
		if err != nil {
			return nil, nil, auditerrors.NewConstructionError(entry.Ident, err)
		}
		rules = append(rules, rule)
	}
	return rules, skipped, nil
}

// ConfigInterface defines the interface for configuration
type ConfigInterface interface {
	IsRuleEnabled(ruleID string) bool
	ShouldIgnoreForRule(ruleID, filePath string) bool
}

// RuleEngine handles rule execution with configuration support
type RuleEngine struct {
	config ConfigInterface
}

// NewRuleEngine creates a new rule engine with configuration
func NewRuleEngine(config ConfigInterface) *RuleEngine {
	return &RuleEngine{config: config}
}

// Run audits one workflow with one rule and filters the result through the
// configuration. A rule error is returned wrapped with the rule's ident.
func (re *RuleEngine) Run(ctx context.Context, rule Rule, workflow *parser.WorkflowFile) ([]Finding, error) {
	if re.config != nil && !re.config.IsRuleEnabled(rule.Ident()) {
		return nil, nil
	}

	findings, err := rule.Audit(ctx, workflow)
	if err != nil {
		return nil, auditerrors.NewRuleError(fmt.Sprintf("%s failed on %s", rule.Ident(), workflow.Path), err, rule.Ident())
	}

	var filtered []Finding
	for _, finding := range findings {
		if re.config == nil || !re.config.ShouldIgnoreForRule(finding.Ident, finding.Path) {
			filtered = append(filtered, finding)
		}
	}
	return filtered, nil
}

// ExecuteRules runs rules against a workflow in order. One rule failing does
// not stop the others; all failures are joined into the returned error.
func (re *RuleEngine) ExecuteRules(ctx context.Context, workflow *parser.WorkflowFile, rules []Rule) ([]Finding, error) {
	var (
		allFindings []Finding
		errs        []error
	)

	for _, rule := range rules {
		findings, err := re.Run(ctx, rule, workflow)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		allFindings = append(allFindings, findings...)
	}

	return allFindings, errors.Join(errs...)
}
