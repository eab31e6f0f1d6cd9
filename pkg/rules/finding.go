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
	"fmt"
	"strings"

	auditerrors "github.com/harekrishnarai/pipeaudit/pkg/errors"
	"github.com/harekrishnarai/pipeaudit/pkg/linenum"
	"github.com/harekrishnarai/pipeaudit/pkg/parser"
)

// Severity represents the severity level of a finding. Values are ordered.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityInformational
	SeverityLow
	SeverityMedium
	SeverityHigh
)

var severityNames = []string{"unknown", "informational", "low", "medium", "high"}

func (s Severity) String() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity parses a severity name, case-insensitively. "info" is
// accepted as a short form of informational.
func ParseSeverity(s string) (Severity, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "info" {
		return SeverityInformational, nil
	}
	for i, n := range severityNames {
		if n == name {
			return Severity(i), nil
		}
	}
	return SeverityUnknown, fmt.Errorf("unknown severity %q", s)
}

// Confidence represents how certain a rule is about a finding. Values are ordered.
type Confidence int

const (
	ConfidenceUnknown Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

var confidenceNames = []string{"unknown", "low", "medium", "high"}

func (c Confidence) String() string {
	if c >= 0 && int(c) < len(confidenceNames) {
		return confidenceNames[c]
	}
	return fmt.Sprintf("Confidence(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseConfidence parses a confidence name, case-insensitively
func ParseConfidence(s string) (Confidence, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range confidenceNames {
		if n == name {
			return Confidence(i), nil
		}
	}
	return ConfidenceUnknown, fmt.Errorf("unknown confidence %q", s)
}

// SymbolicLocation is a route into a workflow plus a note on why it is flagged
type SymbolicLocation struct {
	Route      linenum.Route
	Annotation string
}

// StepLocation returns the symbolic location of a whole step
func StepLocation(step parser.Step) SymbolicLocation {
	return SymbolicLocation{Route: step.Location()}
}

// JobLocation returns the symbolic location of a whole job
func JobLocation(job parser.Job) SymbolicLocation {
	return SymbolicLocation{Route: job.Location()}
}

// With narrows the location to a key path below it
func (l SymbolicLocation) With(keys ...string) SymbolicLocation {
	return SymbolicLocation{Route: l.Route.With(keys...), Annotation: l.Annotation}
}

// Annotated sets the annotation
func (l SymbolicLocation) Annotated(annotation string) SymbolicLocation {
	return SymbolicLocation{Route: l.Route, Annotation: annotation}
}

// Location is a symbolic location resolved against a specific workflow
type Location struct {
	Route      string             `json:"route"`
	Annotation string             `json:"annotation"`
	Concrete   linenum.LineResult `json:"concrete"`
}

// Finding represents a detected security issue
type Finding struct {
	Ident      string     `json:"ident"`
	Desc       string     `json:"desc"`
	Severity   Severity   `json:"severity"`
	Confidence Confidence `json:"confidence"`
	Path       string     `json:"path"`
	Locations  []Location `json:"locations"`
}

// Primary returns the first location, which is where the finding is reported
func (f Finding) Primary() Location {
	return f.Locations[0]
}

// FindingBuilder accumulates the parts of a finding before binding it to a workflow
type FindingBuilder struct {
	ident      string
	desc       string
	severity   Severity
	confidence Confidence
	locations  []SymbolicLocation
}

// NewFinding starts a finding on behalf of a rule
func NewFinding(rule Rule) *FindingBuilder {
	return NewFindingFor(rule.Ident(), rule.Desc())
}

// NewFindingFor starts a finding with an explicit ident and description, for
// rules such as user policies that report under more than one ident.
func NewFindingFor(ident, desc string) *FindingBuilder {
	return &FindingBuilder{ident: ident, desc: desc}
}

// Severity sets the severity
func (b *FindingBuilder) Severity(s Severity) *FindingBuilder {
	b.severity = s
	return b
}

// Confidence sets the confidence
func (b *FindingBuilder) Confidence(c Confidence) *FindingBuilder {
	b.confidence = c
	return b
}

// AddLocation appends a location
func (b *FindingBuilder) AddLocation(loc SymbolicLocation) *FindingBuilder {
	b.locations = append(b.locations, loc)
	return b
}

// Build resolves every location against workflow. A location that does not
// resolve is an error, as is a finding with no locations.
func (b *FindingBuilder) Build(workflow *parser.WorkflowFile) (Finding, error) {
	if len(b.locations) == 0 {
		return Finding{}, auditerrors.NewRuleError("finding has no locations", nil, b.ident)
	}

	mapper := workflow.Mapper()
	locations := make([]Location, 0, len(b.locations))
	for _, loc := range b.locations {
		concrete, err := mapper.Resolve(loc.Route)
		if err != nil {
			return Finding{}, auditerrors.NewLocationError(loc.Route.String(), workflow.Path, err)
		}
		locations = append(locations, Location{
			Route:      loc.Route.String(),
			Annotation: loc.Annotation,
			Concrete:   *concrete,
		})
	}

	return Finding{
		Ident:      b.ident,
		Desc:       b.desc,
		Severity:   b.severity,
		Confidence: b.confidence,
		Path:       workflow.Path,
		Locations:  locations,
	}, nil
}
