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

package report

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/harekrishnarai/pipeaudit/pkg/constants"
	"github.com/harekrishnarai/pipeaudit/pkg/rules"
)

// SARIF represents a Static Analysis Results Interchange Format report
// Based on SARIF v2.1.0 specification: https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-v2.1.0.html
type SARIF struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []SARIFRun `json:"runs"`
}

// SARIFRun represents a single analysis run
type SARIFRun struct {
	Tool        SARIFTool              `json:"tool"`
	Invocations []SARIFInvocation      `json:"invocations"`
	Results     []SARIFResult          `json:"results"`
	ColumnKind  string                 `json:"columnKind,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
}

// SARIFTool represents the analysis tool
type SARIFTool struct {
	Driver SARIFDriver `json:"driver"`
}

// SARIFDriver represents the tool driver
type SARIFDriver struct {
	Name            string      `json:"name"`
	Version         string      `json:"version,omitempty"`
	SemanticVersion string      `json:"semanticVersion,omitempty"`
	Rules           []SARIFRule `json:"rules,omitempty"`
}

// SARIFRule represents a rule definition
type SARIFRule struct {
	ID                   string                 `json:"id"`
	Name                 string                 `json:"name,omitempty"`
	ShortDescription     SARIFMessage           `json:"shortDescription"`
	DefaultConfiguration SARIFRuleConfiguration `json:"defaultConfiguration"`
	Properties           map[string]interface{} `json:"properties,omitempty"`
}

// SARIFRuleConfiguration represents rule configuration
type SARIFRuleConfiguration struct {
	Level string `json:"level"`
}

// SARIFInvocation represents tool invocation details
type SARIFInvocation struct {
	StartTimeUtc        time.Time `json:"startTimeUtc"`
	EndTimeUtc          time.Time `json:"endTimeUtc"`
	ExecutionSuccessful bool      `json:"executionSuccessful"`
}

// SARIFResult represents a single analysis result (finding)
type SARIFResult struct {
	RuleID              string                 `json:"ruleId"`
	RuleIndex           int                    `json:"ruleIndex"`
	Level               string                 `json:"level"`
	Message             SARIFMessage           `json:"message"`
	Locations           []SARIFLocation        `json:"locations"`
	RelatedLocations    []SARIFLocation        `json:"relatedLocations,omitempty"`
	PartialFingerprints map[string]string      `json:"partialFingerprints,omitempty"`
	Properties          map[string]interface{} `json:"properties,omitempty"`
}

// SARIFMessage represents a message in SARIF
type SARIFMessage struct {
	Text string `json:"text"`
}

// SARIFLocation represents a location where an issue was found
type SARIFLocation struct {
	ID               int                    `json:"id,omitempty"`
	PhysicalLocation SARIFPhysicalLocation  `json:"physicalLocation"`
	LogicalLocations []SARIFLogicalLocation `json:"logicalLocations,omitempty"`
	Message          *SARIFMessage          `json:"message,omitempty"`
}

// SARIFPhysicalLocation represents a physical location in source code
type SARIFPhysicalLocation struct {
	ArtifactLocation SARIFArtifactLocation `json:"artifactLocation"`
	Region           *SARIFRegion          `json:"region,omitempty"`
}

// SARIFLogicalLocation represents a logical location inside the workflow
type SARIFLogicalLocation struct {
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Kind               string `json:"kind,omitempty"`
}

// SARIFArtifactLocation represents a reference to an artifact
type SARIFArtifactLocation struct {
	URI string `json:"uri"`
}

// SARIFRegion represents a region in a file
type SARIFRegion struct {
	StartLine   int           `json:"startLine"`
	StartColumn int           `json:"startColumn,omitempty"`
	EndLine     int           `json:"endLine,omitempty"`
	EndColumn   int           `json:"endColumn,omitempty"`
	Snippet     *SARIFSnippet `json:"snippet,omitempty"`
}

// SARIFSnippet carries the source text of a region
type SARIFSnippet struct {
	Text string `json:"text"`
}

// createSARIFReport converts scan results to SARIF format
func (g *Generator) createSARIFReport() SARIF {
	// Rules are listed in first-seen order so ruleIndex is stable
	var sarifRules []SARIFRule
	ruleIndex := make(map[string]int)
	for _, finding := range g.Result.Findings {
		if _, exists := ruleIndex[finding.Ident]; !exists {
			ruleIndex[finding.Ident] = len(sarifRules)
			sarifRules = append(sarifRules, g.createSARIFRule(finding))
		}
	}

	results := make([]SARIFResult, 0, len(g.Result.Findings))
	for _, finding := range g.Result.Findings {
		results = append(results, g.createSARIFResult(finding, ruleIndex[finding.Ident]))
	}

	run := SARIFRun{
		Tool: SARIFTool{
			Driver: SARIFDriver{
				Name:            constants.AppName,
				Version:         constants.AppVersion,
				SemanticVersion: constants.AppVersion,
				Rules:           sarifRules,
			},
		},
		Invocations: []SARIFInvocation{{
			StartTimeUtc:        g.Result.ScanTime.UTC(),
			EndTimeUtc:          g.Result.ScanTime.Add(g.Result.Duration).UTC(),
			ExecutionSuccessful: len(g.Result.Failures) == 0,
		}},
		Results:    results,
		ColumnKind: "unicodeCodePoints",
		Properties: map[string]interface{}{
			"runId":          g.Result.RunID,
			"workflowsCount": g.Result.WorkflowsCount,
			"rulesCount":     g.Result.RulesCount,
			"summary":        g.Result.Summary,
		},
	}

	return SARIF{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Runs:    []SARIFRun{run},
	}
}

// createSARIFRule converts a finding to a SARIF rule definition
func (g *Generator) createSARIFRule(finding rules.Finding) SARIFRule {
	return SARIFRule{
		ID:   finding.Ident,
		Name: finding.Ident,
		ShortDescription: SARIFMessage{
			Text: finding.Desc,
		},
		DefaultConfiguration: SARIFRuleConfiguration{
			Level: severityToSARIFLevel(finding.Severity),
		},
		Properties: map[string]interface{}{
			"tags":              []string{"security", "github-actions"},
			"precision":         precision(finding.Confidence),
			"security-severity": securitySeverityScore(finding.Severity),
		},
	}
}

// createSARIFResult converts a finding to a SARIF result. The primary
// location becomes the result location; every annotated location is
// also listed as a related location.
func (g *Generator) createSARIFResult(finding rules.Finding, ruleIndex int) SARIFResult {
	primary := finding.Primary()
	uri := normalizeFilePath(finding.Path)

	var related []SARIFLocation
	for i, loc := range finding.Locations {
		if loc.Annotation == "" {
			continue
		}
		l := sarifLocation(uri, loc)
		l.ID = i + 1
		l.Message = &SARIFMessage{Text: loc.Annotation}
		related = append(related, l)
	}

	message := finding.Desc
	if primary.Annotation != "" {
		message = fmt.Sprintf("%s: %s", finding.Desc, primary.Annotation)
	}

	return SARIFResult{
		RuleID:           finding.Ident,
		RuleIndex:        ruleIndex,
		Level:            severityToSARIFLevel(finding.Severity),
		Message:          SARIFMessage{Text: message},
		Locations:        []SARIFLocation{sarifLocation(uri, primary)},
		RelatedLocations: related,
		PartialFingerprints: map[string]string{
			"pipeaudit/v1": generateFingerprint(finding),
		},
		Properties: map[string]interface{}{
			"severity":   finding.Severity.String(),
			"confidence": finding.Confidence.String(),
		},
	}
}

func sarifLocation(uri string, loc rules.Location) SARIFLocation {
	location := SARIFLocation{
		PhysicalLocation: SARIFPhysicalLocation{
			ArtifactLocation: SARIFArtifactLocation{URI: uri},
		},
		LogicalLocations: []SARIFLogicalLocation{{
			FullyQualifiedName: loc.Route,
			Kind:               "member",
		}},
	}

	if c := loc.Concrete; c.LineNumber > 0 {
		region := &SARIFRegion{
			StartLine:   c.LineNumber,
			StartColumn: c.ColumnStart,
			EndLine:     c.EndLine,
			EndColumn:   c.ColumnEnd,
		}
		if c.MatchedText != "" {
			region.Snippet = &SARIFSnippet{Text: c.MatchedText}
		}
		location.PhysicalLocation.Region = region
	}

	return location
}

// severityToSARIFLevel converts a finding severity to a SARIF level
func severityToSARIFLevel(severity rules.Severity) string {
	switch severity {
	case rules.SeverityHigh:
		return "error"
	case rules.SeverityMedium:
		return "warning"
	case rules.SeverityLow, rules.SeverityInformational:
		return "note"
	default:
		return "warning"
	}
}

// securitySeverityScore maps severities onto the CVSS-style ranges code
// scanning uses to bucket alerts
func securitySeverityScore(severity rules.Severity) string {
	switch severity {
	case rules.SeverityHigh:
		return "8.0"
	case rules.SeverityMedium:
		return "5.0"
	case rules.SeverityLow:
		return "3.0"
	default:
		return "0.0"
	}
}

func precision(confidence rules.Confidence) string {
	switch confidence {
	case rules.ConfidenceHigh:
		return "high"
	case rules.ConfidenceMedium:
		return "medium"
	case rules.ConfidenceLow:
		return "low"
	default:
		return "unknown"
	}
}

// normalizeFilePath turns paths into repository-relative slash paths
func normalizeFilePath(filePath string) string {
	normalized := filepath.ToSlash(filePath)

	if idx := strings.Index(normalized, ".github/workflows/"); idx != -1 {
		normalized = normalized[idx:]
	} else if strings.HasPrefix(normalized, "/") {
		normalized = filepath.ToSlash(filepath.Base(normalized))
	}
	normalized = strings.TrimPrefix(normalized, "./")

	// URL encode if necessary
	if strings.Contains(normalized, " ") {
		normalized = (&url.URL{Path: normalized}).EscapedPath()
	}

	return normalized
}

// generateFingerprint identifies a finding across runs by its rule and
// symbolic route, which survives unrelated edits that shift line numbers
func generateFingerprint(finding rules.Finding) string {
	parts := []string{
		finding.Ident,
		normalizeFilePath(finding.Path),
		finding.Primary().Route,
	}
	return strings.Join(parts, ":")
}
