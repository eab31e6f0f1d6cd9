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
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/harekrishnarai/pipeaudit/pkg/cache"
	"github.com/harekrishnarai/pipeaudit/pkg/constants"
	auditerrors "github.com/harekrishnarai/pipeaudit/pkg/errors"
	"github.com/harekrishnarai/pipeaudit/pkg/rules"
)

// ScanResult represents the overall result of an audit run
type ScanResult struct {
	RunID          string          `json:"runId"`
	Inputs         []string        `json:"inputs"`
	ScanTime       time.Time       `json:"scanTime"`
	Duration       time.Duration   `json:"duration"`
	WorkflowsCount int             `json:"workflowsCount"`
	RulesCount     int             `json:"rulesCount"`
	SkippedRules   []string        `json:"skippedRules,omitempty"`
	Findings       []rules.Finding `json:"findings"`
	Failures       []Failure       `json:"failures,omitempty"`
	Summary        ResultSummary   `json:"summary"`
	FilteredCount  int             `json:"filteredCount"`

	// CacheStats is set for verbose runs
	CacheStats map[string]cache.Stats `json:"cacheStats,omitempty"`
}

// Failure is a rule that could not complete on one workflow
type Failure struct {
	Rule  string `json:"rule"`
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ResultSummary provides a summary of the findings by severity
type ResultSummary struct {
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Low           int `json:"low"`
	Informational int `json:"informational"`
	Unknown       int `json:"unknown"`
	Total         int `json:"total"`
}

// Finalize drops findings below minSeverity, orders the rest, computes the
// summary and assigns a run ID if there is none yet.
func (r *ScanResult) Finalize(minSeverity rules.Severity) {
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}

	kept := FilterBySeverity(r.Findings, minSeverity)
	r.FilteredCount += len(r.Findings) - len(kept)
	r.Findings = SortFindings(kept)
	r.Summary = CalculateSummary(r.Findings)
}

// Generator creates a formatted report from scan results
type Generator struct {
	Result   ScanResult
	Format   string
	Verbose  bool
	FilePath string

	out io.Writer
}

// NewGenerator creates a new report generator that writes to stdout unless
// filePath is set
func NewGenerator(result ScanResult, format string, verbose bool, filePath string) *Generator {
	return &Generator{
		Result:   result,
		Format:   format,
		Verbose:  verbose,
		FilePath: filePath,
		out:      os.Stdout,
	}
}

// SetOutput redirects terminal output
func (g *Generator) SetOutput(w io.Writer) {
	g.out = w
}

// Generate creates and outputs the report in the specified format
func (g *Generator) Generate() error {
	switch strings.ToLower(g.Format) {
	case constants.OutputFormatCLI:
		return g.generateCLIReport()
	case constants.OutputFormatJSON:
		return g.writeJSON(g.Result, "JSON")
	case constants.OutputFormatSARIF:
		return g.writeJSON(g.createSARIFReport(), "SARIF")
	default:
		return auditerrors.NewReportError(fmt.Sprintf("unsupported report format: %s", g.Format), nil, g.FilePath)
	}
}

var severityStyles = map[rules.Severity]*color.Color{
	rules.SeverityHigh:          color.New(color.FgHiRed, color.Bold),
	rules.SeverityMedium:        color.New(color.FgYellow, color.Bold),
	rules.SeverityLow:           color.New(color.FgBlue),
	rules.SeverityInformational: color.New(color.FgHiBlue),
	rules.SeverityUnknown:       color.New(color.FgWhite),
}

// generateCLIReport renders the summary table and each finding with its source
func (g *Generator) generateCLIReport() error {
	w := g.out

	titleStyle := color.New(color.FgHiCyan, color.Bold)
	subtitleStyle := color.New(color.FgCyan, color.Bold)
	infoStyle := color.New(color.FgBlue)
	successStyle := color.New(color.FgGreen, color.Bold)
	warnStyle := color.New(color.FgYellow)
	annotationStyle := color.New(color.FgHiBlack)

	fmt.Fprintln(w)
	titleStyle.Fprintln(w, "╔═══════════════════════════════════════════╗")
	titleStyle.Fprintln(w, "║            PIPEAUDIT RESULTS              ║")
	titleStyle.Fprintln(w, "╚═══════════════════════════════════════════╝")

	fmt.Fprintln(w)
	subtitleStyle.Fprintln(w, "► RUN INFORMATION")
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	infoStyle.Fprintf(w, "%-20s ", "Run ID:")
	fmt.Fprintln(w, g.Result.RunID)
	infoStyle.Fprintf(w, "%-20s ", "Inputs:")
	fmt.Fprintln(w, strings.Join(g.Result.Inputs, ", "))
	infoStyle.Fprintf(w, "%-20s ", "Duration:")
	fmt.Fprintln(w, g.Result.Duration.Round(time.Millisecond))
	infoStyle.Fprintf(w, "%-20s ", "Workflows Audited:")
	fmt.Fprintln(w, g.Result.WorkflowsCount)
	infoStyle.Fprintf(w, "%-20s ", "Rules Applied:")
	fmt.Fprintln(w, g.Result.RulesCount)
	if len(g.Result.SkippedRules) > 0 {
		infoStyle.Fprintf(w, "%-20s ", "Rules Skipped:")
		fmt.Fprintf(w, "%s (no GitHub client; set GH_TOKEN or drop --offline)\n", strings.Join(g.Result.SkippedRules, ", "))
	}
	if g.Result.FilteredCount > 0 {
		infoStyle.Fprintf(w, "%-20s ", "Below Threshold:")
		fmt.Fprintf(w, "%d findings hidden\n", g.Result.FilteredCount)
	}

	fmt.Fprintln(w)
	subtitleStyle.Fprintln(w, "► SUMMARY")
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	g.renderSummaryTable()

	if len(g.Result.Findings) > 0 {
		fmt.Fprintln(w)
		subtitleStyle.Fprintln(w, "► FINDINGS")
		fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

		current := rules.Severity(-1)
		for i, finding := range g.Result.Findings {
			style, ok := severityStyles[finding.Severity]
			if !ok {
				style = severityStyles[rules.SeverityUnknown]
			}
			if finding.Severity != current {
				current = finding.Severity
				fmt.Fprintln(w)
				style.Fprintf(w, "■ %s SEVERITY FINDINGS\n", strings.ToUpper(current.String()))
				fmt.Fprintln(w, "─────────────────────────────────────────────────")
			}

			primary := finding.Primary()
			fmt.Fprintln(w)
			style.Fprintf(w, "[%d] %s", i+1, finding.Ident)
			fmt.Fprintf(w, ": %s (confidence: %s)\n", finding.Desc, finding.Confidence)
			infoStyle.Fprintf(w, "  %-10s ", "Location:")
			fmt.Fprintf(w, "%s:%d:%d\n", normalizeFilePath(finding.Path), primary.Concrete.LineNumber, primary.Concrete.ColumnStart)

			for _, loc := range finding.Locations {
				if loc.Annotation == "" {
					continue
				}
				annotationStyle.Fprintf(w, "  %4d: %s\n", loc.Concrete.LineNumber, loc.Annotation)
			}

			if snippet := buildCodeContext(finding.Path, primary.Concrete.LineNumber, primary.Concrete.EndLine).Snippet(); snippet != "" {
				fmt.Fprintln(w, indent(snippet, "  "))
			} else if primary.Concrete.LineContent != "" {
				fmt.Fprintf(w, "  > %4d | %s\n", primary.Concrete.LineNumber, primary.Concrete.LineContent)
			}

			if g.Verbose {
				infoStyle.Fprintf(w, "  %-10s ", "Route:")
				fmt.Fprintln(w, primary.Route)
			}
		}
	} else {
		fmt.Fprintln(w)
		successStyle.Fprintln(w, "✅ NO SECURITY ISSUES FOUND!")
		fmt.Fprintln(w, "No security issues were detected in the audited workflows.")
	}

	if g.Verbose && len(g.Result.CacheStats) > 0 {
		fmt.Fprintln(w)
		subtitleStyle.Fprintln(w, "► GITHUB API CACHE")
		fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		names := make([]string, 0, len(g.Result.CacheStats))
		for name := range g.Result.CacheStats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			stats := g.Result.CacheStats[name]
			infoStyle.Fprintf(w, "%-20s ", name+":")
			fmt.Fprintf(w, "%d entries, %d hits, %d misses, %d loads (%.1f%% hit rate)\n",
				stats.Entries, stats.HitCount, stats.MissCount, stats.LoadCount, stats.HitRate)
		}
	}

	if len(g.Result.Failures) > 0 {
		fmt.Fprintln(w)
		warnStyle.Fprintf(w, "⚠ %d rule run(s) did not complete:\n", len(g.Result.Failures))
		for _, f := range g.Result.Failures {
			fmt.Fprintf(w, "  %s on %s: %s\n", f.Rule, normalizeFilePath(f.Path), f.Error)
		}
	}

	// Footer
	fmt.Fprintln(w)
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(w)

	return nil
}

func (g *Generator) renderSummaryTable() {
	s := g.Result.Summary

	table := tablewriter.NewWriter(g.out)
	table.SetHeader([]string{"Severity", "Count", "Indicator"})
	table.SetBorder(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_LEFT})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderColor(
		tablewriter.Colors{tablewriter.Bold},
		tablewriter.Colors{tablewriter.Bold},
		tablewriter.Colors{tablewriter.Bold},
	)

	rows := []struct {
		label string
		count int
		color int
	}{
		{"HIGH", s.High, tablewriter.FgHiRedColor},
		{"MEDIUM", s.Medium, tablewriter.FgYellowColor},
		{"LOW", s.Low, tablewriter.FgBlueColor},
		{"INFORMATIONAL", s.Informational, tablewriter.FgCyanColor},
		{"UNKNOWN", s.Unknown, tablewriter.FgWhiteColor},
	}
	for _, row := range rows {
		table.Rich(
			[]string{row.label, fmt.Sprintf("%d", row.count), createSeverityBar(row.count, s.Total, "█", 20)},
			[]tablewriter.Colors{{tablewriter.Bold, row.color}, {tablewriter.Bold, row.color}, {row.color}},
		)
	}
	table.Rich(
		[]string{"TOTAL", fmt.Sprintf("%d", s.Total), ""},
		[]tablewriter.Colors{{tablewriter.Bold}, {tablewriter.Bold}, {tablewriter.Normal}},
	)

	table.Render()
}

// writeJSON marshals v to the report file, or to the terminal output
func (g *Generator) writeJSON(v interface{}, kind string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return auditerrors.NewReportError(fmt.Sprintf("failed to marshal %s", kind), err, g.FilePath)
	}

	if g.FilePath != "" {
		if err := os.WriteFile(g.FilePath, data, 0644); err != nil {
			return auditerrors.NewReportError(fmt.Sprintf("failed to write %s report to file", kind), err, g.FilePath)
		}
		fmt.Fprintf(os.Stderr, "%s report written to %s\n", kind, g.FilePath)
		return nil
	}

	fmt.Fprintln(g.out, string(data))
	return nil
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}

// createSeverityBar generates a visual bar representation for severity counts
func createSeverityBar(count, total int, char string, maxLength int) string {
	if total == 0 {
		return ""
	}

	ratio := float64(count) / float64(total)
	barLength := int(math.Round(ratio * float64(maxLength)))

	if count > 0 && barLength == 0 {
		barLength = 1 // Always show at least one character if there's a count
	}

	return strings.Repeat(char, barLength)
}

// CalculateSummary computes the summary statistics for findings
func CalculateSummary(findings []rules.Finding) ResultSummary {
	summary := ResultSummary{}

	for _, finding := range findings {
		switch finding.Severity {
		case rules.SeverityHigh:
			summary.High++
		case rules.SeverityMedium:
			summary.Medium++
		case rules.SeverityLow:
			summary.Low++
		case rules.SeverityInformational:
			summary.Informational++
		default:
			summary.Unknown++
		}
	}

	summary.Total = len(findings)
	return summary
}

// FilterBySeverity keeps findings at or above min
func FilterBySeverity(findings []rules.Finding, min rules.Severity) []rules.Finding {
	kept := make([]rules.Finding, 0, len(findings))
	for _, f := range findings {
		if f.Severity >= min {
			kept = append(kept, f)
		}
	}
	return kept
}

// SortFindings orders findings by severity (highest first), then path, then
// line. The sort is stable so rule order breaks remaining ties.
func SortFindings(findings []rules.Finding) []rules.Finding {
	// Create a sorted copy
	sorted := make([]rules.Finding, len(findings))
	copy(sorted, findings)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Primary().Concrete.LineNumber < b.Primary().Concrete.LineNumber
	})

	return sorted
}
