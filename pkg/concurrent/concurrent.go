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

package concurrent

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/harekrishnarai/pipeaudit/pkg/constants"
	"github.com/harekrishnarai/pipeaudit/pkg/parser"
	"github.com/harekrishnarai/pipeaudit/pkg/rules"
	"github.com/harekrishnarai/pipeaudit/pkg/terminal"
)

// ProcessorConfig contains configuration for concurrent processing
type ProcessorConfig struct {
	// MaxWorkers defines the maximum number of concurrent workers
	// If 0, uses number of CPU cores
	MaxWorkers int

	// Timeout for a single rule on a single workflow
	UnitTimeout time.Duration

	// Timeout for the entire analysis operation
	TotalTimeout time.Duration

	// Enable progress reporting
	ShowProgress bool

	// Buffer size for worker channels
	BufferSize int

	// Progress output; defaults to stderr
	Output io.Writer
}

// DefaultProcessorConfig returns a default configuration
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		MaxWorkers:   runtime.NumCPU(),
		UnitTimeout:  time.Duration(constants.DefaultUnitTimeout) * time.Second,
		TotalTimeout: time.Duration(constants.DefaultTotalTimeout) * time.Second,
		ShowProgress: true,
		BufferSize:   100,
	}
}

// unit is one rule applied to one workflow
type unit struct {
	index    int
	workflow *parser.WorkflowFile
	rule     rules.Rule
}

type unitResult struct {
	index    int
	findings []rules.Finding
	err      error
}

// RuleFailure records a rule that failed on one workflow. Other rules and
// other workflows are unaffected.
type RuleFailure struct {
	Rule string
	Path string
	Err  error
}

func (f RuleFailure) Error() string {
	return fmt.Sprintf("%s on %s: %v", f.Rule, f.Path, f.Err)
}

// Result is the outcome of a run
type Result struct {
	Findings []rules.Finding
	Failures []RuleFailure
	Units    int
	Duration time.Duration
}

// Failed reports whether every unit of work failed. A run where some rules
// succeeded is not failed.
func (r *Result) Failed() bool {
	return r.Units > 0 && len(r.Failures) == r.Units
}

// ProgressReporter handles progress reporting during concurrent processing.
// On a terminal the line is redrawn in place. Elsewhere, and under CI where
// logs are captured line by line, only the final count is written.
type ProgressReporter struct {
	Total        int
	Completed    int
	mutex        sync.Mutex
	showProgress bool
	out          io.Writer
	interactive  bool
	width        int
}

// NewProgressReporter creates a new progress reporter
func NewProgressReporter(total int, showProgress bool, out io.Writer) *ProgressReporter {
	if out == nil {
		out = os.Stderr
	}
	return &ProgressReporter{
		Total:        total,
		showProgress: showProgress,
		out:          out,
		interactive:  terminal.IsTerminal(out) && !constants.IsRunningInCI(),
		width:        terminal.Width(out),
	}
}

// Update increments the completed count and reports progress
func (pr *ProgressReporter) Update(workflowName string) {
	pr.mutex.Lock()
	defer pr.mutex.Unlock()

	pr.Completed++

	if !pr.showProgress {
		return
	}

	if pr.interactive {
		percentage := float64(pr.Completed) / float64(pr.Total) * 100
		line := fmt.Sprintf("🔍 Auditing workflows... [%d/%d] (%.1f%%) - %s",
			pr.Completed, pr.Total, percentage, workflowName)
		fmt.Fprintf(pr.out, "\r\033[K%s", terminal.Truncate(line, pr.width-1))
		if pr.Completed == pr.Total {
			fmt.Fprintln(pr.out)
		}
		return
	}

	if pr.Completed == pr.Total {
		fmt.Fprintf(pr.out, "Audited %d rule/workflow pairs\n", pr.Total)
	}
}

// Processor fans (workflow, rule) units out to a worker pool. All rules
// share the audit state they were constructed with.
type Processor struct {
	config   *ProcessorConfig
	engine   *rules.RuleEngine
	reporter *ProgressReporter
}

// NewProcessor creates a new processor. engine applies the rule and ignore
// filters; nil runs every rule unfiltered.
func NewProcessor(config *ProcessorConfig, engine *rules.RuleEngine) *Processor {
	if config == nil {
		config = DefaultProcessorConfig()
	}

	// Ensure we have at least 1 worker
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	if engine == nil {
		engine = rules.NewRuleEngine(nil)
	}

	return &Processor{config: config, engine: engine}
}

// Process audits every workflow with every rule. Findings come back in
// (workflow, rule) order regardless of scheduling. The returned error is
// only for the run as a whole being cancelled or timing out; rule errors
// are reported as failures in the result.
func (p *Processor) Process(ctx context.Context, workflows []*parser.WorkflowFile, ruleSet []rules.Rule) (*Result, error) {
	start := time.Now()

	var units []unit
	for _, workflow := range workflows {
		for _, rule := range ruleSet {
			units = append(units, unit{index: len(units), workflow: workflow, rule: rule})
		}
	}

	result := &Result{Units: len(units)}
	if len(units) == 0 {
		return result, nil
	}

	// Set up timeout context
	if p.config.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TotalTimeout)
		defer cancel()
	}

	p.reporter = NewProgressReporter(len(units), p.config.ShowProgress, p.config.Output)

	var (
		results []unitResult
		err     error
	)
	// For small numbers of units, use sequential processing
	if len(units) <= 2 {
		results, err = p.processSequentially(ctx, units)
	} else {
		results, err = p.processConcurrently(ctx, units)
	}
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.err != nil {
			u := units[r.index]
			result.Failures = append(result.Failures, RuleFailure{Rule: u.rule.Ident(), Path: u.workflow.Path, Err: r.err})
			continue
		}
		result.Findings = append(result.Findings, r.findings...)
	}
	result.Duration = time.Since(start)

	return result, nil
}

// processSequentially processes units one by one (for small counts)
func (p *Processor) processSequentially(ctx context.Context, units []unit) ([]unitResult, error) {
	results := make([]unitResult, 0, len(units))

	for _, u := range units {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		results = append(results, p.processUnit(ctx, u))
		p.reporter.Update(u.workflow.Name)
	}

	return results, nil
}

// processConcurrently processes units using a worker pool
func (p *Processor) processConcurrently(ctx context.Context, units []unit) ([]unitResult, error) {
	// Calculate optimal number of workers
	numWorkers := p.config.MaxWorkers
	if numWorkers > len(units) {
		numWorkers = len(units)
	}

	bufferSize := p.config.BufferSize
	if bufferSize <= 0 {
		bufferSize = numWorkers
	}

	// Create job and result channels
	jobs := make(chan unit, bufferSize)
	results := make(chan unitResult, len(units))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, jobs, results)
	}

	// Send jobs
	go func() {
		defer close(jobs)
		for _, u := range units {
			select {
			case jobs <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Collect results into their original slots
	ordered := make([]unitResult, len(units))
	for i := 0; i < len(units); i++ {
		select {
		case r := <-results:
			p.reporter.Update(units[r.index].workflow.Name)
			ordered[r.index] = r

		case <-ctx.Done():
			// Workers exit on cancellation; results is buffered so none block.
			go wg.Wait()
			return nil, ctx.Err()
		}
	}

	wg.Wait()
	return ordered, nil
}

// worker processes units from the job channel
func (p *Processor) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan unit, results chan<- unitResult) {
	defer wg.Done()

	for u := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		results <- p.processUnit(ctx, u)
	}
}

// processUnit runs one rule on one workflow with a timeout. A panicking rule
// is reported as that unit's failure.
func (p *Processor) processUnit(ctx context.Context, u unit) (res unitResult) {
	res.index = u.index

	unitCtx := ctx
	if p.config.UnitTimeout > 0 {
		var cancel context.CancelFunc
		unitCtx, cancel = context.WithTimeout(ctx, p.config.UnitTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res.findings = nil
			res.err = fmt.Errorf("rule panicked: %v", r)
		}
	}()

	res.findings, res.err = p.engine.Run(unitCtx, u.rule, u.workflow)
	return res
}
