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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/harekrishnarai/pipeaudit/pkg/concurrent"
	"github.com/harekrishnarai/pipeaudit/pkg/config"
	"github.com/harekrishnarai/pipeaudit/pkg/constants"
	auditerrors "github.com/harekrishnarai/pipeaudit/pkg/errors"
	"github.com/harekrishnarai/pipeaudit/pkg/parser"
	"github.com/harekrishnarai/pipeaudit/pkg/policies"
	"github.com/harekrishnarai/pipeaudit/pkg/report"
	"github.com/harekrishnarai/pipeaudit/pkg/rules"
	"github.com/harekrishnarai/pipeaudit/pkg/state"
)

var warnStyle = color.New(color.FgYellow)

// warnf prints a warning, as a workflow command when running inside GitHub Actions
func warnf(w io.Writer, format string, args ...interface{}) {
	msg := strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
	if constants.IsRunningInGitHubActions() {
		fmt.Fprintf(w, "::warning::%s\n", msg)
		return
	}
	warnStyle.Fprintf(w, "warning: %s\n", msg)
}

// describeError renders err for the terminal, with suggestions when it carries any
func describeError(err error) string {
	var auditErr *auditerrors.AuditError
	if errors.As(err, &auditErr) {
		return auditErr.UserFriendlyMessage()
	}
	return err.Error()
}

// exitCode maps a failed run to the process exit status
func exitCode(err error) int {
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if auditerrors.IsType(err, auditerrors.ErrorTypeConfig) || auditerrors.IsType(err, auditerrors.ErrorTypeValidation) {
		return 2
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		stop()
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      constants.AppName,
		Version:   constants.AppVersion,
		Usage:     constants.AppUsage,
		ArgsUsage: "<workflow file or repository directory>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "pedantic",
				Usage: "Enable checks that are noisy on most repositories",
			},
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Never contact GitHub; rules that need the API are skipped",
			},
			&cli.StringFlag{
				Name:  "gh-token",
				Usage: "GitHub API token (defaults to $GH_TOKEN, then $GITHUB_TOKEN)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path (.pipeaudit.yml)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   fmt.Sprintf("Output format (%s)", strings.Join(constants.SupportedOutputFormats, ", ")),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to this file instead of stdout (json and sarif only)",
			},
			&cli.StringFlag{
				Name:  "min-severity",
				Usage: "Minimum severity to report (unknown, informational, low, medium, high)",
			},
			&cli.StringSliceFlag{
				Name:    "policy",
				Aliases: []string{"p"},
				Usage:   "Rego policy file or directory (repeatable)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of concurrent workers (0 means one per CPU)",
				Value: constants.DefaultMaxWorkers,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Show symbolic routes and progress",
			},
		},
		Action: audit,
		Commands: []*cli.Command{
			{
				Name:      "init-policy",
				Usage:     "Create an example policy file",
				ArgsUsage: "[path]",
				Action: func(c *cli.Context) error {
					outputPath := c.Args().First()
					if outputPath == "" {
						outputPath = constants.DefaultPolicyFile
					}

					fmt.Printf("Creating example policy file at %s...\n", outputPath)
					if err := policies.CreateExamplePolicy(outputPath); err != nil {
						return fmt.Errorf("failed to create example policy: %w", err)
					}

					fmt.Println("Example policy file created successfully!")
					return nil
				},
			},
			{
				Name:      "init-config",
				Usage:     "Write the default configuration file",
				ArgsUsage: "[path]",
				Action: func(c *cli.Context) error {
					outputPath := c.Args().First()
					if outputPath == "" {
						outputPath = constants.ConfigFilePipeauditYML
					}
					if _, err := os.Stat(outputPath); err == nil {
						return auditerrors.NewConfigError(fmt.Sprintf("%s already exists", outputPath), nil,
							"Remove the file or pass a different path")
					}

					if err := config.SaveConfig(config.DefaultConfig(), outputPath); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Default configuration written to %s\n", outputPath)
					return nil
				},
			},
			{
				Name:  "list-rules",
				Usage: "List the built-in rules",
				Action: func(c *cli.Context) error {
					for _, entry := range rules.Registry() {
						fmt.Fprintf(c.App.Writer, "%-28s %s\n", entry.Ident, entry.Desc)
					}
					return nil
				},
			},
		},
	}
}

// loadConfig reads the config file and applies flag overrides on top
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("pedantic") {
		cfg.Audit.Pedantic = c.Bool("pedantic")
	}
	if c.IsSet("offline") {
		cfg.Audit.Offline = c.Bool("offline")
	}
	if c.IsSet("format") {
		cfg.Output.Format = c.String("format")
	}
	if c.IsSet("output") {
		cfg.Output.File = c.String("output")
	}
	if c.IsSet("min-severity") {
		cfg.Output.MinSeverity = c.String("min-severity")
	}
	if paths := c.StringSlice("policy"); len(paths) > 0 {
		cfg.Policies = append(cfg.Policies, paths...)
	}

	// Flags bypass LoadConfig's validation, so check the merged result
	if _, err := rules.ParseSeverity(cfg.Output.MinSeverity); err != nil {
		return nil, auditerrors.NewValidationError(err.Error(), "min-severity", cfg.Output.MinSeverity,
			"Use one of: unknown, informational, low, medium, high")
	}
	if !slices.Contains(constants.SupportedOutputFormats, strings.ToLower(cfg.Output.Format)) {
		return nil, auditerrors.NewValidationError("unsupported output format", "format", cfg.Output.Format,
			fmt.Sprintf("Use one of: %s", strings.Join(constants.SupportedOutputFormats, ", ")))
	}

	return cfg, nil
}

// buildRules instantiates the enabled built-in rules plus the policy rule
func buildRules(ctx context.Context, cfg *config.Config, st *state.AuditState) ([]rules.Rule, []string, error) {
	ruleSet, skipped, err := rules.NewRules(st, cfg.IsRuleEnabled)
	if err != nil {
		return nil, nil, err
	}

	var policyFiles []string
	for _, path := range cfg.Policies {
		files, err := policies.LoadPolicyFiles(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load policy files: %w", err)
		}
		policyFiles = append(policyFiles, files...)
	}

	if len(policyFiles) > 0 {
		policyRule, err := policies.NewPolicyRule(ctx, policyFiles)
		if err != nil {
			return nil, nil, err
		}
		ruleSet = append(ruleSet, policyRule)
	}

	return ruleSet, skipped, nil
}

func audit(c *cli.Context) error {
	startTime := time.Now()

	inputs := c.Args().Slice()
	if len(inputs) == 0 {
		return cli.Exit(constants.ErrNoInputSpecified, 2)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrConfigLoadFailed, err)
	}

	token := config.ResolveToken(c.String("gh-token"))
	st := state.New(cfg.ToAuditConfig(token))
	if token == "" && !cfg.Audit.Offline {
		warnf(os.Stderr, "no GitHub token found; online rules will be skipped")
	}

	ruleSet, skipped, err := buildRules(c.Context, cfg, st)
	if err != nil {
		return err
	}

	workflows, err := parser.Collect(inputs)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}
	if len(workflows) == 0 {
		warnf(os.Stderr, "no workflow files found in %s", strings.Join(inputs, ", "))
	}

	procConfig := concurrent.DefaultProcessorConfig()
	if workers := c.Int("workers"); workers > 0 {
		procConfig.MaxWorkers = workers
	}
	procConfig.ShowProgress = c.Bool("verbose")

	processed, err := concurrent.NewProcessor(procConfig, rules.NewRuleEngine(cfg)).Process(c.Context, workflows, ruleSet)
	if err != nil {
		return err
	}

	result := report.ScanResult{
		Inputs:         inputs,
		ScanTime:       startTime,
		Duration:       time.Since(startTime),
		WorkflowsCount: len(workflows),
		RulesCount:     len(ruleSet),
		SkippedRules:   skipped,
		Findings:       processed.Findings,
	}
	for _, failure := range processed.Failures {
		result.Failures = append(result.Failures, report.Failure{
			Rule:  failure.Rule,
			Path:  failure.Path,
			Error: failure.Err.Error(),
		})
	}
	if c.Bool("verbose") {
		result.CacheStats = st.Caches.Stats()
	}
	result.Finalize(cfg.MinSeverity())

	generator := report.NewGenerator(result, cfg.Output.Format, c.Bool("verbose"), cfg.Output.File)
	generator.SetOutput(c.App.Writer)
	if err := generator.Generate(); err != nil {
		return err
	}

	if processed.Failed() {
		return cli.Exit(fmt.Sprintf("all %d rule runs failed", processed.Units), 1)
	}
	return nil
}
