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

package constants

import "os"

// Application constants
const (
	// Version information
	AppName    = "pipeaudit"
	AppVersion = "0.1.0"
	AppUsage   = "Security auditor for GitHub Actions workflows"

	// Default configuration values
	DefaultMinSeverity  = "unknown"
	DefaultOutputFormat = "cli"
	DefaultMaxWorkers   = 0   // 0 means use CPU count
	DefaultUnitTimeout  = 120 // seconds
	DefaultTotalTimeout = 600 // seconds (10 minutes)

	// Supported output formats
	OutputFormatCLI   = "cli"
	OutputFormatJSON  = "json"
	OutputFormatSARIF = "sarif"

	// Configuration file names
	ConfigFilePipeauditYML  = ".pipeaudit.yml"
	ConfigFilePipeauditYAML = ".pipeaudit.yaml"
	ConfigFileBaseYML       = "pipeaudit.yml"
	ConfigFileBaseYAML      = "pipeaudit.yaml"

	// Environment variables
	EnvGHToken       = "GH_TOKEN"
	EnvGitHubToken   = "GITHUB_TOKEN"
	EnvCI            = "CI"
	EnvGitHubActions = "GITHUB_ACTIONS"

	// Common paths and patterns
	GitHubWorkflowsPath = ".github/workflows"
	DefaultPolicyFile   = "policies/example.rego"

	// Error messages
	ErrNoInputSpecified = "at least one workflow file or repository directory must be given"
	ErrConfigLoadFailed = "failed to load configuration"
)

// Supported output formats list
var SupportedOutputFormats = []string{
	OutputFormatCLI,
	OutputFormatJSON,
	OutputFormatSARIF,
}

// ciEnvironmentVariables are set by common CI providers
var ciEnvironmentVariables = []string{
	EnvCI, EnvGitHubActions, "TRAVIS", "CIRCLECI", "JENKINS_URL",
	"GITLAB_CI", "BUILDKITE", "TF_BUILD",
}

// IsRunningInCI reports whether the process runs under a CI provider
func IsRunningInCI() bool {
	for _, env := range ciEnvironmentVariables {
		if os.Getenv(env) != "" {
			return true
		}
	}
	return false
}

// IsRunningInGitHubActions reports whether the process runs inside a GitHub Actions job
func IsRunningInGitHubActions() bool {
	return os.Getenv(EnvGitHubActions) == "true"
}
