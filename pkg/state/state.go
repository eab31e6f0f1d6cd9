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

// Package state holds the per-run configuration and caches shared by every
// rule in an audit run.
package state

import (
	"github.com/harekrishnarai/pipeaudit/pkg/github"
)

// AuditConfig is the resolved configuration for a run. It does not change
// once the run has started.
type AuditConfig struct {
	Pedantic    bool
	Offline     bool
	GitHubToken string

	// APIBase overrides the GitHub API base; empty means the public API
	APIBase string
}

// AuditState is the per-run state handed to every rule. Copies share the
// same caches.
type AuditState struct {
	Config AuditConfig
	Caches *github.Caches
}

// New creates the state for a run with fresh caches
func New(config AuditConfig) *AuditState {
	return &AuditState{
		Config: config,
		Caches: github.NewCaches(),
	}
}

// GitHubClient returns a cache-backed GitHub client, or false when remote
// lookups are unavailable: no token is configured, or offline mode is on.
// Offline wins over a configured token.
func (s *AuditState) GitHubClient() (*github.Client, bool) {
	if s.Config.Offline || s.Config.GitHubToken == "" {
		return nil, false
	}

	var opts []github.Option
	if s.Config.APIBase != "" {
		opts = append(opts, github.WithBaseURL(s.Config.APIBase))
	}

	client, err := github.NewClient(s.Config.GitHubToken, s.Caches, opts...)
	if err != nil {
		return nil, false
	}
	return client, true
}
