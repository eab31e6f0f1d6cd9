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

package state

import (
	"testing"
)

func TestGitHubClient(t *testing.T) {
	tests := []struct {
		name   string
		config AuditConfig
		want   bool
	}{
		{"no token", AuditConfig{}, false},
		{"token", AuditConfig{GitHubToken: "t"}, true},
		{"offline with token", AuditConfig{GitHubToken: "t", Offline: true}, false},
		{"offline without token", AuditConfig{Offline: true}, false},
		{"bad api base", AuditConfig{GitHubToken: "t", APIBase: "://bad"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, ok := New(tt.config).GitHubClient()
			if ok != tt.want {
				t.Errorf("expected ok=%v, got %v", tt.want, ok)
			}
			if ok && client == nil {
				t.Error("expected a client")
			}
		})
	}
}

func TestCopiesShareCaches(t *testing.T) {
	s := New(AuditConfig{Pedantic: true})
	clone := *s

	if clone.Caches != s.Caches {
		t.Error("expected copies to share caches")
	}
	if !clone.Config.Pedantic {
		t.Error("expected config to be copied")
	}

	other := New(AuditConfig{})
	if other.Caches == s.Caches {
		t.Error("expected separate runs to get separate caches")
	}
}
