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

package parser

import (
	"fmt"
	"regexp"
	"strings"
)

var commitSHAPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// UsesRef is the structural form of a step's uses: clause
type UsesRef struct {
	Owner   string
	Repo    string
	Subpath string
	Ref     string
	Local   bool // ./path/to/action
	Docker  bool // docker://image
	Raw     string
}

// ParseUses splits a uses: clause into its components. Remote actions have
// the form owner/repo[/subpath]@ref.
func ParseUses(uses string) (UsesRef, error) {
	ref := UsesRef{Raw: uses}

	switch {
	case strings.HasPrefix(uses, "./"):
		ref.Local = true
		return ref, nil
	case strings.HasPrefix(uses, "docker://"):
		ref.Docker = true
		return ref, nil
	}

	path, gitRef, found := strings.Cut(uses, "@")
	if !found || gitRef == "" {
		return ref, fmt.Errorf("invalid uses clause %q: missing @ref", uses)
	}

	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ref, fmt.Errorf("invalid uses clause %q: expected owner/repo@ref", uses)
	}

	ref.Owner = parts[0]
	ref.Repo = parts[1]
	if len(parts) == 3 {
		ref.Subpath = parts[2]
	}
	ref.Ref = gitRef
	return ref, nil
}

// IsRemote reports whether the clause refers to an action in a repository
func (u UsesRef) IsRemote() bool {
	return !u.Local && !u.Docker && u.Owner != ""
}

// IsCommitSHA reports whether the ref is a full-length commit SHA
func (u UsesRef) IsCommitSHA() bool {
	return commitSHAPattern.MatchString(u.Ref)
}

// Slug returns owner/repo
func (u UsesRef) Slug() string {
	return u.Owner + "/" + u.Repo
}
