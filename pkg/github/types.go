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

package github

import "fmt"

// Branch is a single branch, as returned by the branches endpoints.
//
// This model is intentionally incomplete.
type Branch struct {
	Name string `json:"name"`
}

// Tag is a single tag, as returned by the tags endpoints.
//
// This model is intentionally incomplete.
type Tag struct {
	Name   string    `json:"name"`
	Commit TagCommit `json:"commit"`
}

// TagCommit is the commit a tag points at
type TagCommit struct {
	SHA string `json:"sha"`
}

// Advisory is a GHSA advisory.
//
// This model is intentionally incomplete.
type Advisory struct {
	ID       string `json:"ghsa_id"`
	Severity string `json:"severity"`
}

// ComparisonStatus is the relative position of two commits in history
type ComparisonStatus int

const (
	Ahead ComparisonStatus = iota
	Behind
	Diverged
	Identical
)

var comparisonNames = []string{"ahead", "behind", "diverged", "identical"}

func (s ComparisonStatus) String() string {
	if int(s) < len(comparisonNames) {
		return comparisonNames[s]
	}
	return fmt.Sprintf("ComparisonStatus(%d)", int(s))
}

// ParseComparisonStatus parses the status token of a comparison response
func ParseComparisonStatus(s string) (ComparisonStatus, error) {
	for i, name := range comparisonNames {
		if name == s {
			return ComparisonStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown comparison status %q", s)
}
