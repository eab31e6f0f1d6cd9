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

import "github.com/harekrishnarai/pipeaudit/pkg/cache"

// Capacities for the runtime caches. Entries beyond these are evicted least
// recently used first.
const (
	BranchCacheCapacity        = 1000
	TagCacheCapacity           = 1000
	RefComparisonCacheCapacity = 10000
)

// Caches are the run-scoped stores shared by every Client built from the
// same audit state.
type Caches struct {
	// (owner, repo) => branches
	Branches *cache.Cache[cache.Pair, []Branch]

	// (owner, repo) => tags
	Tags *cache.Cache[cache.Pair, []Tag]

	// (base, head) => status, nil when there is no comparison.
	//
	// Not disambiguated by owner/repo: head is a commit SHA and we expect
	// those to be unique across GitHub. That isn't strictly true of Git SHAs
	// (SHAttered), but GitHub's collision detection makes it hold in practice.
	RefComparisons *cache.Cache[cache.Pair, *ComparisonStatus]
}

// NewCaches creates an empty set of caches
func NewCaches() *Caches {
	return &Caches{
		Branches:       cache.New[cache.Pair, []Branch](BranchCacheCapacity),
		Tags:           cache.New[cache.Pair, []Tag](TagCacheCapacity),
		RefComparisons: cache.New[cache.Pair, *ComparisonStatus](RefComparisonCacheCapacity),
	}
}

// Stats reports each cache's statistics, keyed by cache name
func (c *Caches) Stats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"branches":        c.Branches.Stats(),
		"tags":            c.Tags.Stats(),
		"ref-comparisons": c.RefComparisons.Stats(),
	}
}
