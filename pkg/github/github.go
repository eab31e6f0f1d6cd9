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

// Package github is a minimal GitHub API client for the metadata rules need:
// branches, tags, ref resolution, commit comparison and advisories.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"

	"github.com/harekrishnarai/pipeaudit/pkg/cache"
	auditerrors "github.com/harekrishnarai/pipeaudit/pkg/errors"
)

const (
	// DefaultAPIBase is the public GitHub REST API
	DefaultAPIBase = "https://api.github.com/"

	userAgent  = "pipeaudit"
	apiVersion = "2022-11-28"
	acceptType = "application/vnd.github+json"

	pageSize = 100
)

// Client represents a GitHub API client backed by shared caches
type Client struct {
	client *github.Client
	caches *Caches
}

// Option configures a Client
type Option func(*Client) error

// WithBaseURL points the client at a different API base, e.g. GitHub
// Enterprise or a test server
func WithBaseURL(base string) Option {
	return func(c *Client) error {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("invalid API base %q: %w", base, err)
		}
		c.client.BaseURL = u
		return nil
	}
}

// NewClient creates a GitHub API client that authenticates with token and
// memoizes listings and comparisons in caches
func NewClient(token string, caches *Caches, opts ...Option) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &headerTransport{
			base: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
		},
	}

	gh := github.NewClient(httpClient)
	gh.UserAgent = userAgent

	c := &Client{client: gh, caches: caches}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// headerTransport pins the identification, version and accept headers on
// every request
type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("Accept", acceptType)
	return t.base.RoundTrip(req)
}

// paginate requests consecutive pages until one comes back empty. We don't
// follow the Link header; an empty page is the only stop condition. Any
// failure discards everything collected so far.
func paginate[T any](ctx context.Context, fetch func(context.Context, github.ListOptions) ([]T, *github.Response, error)) ([]T, error) {
	var dest []T

	// The API's pages are 1-based; omitting page (go-github drops a zero
	// value) also selects the first page, so counting from 1 visits it once.
	for page := 1; ; page++ {
		items, _, err := fetch(ctx, github.ListOptions{Page: page, PerPage: pageSize})
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		dest = append(dest, items...)
	}

	return dest, nil
}

// ListBranches returns every branch of owner/repo
func (c *Client) ListBranches(ctx context.Context, owner, repo string) ([]Branch, error) {
	return c.caches.Branches.GetOrLoad(cache.Pair{First: owner, Second: repo}, func() ([]Branch, error) {
		branches, err := paginate(ctx, func(ctx context.Context, opts github.ListOptions) ([]*github.Branch, *github.Response, error) {
			return c.client.Repositories.ListBranches(ctx, owner, repo, &github.BranchListOptions{ListOptions: opts})
		})
		if err != nil {
			return nil, auditerrors.Classify(fmt.Sprintf("%s/%s: error listing branches", owner, repo), err)
		}

		out := make([]Branch, 0, len(branches))
		for _, b := range branches {
			out = append(out, Branch{Name: b.GetName()})
		}
		return out, nil
	})
}

// ListTags returns every tag of owner/repo
func (c *Client) ListTags(ctx context.Context, owner, repo string) ([]Tag, error) {
	return c.caches.Tags.GetOrLoad(cache.Pair{First: owner, Second: repo}, func() ([]Tag, error) {
		tags, err := paginate(ctx, func(ctx context.Context, opts github.ListOptions) ([]*github.RepositoryTag, *github.Response, error) {
			return c.client.Repositories.ListTags(ctx, owner, repo, &opts)
		})
		if err != nil {
			return nil, auditerrors.Classify(fmt.Sprintf("%s/%s: error listing tags", owner, repo), err)
		}

		out := make([]Tag, 0, len(tags))
		for _, t := range tags {
			out = append(out, Tag{Name: t.GetName(), Commit: TagCommit{SHA: t.GetCommit().GetSHA()}})
		}
		return out, nil
	})
}

// CommitForRef resolves ref to a commit SHA. Branches are tried before tags,
// matching how Actions resolves a uses: ref. found is false when ref is
// neither a branch nor a tag.
func (c *Client) CommitForRef(ctx context.Context, owner, repo, ref string) (sha string, found bool, err error) {
	sha, found, err = c.lookupRef(ctx, owner, repo, "heads/"+ref)
	if err != nil || found {
		return sha, found, err
	}
	return c.lookupRef(ctx, owner, repo, "tags/"+ref)
}

func (c *Client) lookupRef(ctx context.Context, owner, repo, ref string) (string, bool, error) {
	r, resp, err := c.client.Git.GetRef(ctx, owner, repo, ref)
	if isNotFound(resp) {
		return "", false, nil
	}
	if err != nil {
		return "", false, auditerrors.Classify(fmt.Sprintf("%s/%s: error from GitHub API while accessing ref %s", owner, repo, ref), err)
	}
	return r.GetObject().GetSHA(), true, nil
}

// LongestTagForCommit returns the tag pointing at commit whose name is
// longest, or nil if no tag points at it.
//
// This is a heuristic, not a version comparison: with several tags on one
// commit it turns sha -> v1.2.3 rather than sha -> v1. Among tags of equal
// length the last one in listing order wins.
func (c *Client) LongestTagForCommit(ctx context.Context, owner, repo, commit string) (*Tag, error) {
	tags, err := c.ListTags(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	var longest *Tag
	for i := range tags {
		if tags[i].Commit.SHA != commit {
			continue
		}
		if longest == nil || len(tags[i].Name) >= len(longest.Name) {
			t := tags[i]
			longest = &t
		}
	}
	return longest, nil
}

// CompareCommits reports how head relates to base. found is false when the
// API has no comparison for the pair.
//
// Results are cached by (base, head) only, not by repository: head is
// expected to be a commit SHA, which is unique across GitHub in practice.
func (c *Client) CompareCommits(ctx context.Context, owner, repo, base, head string) (ComparisonStatus, bool, error) {
	status, err := c.caches.RefComparisons.GetOrLoad(cache.Pair{First: base, Second: head}, func() (*ComparisonStatus, error) {
		cmp, resp, err := c.client.Repositories.CompareCommits(ctx, owner, repo, base, head, nil)
		if isNotFound(resp) {
			return nil, nil
		}
		if err != nil {
			return nil, auditerrors.Classify(fmt.Sprintf("%s/%s: error comparing %s...%s", owner, repo, base, head), err)
		}

		status, err := ParseComparisonStatus(cmp.GetStatus())
		if err != nil {
			return nil, &auditerrors.AuditError{
				Type:    auditerrors.ErrorTypeDecode,
				Message: fmt.Sprintf("%s/%s: unexpected comparison for %s...%s", owner, repo, base, head),
				Cause:   err,
			}
		}
		return &status, nil
	})
	if err != nil {
		return 0, false, err
	}
	if status == nil {
		return 0, false, nil
	}
	return *status, true, nil
}

// GHAAdvisories returns the advisories affecting owner/repo at version in the
// actions ecosystem.
//
// This is a single request: if the API paginates the result, only the first
// page is returned.
func (c *Client) GHAAdvisories(ctx context.Context, owner, repo, version string) ([]Advisory, error) {
	q := url.Values{}
	q.Set("ecosystem", "actions")
	q.Set("affects", fmt.Sprintf("%s/%s@%s", owner, repo, version))

	req, err := c.client.NewRequest(http.MethodGet, "advisories?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create advisories request: %w", err)
	}

	var advisories []Advisory
	if _, err := c.client.Do(ctx, req, &advisories); err != nil {
		return nil, auditerrors.Classify(fmt.Sprintf("%s/%s@%s: error fetching advisories", owner, repo, version), err)
	}
	return advisories, nil
}

func isNotFound(resp *github.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}
