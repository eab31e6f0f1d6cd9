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

package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrLoad_CachesSuccess(t *testing.T) {
	c := New[Pair, []string](10)
	key := Pair{"octo", "repo"}

	var loads int
	load := func() ([]string, error) {
		loads++
		return []string{"main"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(key, load)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(v) != 1 || v[0] != "main" {
			t.Fatalf("unexpected value %v", v)
		}
	}

	if loads != 1 {
		t.Errorf("expected 1 load, got %d", loads)
	}

	stats := c.Stats()
	if stats.HitCount != 2 || stats.LoadCount != 1 || stats.Entries != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestGetOrLoad_DoesNotMemoizeErrors(t *testing.T) {
	c := New[Pair, int](10)
	key := Pair{"octo", "repo"}
	boom := errors.New("boom")

	if _, err := c.GetOrLoad(key, func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected failed load not to be stored")
	}

	v, err := c.GetOrLoad(key, func() (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("expected retry to succeed with 42, got %d, %v", v, err)
	}
}

func TestGetOrLoad_CollapsesConcurrentMisses(t *testing.T) {
	c := New[Pair, []string](10)
	key := Pair{"octo", "repo"}

	const callers = 16
	var loads atomic.Int32
	release := make(chan struct{})

	load := func() ([]string, error) {
		loads.Add(1)
		<-release
		return []string{"main", "dev"}, nil
	}

	var wg sync.WaitGroup
	results := make([][]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrLoad(key, load)
		}(i)
	}

	// Give every caller a chance to join the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Errorf("expected exactly 1 load, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error %v", i, errs[i])
		}
		if len(results[i]) != 2 || results[i][0] != "main" || results[i][1] != "dev" {
			t.Errorf("caller %d: unexpected result %v", i, results[i])
		}
	}
}

func TestGetOrLoad_ConcurrentWaitersShareFailure(t *testing.T) {
	c := New[Pair, int](10)
	key := Pair{"octo", "repo"}
	boom := errors.New("boom")

	var loads atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrLoad(key, func() (int, error) {
				loads.Add(1)
				<-release
				return 0, boom
			})
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Errorf("expected exactly 1 load, got %d", got)
	}
	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("caller %d: expected boom, got %v", i, err)
		}
	}
	if c.Len() != 0 {
		t.Error("expected failure not to be stored")
	}
}

func TestCapacityEviction(t *testing.T) {
	c := New[Pair, int](2)

	for i, repo := range []string{"a", "b", "c"} {
		i := i
		if _, err := c.GetOrLoad(Pair{"octo", repo}, func() (int, error) { return i, nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries after eviction, got %d", c.Len())
	}
	if _, ok := c.Get(Pair{"octo", "a"}); ok {
		t.Error("expected least recently used entry to be evicted")
	}
}

func TestPairStringIsUnambiguous(t *testing.T) {
	a := Pair{"a/b", "c"}
	b := Pair{"a", "b/c"}
	if a.String() == b.String() {
		t.Errorf("expected distinct keys, both were %q", a.String())
	}
}
