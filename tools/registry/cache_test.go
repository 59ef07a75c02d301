package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingClient counts remote list calls and can be scripted to fail.
type countingClient struct {
	listCalls atomic.Int64
	failFirst atomic.Bool
	delay     time.Duration
	tools     []Descriptor
}

func (c *countingClient) ListTools(ctx context.Context) ([]Descriptor, error) {
	n := c.listCalls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if n == 1 && c.failFirst.Load() {
		return nil, &FetchError{Err: fmt.Errorf("connection refused")}
	}
	return c.tools, nil
}

func (c *countingClient) CallTool(ctx context.Context, name string, args map[string]any) (*RawResult, error) {
	return &RawResult{Fallback: "ok"}, nil
}

func TestCacheSingleFlight(t *testing.T) {
	client := &countingClient{
		delay: 20 * time.Millisecond,
		tools: []Descriptor{{Name: "execute_query"}},
	}
	cache := NewCache(client, nil)

	const callers = 10
	var wg sync.WaitGroup
	snaps := make([]*Snapshot, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snaps[i] = cache.Snapshot(context.Background())
		}(i)
	}
	wg.Wait()

	if n := client.listCalls.Load(); n != 1 {
		t.Errorf("Expected exactly 1 remote list call, got %d", n)
	}
	for i, snap := range snaps {
		if snap.Empty() {
			t.Errorf("Caller %d got an empty snapshot", i)
		}
	}
}

func TestCacheReusesSnapshot(t *testing.T) {
	client := &countingClient{tools: []Descriptor{{Name: "execute_query"}}}
	cache := NewCache(client, nil)

	first := cache.Snapshot(context.Background())
	second := cache.Snapshot(context.Background())
	if first != second {
		t.Error("Subsequent read did not reuse the cached snapshot")
	}
	if n := client.listCalls.Load(); n != 1 {
		t.Errorf("Expected 1 remote list call, got %d", n)
	}
}

func TestCacheFailureNotMemoized(t *testing.T) {
	client := &countingClient{tools: []Descriptor{{Name: "execute_query"}}}
	client.failFirst.Store(true)
	cache := NewCache(client, nil)

	snap := cache.Snapshot(context.Background())
	if !snap.Empty() {
		t.Error("Failed fetch should degrade to an empty snapshot")
	}

	// The failure must not stick: the next turn fetches again.
	snap = cache.Snapshot(context.Background())
	if snap.Empty() {
		t.Error("Snapshot still empty after registry recovered")
	}
	if n := client.listCalls.Load(); n != 2 {
		t.Errorf("Expected 2 remote list calls, got %d", n)
	}
}

func TestCacheRefreshSwapsSnapshot(t *testing.T) {
	client := &countingClient{tools: []Descriptor{{Name: "execute_query"}}}
	cache := NewCache(client, nil)

	old := cache.Snapshot(context.Background())
	client.tools = []Descriptor{{Name: "execute_query"}, {Name: "get_targets"}}
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	fresh := cache.Snapshot(context.Background())
	if fresh == old {
		t.Error("Refresh did not replace the snapshot")
	}
	if len(fresh.Tools) != 2 {
		t.Errorf("Expected 2 tools after refresh, got %d", len(fresh.Tools))
	}
	// The old snapshot is untouched.
	if len(old.Tools) != 1 {
		t.Errorf("Old snapshot mutated: %d tools", len(old.Tools))
	}
}

func TestCacheAllowedToolFilter(t *testing.T) {
	client := &countingClient{tools: []Descriptor{
		{Name: "execute_query"},
		{Name: "execute_range_query"},
		{Name: "delete_series"},
	}}
	cache := NewCache(client, []string{"execute_*"})

	snap := cache.Snapshot(context.Background())
	if len(snap.Tools) != 2 {
		t.Fatalf("Expected 2 allowed tools, got %d", len(snap.Tools))
	}
	if _, ok := snap.Lookup("delete_series"); ok {
		t.Error("delete_series should have been filtered out")
	}
	if snap.Tools[0].Name != "execute_query" || snap.Tools[1].Name != "execute_range_query" {
		t.Errorf("Registry order not preserved: %v", snap.Tools)
	}
}
