package registry

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
)

// Cache holds the process-wide registry snapshot. The first caller triggers
// the remote fetch and every concurrent caller waits on that same in-flight
// fetch; once populated, reads are lock-free. A failed fetch is never
// memoized, so the next turn retries instead of pinning an empty registry
// for the life of the process.
type Cache struct {
	client  Client
	allowed []string

	snap atomic.Pointer[Snapshot]

	mu       sync.Mutex
	inflight *fetch
}

type fetch struct {
	done chan struct{}
	snap *Snapshot
	err  error
}

// NewCache creates a cache over the given client. allowed optionally
// restricts the snapshot to tools whose names match one of the glob
// patterns; nil or empty allows everything.
func NewCache(client Client, allowed []string) *Cache {
	return &Cache{client: client, allowed: allowed}
}

// Snapshot returns the cached registry snapshot, populating it on first use.
// It never fails: if the fetch errors (or ctx is cancelled while waiting on
// a fetch started by another caller), an empty snapshot is returned and the
// turn proceeds with tool use disabled.
func (c *Cache) Snapshot(ctx context.Context) *Snapshot {
	if s := c.snap.Load(); s != nil {
		return s
	}

	c.mu.Lock()
	if s := c.snap.Load(); s != nil {
		c.mu.Unlock()
		return s
	}
	f := c.inflight
	if f == nil {
		f = &fetch{done: make(chan struct{})}
		c.inflight = f
		go c.populate(f)
	}
	c.mu.Unlock()

	select {
	case <-f.done:
	case <-ctx.Done():
		return EmptySnapshot()
	}
	if f.err != nil {
		log.Printf("registry: degrading to empty tool set: %v", f.err)
		return EmptySnapshot()
	}
	return f.snap
}

// populate runs the remote fetch for every waiter of f. It deliberately uses
// a background context: the fetch outcome is shared process-wide, so one
// caller disconnecting must not cancel it for the others. The client applies
// its own timeout.
func (c *Cache) populate(f *fetch) {
	snap, err := c.fetchSnapshot(context.Background())
	f.snap, f.err = snap, err
	if err == nil {
		c.snap.Store(snap)
	}

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(f.done)
}

// Refresh fetches the registry again and atomically replaces the snapshot.
// On failure the previous snapshot, if any, stays in place.
func (c *Cache) Refresh(ctx context.Context) error {
	snap, err := c.fetchSnapshot(ctx)
	if err != nil {
		return err
	}
	c.snap.Store(snap)
	return nil
}

func (c *Cache) fetchSnapshot(ctx context.Context) (*Snapshot, error) {
	tools, err := c.client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(c.filter(tools)), nil
}

// filter applies the allowed-tool glob patterns to the fetched descriptors,
// preserving registry order.
func (c *Cache) filter(tools []Descriptor) []Descriptor {
	if len(c.allowed) == 0 {
		return tools
	}
	var kept []Descriptor
	for _, t := range tools {
		for _, pattern := range c.allowed {
			match, err := doublestar.Match(pattern, t.Name)
			if err != nil {
				log.Printf("registry: invalid allowed_tools pattern '%s': %v", pattern, err)
				continue
			}
			if match {
				kept = append(kept, t)
				break
			}
		}
	}
	return kept
}
