package cache

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Artifact is one cached build product.
type Artifact struct {
	// Fingerprint is the 64-hex content hash the artifact is addressed by.
	Fingerprint string

	// Kind tags what the bytes are, e.g. "netlist/spectre".
	Kind string

	Data []byte

	// SessionID identifies the build session that produced the artifact.
	SessionID string

	CreatedAt time.Time
}

// ArtifactStore is the persistent backend behind the in-memory cache.
// Implementations must treat entries as content-addressed: a Put for an
// existing fingerprint is a no-op, never an overwrite.
type ArtifactStore interface {
	Get(ctx context.Context, fingerprint string) (*Artifact, bool, error)
	Put(ctx context.Context, art *Artifact) error
}

// ComputeFunc produces the artifact for a fingerprint on a cache miss.
type ComputeFunc func(ctx context.Context) (*Artifact, error)

// Cache is a per-session, content-addressed artifact cache: an in-memory
// map in front of an optional persistent store, with a single-flight
// guarantee per fingerprint. Create one per build session; there is no
// process-wide instance.
type Cache struct {
	sessionID string
	store     ArtifactStore

	flight singleflight.Group

	mu  sync.RWMutex
	mem map[string]*Artifact
}

// New creates a cache for one build session. store may be nil for a purely
// in-memory cache.
func New(store ArtifactStore) *Cache {
	return &Cache{
		sessionID: uuid.NewString(),
		store:     store,
		mem:       make(map[string]*Artifact),
	}
}

// SessionID returns the id stamped on artifacts this session produces.
func (c *Cache) SessionID() string { return c.sessionID }

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mem)
}

// GetOrCompute returns the artifact for fingerprint, running compute at
// most once per in-flight fingerprint. All concurrent callers for one
// fingerprint receive the same result; a failed compute is returned to
// every waiter and not cached, so a later call retries. ctx cancels only
// this caller's wait: a computation other requesters share continues and
// still populates the cache.
func (c *Cache) GetOrCompute(ctx context.Context, fingerprint string, compute ComputeFunc) (*Artifact, error) {
	if err := checkFingerprint(fingerprint); err != nil {
		return nil, err
	}
	if art := c.lookup(fingerprint); art != nil {
		return art, nil
	}

	ch := c.flight.DoChan(fingerprint, func() (any, error) {
		// Detach from the initiating caller: the computation belongs to the
		// fingerprint, not to whoever happened to trigger it.
		return c.fill(context.WithoutCancel(ctx), fingerprint, compute)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Artifact), nil
	}
}

func (c *Cache) fill(ctx context.Context, fingerprint string, compute ComputeFunc) (*Artifact, error) {
	// A racing caller may have filled the entry between the fast-path miss
	// and this flight winning the key.
	if art := c.lookup(fingerprint); art != nil {
		return art, nil
	}
	if c.store != nil {
		art, ok, err := c.store.Get(ctx, fingerprint)
		if err != nil {
			return nil, fmt.Errorf("cache: store get %s: %w", fingerprint, err)
		}
		if ok {
			c.remember(art)
			return art, nil
		}
	}

	art, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if art.Fingerprint == "" {
		art.Fingerprint = fingerprint
	} else if art.Fingerprint != fingerprint {
		return nil, fmt.Errorf("cache: compute returned artifact for %s, want %s", art.Fingerprint, fingerprint)
	}
	if art.SessionID == "" {
		art.SessionID = c.sessionID
	}
	if art.CreatedAt.IsZero() {
		art.CreatedAt = time.Now().UTC()
	}

	if c.store != nil {
		if err := c.store.Put(ctx, art); err != nil {
			// A result that could not be persisted is not memoized either;
			// the next call retries the whole entry.
			return nil, fmt.Errorf("cache: store put %s: %w", fingerprint, err)
		}
	}
	c.remember(art)
	return art, nil
}

func (c *Cache) lookup(fingerprint string) *Artifact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mem[fingerprint]
}

func (c *Cache) remember(art *Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[art.Fingerprint] = art
}

// Flush re-persists every in-memory artifact. Put is idempotent for
// content-addressed stores, so flushing after a long session is safe.
func (c *Cache) Flush(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	c.mu.RLock()
	arts := make([]*Artifact, 0, len(c.mem))
	for _, art := range c.mem {
		arts = append(arts, art)
	}
	c.mu.RUnlock()

	for _, art := range arts {
		if err := c.store.Put(ctx, art); err != nil {
			return fmt.Errorf("cache: flush %s: %w", art.Fingerprint, err)
		}
	}
	return nil
}

// Close releases the backing store if the cache owns one that is closable.
func (c *Cache) Close() error {
	if closer, ok := c.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func checkFingerprint(fp string) error {
	if len(fp) != 64 {
		return fmt.Errorf("cache: fingerprint must be 64 hex characters, got %d", len(fp))
	}
	for _, r := range fp {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("cache: fingerprint contains non-hex character %q", r)
		}
	}
	return nil
}
