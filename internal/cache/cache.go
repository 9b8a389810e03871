package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// SnapshotCache keeps the last fetched list of an entity store so a fresh
// process can serve it before the first remote fetch completes.
type SnapshotCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopSnapshotCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemorySnapshotCache stores JSON payloads in process memory, mirroring what
// the redis cache keeps on the wire.
type MemorySnapshotCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{entries: map[string]memoryEntry{}, now: time.Now}
}

func (c *MemorySnapshotCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemorySnapshotCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// Key namespaces a snapshot by terminal and resource.
func Key(terminalID string, resource string) string {
	return "posagent:snapshot:" + terminalID + ":" + resource
}
