package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/notafacil/receipt-pipeline/internal/entity"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryCache is an in-process ResponseCache for tests and single-binary
// local mode. Entries are stored as JSON so readers never alias a writer's
// invoice, mirroring the Redis path.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, provider string, images [][]byte) (*entity.ExtractedInvoice, bool) {
	c.mu.RLock()
	entry, ok := c.entries[Key(provider, images)]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	var inv entity.ExtractedInvoice
	if err := json.Unmarshal(entry.payload, &inv); err != nil {
		return nil, false
	}
	return &inv, true
}

func (c *MemoryCache) Set(_ context.Context, provider string, images [][]byte, inv *entity.ExtractedInvoice) {
	if inv == nil {
		return
	}
	payload, err := json.Marshal(inv)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.entries[Key(provider, images)] = memoryEntry{payload: payload, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *MemoryCache) Invalidate(_ context.Context, provider string, images [][]byte) {
	c.mu.Lock()
	delete(c.entries, Key(provider, images))
	c.mu.Unlock()
}

func (c *MemoryCache) ClearAll(_ context.Context) int {
	c.mu.Lock()
	removed := len(c.entries)
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return removed
}
