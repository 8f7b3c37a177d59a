package registry

import (
	"sync"

	"github.com/dukex/handoff/pkg/models"
)

// Catalog holds every loaded workflow version, keyed by workflow id.
type Catalog map[string][]*models.Workflow

// Cache keeps the catalog between lookups. Implementations must be safe for concurrent use.
type Cache interface {
	Get() (Catalog, bool)
	Put(catalog Catalog)
	Invalidate()
}

// MemoryCache is the default in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	catalog Catalog
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get() (Catalog, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.catalog, c.catalog != nil
}

func (c *MemoryCache) Put(catalog Catalog) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.catalog = catalog
}

func (c *MemoryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.catalog = nil
}
