package provider

import (
	"sync"
	"time"
)

// Catalog is the cached snapshot of models available across all
// configured providers, with the time it was last rebuilt. It is
// replaced wholesale by a refresh and never merged incrementally, so a
// reader holding a snapshot never observes a half-updated list.
type Catalog struct {
	mu          sync.RWMutex
	models      []Model
	refreshedAt time.Time
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Replace swaps the model list for a new snapshot stamped at the given
// time.
func (c *Catalog) Replace(models []Model, refreshedAt time.Time) {
	snapshot := make([]Model, len(models))
	copy(snapshot, models)

	c.mu.Lock()
	c.models = snapshot
	c.refreshedAt = refreshedAt
	c.mu.Unlock()
}

// Snapshot returns a copy of the current model list and its refresh time.
func (c *Catalog) Snapshot() ([]Model, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Model, len(c.models))
	copy(out, c.models)
	return out, c.refreshedAt
}

// Len returns the number of cataloged models.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}
