// Package prefix holds the per-session lookup from barcode prefix to ERP form.
package prefix

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/filesmile/backend/internal/models"
)

// ErrNotLoaded is returned by Ready until the first load completes.
var ErrNotLoaded = errors.New("prefix cache not loaded")

// Catalog lists the known form prefixes.
type Catalog interface {
	ListFormPrefixes(ctx context.Context) ([]models.FormPrefixInfo, error)
}

// Cache maps upper-cased prefixes to form metadata. Every load replaces the
// whole map; readers never see a partial load.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]models.FormPrefixInfo
	loaded   bool
	loading  bool
	err      error
	loadedAt time.Time
}

// NewCache returns an empty, unloaded cache.
func NewCache() *Cache {
	return &Cache{entries: map[string]models.FormPrefixInfo{}}
}

func normalize(prefix string) string {
	return strings.ToUpper(strings.TrimSpace(prefix))
}

// Load replaces the cache contents and marks it loaded. Duplicate prefixes
// keep the last entry. Entries with a blank prefix are ignored.
func (c *Cache) Load(entries []models.FormPrefixInfo) {
	next := make(map[string]models.FormPrefixInfo, len(entries))
	for _, e := range entries {
		key := normalize(e.Prefix)
		if key == "" {
			continue
		}
		next[key] = e
	}

	c.mu.Lock()
	c.entries = next
	c.loaded = true
	c.loading = false
	c.err = nil
	c.loadedAt = time.Now()
	c.mu.Unlock()
}

// Fail records a load failure. Previously loaded entries are kept.
func (c *Cache) Fail(err error) {
	c.mu.Lock()
	c.err = err
	c.loading = false
	c.mu.Unlock()
}

// LoadFrom fetches the catalog and loads it, or records the failure.
func (c *Cache) LoadFrom(ctx context.Context, catalog Catalog) error {
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	entries, err := catalog.ListFormPrefixes(ctx)
	if err != nil {
		c.Fail(err)
		return err
	}
	c.Load(entries)
	return nil
}

// Get looks up a prefix case-insensitively.
func (c *Cache) Get(prefix string) (models.FormPrefixInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[normalize(prefix)]
	return e, ok
}

// IsLoaded reports whether at least one load completed.
func (c *Cache) IsLoaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Err returns the error of the most recent failed load, if any.
func (c *Cache) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Ready reports whether matching may proceed: loaded and the last load succeeded.
func (c *Cache) Ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return c.err
	}
	if !c.loaded {
		return ErrNotLoaded
	}
	return nil
}

// Status summarizes the cache for API responses.
func (c *Cache) Status() models.CacheStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.err != nil:
		return models.CacheStatusError
	case c.loaded && !c.loading:
		return models.CacheStatusReady
	default:
		return models.CacheStatusLoading
	}
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LoadedAt returns the time of the last successful load.
func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Entries returns all entries sorted by prefix.
func (c *Cache) Entries() []models.FormPrefixInfo {
	c.mu.RLock()
	out := make([]models.FormPrefixInfo, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return normalize(out[i].Prefix) < normalize(out[j].Prefix)
	})
	return out
}
