package schema

import (
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	domainerrors "cprqa/internal/core/errors"
	"cprqa/internal/shared/observability"
)

// Cache holds loaded definitions for one tenant's schema directory. Reads
// share the lock; Reload and Clear take it exclusively, so no reader ever
// sees a partially swapped set.
type Cache struct {
	mu     sync.RWMutex
	dir    string
	files  map[string]string
	marker string
	defs   map[string]*Definition
}

// NewCache maps template ids to schema file names inside dir.
func NewCache(dir string, files map[string]string, defaultMarker string) *Cache {
	copied := make(map[string]string, len(files))
	for id, name := range files {
		copied[id] = name
	}
	return &Cache{
		dir:    dir,
		files:  copied,
		marker: defaultMarker,
		defs:   make(map[string]*Definition),
	}
}

// Get returns the cached definition, loading it on first access.
func (c *Cache) Get(templateID string) (*Definition, error) {
	c.mu.RLock()
	def, ok := c.defs[templateID]
	c.mu.RUnlock()
	if ok {
		return def, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if def, ok := c.defs[templateID]; ok {
		return def, nil
	}
	def, err := c.load(c.dir, templateID)
	if err != nil {
		return nil, err
	}
	c.defs[templateID] = def
	return def, nil
}

func (c *Cache) load(dir, templateID string) (*Definition, error) {
	name, ok := c.files[templateID]
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "Unknown template_id: %s", templateID).
			WithContext(domainerrors.CtxTemplate, templateID)
	}
	return LoadFile(filepath.Join(dir, name), templateID, c.marker)
}

// Reload points the cache at dir and eagerly loads every known template.
// Templates without a schema file are left to fail on access. A malformed
// file aborts the reload and the previous state stays in place.
func (c *Cache) Reload(dir string) error {
	next := make(map[string]*Definition, len(c.files))
	for _, id := range c.Templates() {
		def, err := c.load(dir, id)
		if err != nil {
			if domainerrors.IsCode(err, domainerrors.CodeNotFound) {
				slog.Warn("schema missing during reload", "template", id, "dir", dir)
				continue
			}
			return err
		}
		next[id] = def
	}

	c.mu.Lock()
	c.dir = dir
	c.defs = next
	c.mu.Unlock()

	observability.SchemaReloadsTotal.Inc()
	slog.Info("schema cache reloaded", "dir", dir, "templates", len(next))
	return nil
}

// Clear drops every loaded definition; the next Get reloads from disk.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.defs = make(map[string]*Definition)
	c.mu.Unlock()
	observability.SchemaReloadsTotal.Inc()
}

func (c *Cache) Dir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dir
}

// Templates lists the known template ids in sorted order.
func (c *Cache) Templates() []string {
	ids := make([]string, 0, len(c.files))
	for id := range c.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Loaded reports how many definitions are currently cached.
func (c *Cache) Loaded() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}
