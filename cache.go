package tmplet

import (
	"sync"

	"github.com/dgraph-io/ristretto"
)

// Cache stores compiled views by name. Implementations keep at most one template per key and
// must be safe for concurrent use.
type Cache interface {
	Get(key string) (*Template, bool)
	Set(key string, t *Template)
	Delete(key string)
	Clear()
}

type mapCache struct {
	mu sync.RWMutex
	m  map[string]*Template
}

// NewMapCache returns an unbounded cache.
func NewMapCache() Cache {
	return &mapCache{m: map[string]*Template{}}
}

func (c *mapCache) Get(key string) (*Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.m[key]
	return t, ok
}

func (c *mapCache) Set(key string, t *Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = t
}

func (c *mapCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

func (c *mapCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = map[string]*Template{}
}

type ristrettoCache struct {
	c *ristretto.Cache
}

// NewRistrettoCache returns a cache holding roughly maxEntries templates. Rarely used
// templates are evicted and recompiled on their next view.
func NewRistrettoCache(maxEntries int64) (Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10, // ristretto recommends 10x the expected entries
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ristrettoCache{c: c}, nil
}

func (c *ristrettoCache) Get(key string) (*Template, bool) {
	v, ok := c.c.Get(key)
	if !ok {
		return nil, false
	}
	t, ok := v.(*Template)
	return t, ok
}

func (c *ristrettoCache) Set(key string, t *Template) {
	c.c.Set(key, t, 1)
	// make the entry visible to the next Get
	c.c.Wait()
}

func (c *ristrettoCache) Delete(key string) {
	c.c.Del(key)
}

func (c *ristrettoCache) Clear() {
	c.c.Clear()
}
