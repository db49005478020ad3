package mocks

import (
	"context"
	"encoding/json"
	"sync"

	sharedCache "github.com/davicafu/orchestrix/internal/shared/infra/platform/cache"
)

// DummyCache es una Cache en memoria para tests. Los valores se guardan como JSON.
// GetErr y SetErr, si están definidos, se devuelven sin tocar el almacén.
type DummyCache struct {
	mu      sync.RWMutex
	entries map[string][]byte

	GetErr error
	SetErr error

	gets int
	sets int
}

var _ sharedCache.Cache = (*DummyCache)(nil)

func NewDummyCache() *DummyCache {
	return &DummyCache{entries: make(map[string][]byte)}
}

func (c *DummyCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	c.gets++
	raw, ok := c.entries[key]
	getErr := c.GetErr
	c.mu.Unlock()

	if getErr != nil {
		return false, getErr
	}
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *DummyCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetErr != nil {
		return c.SetErr
	}
	c.entries[key] = raw
	c.sets++
	return nil
}

func (c *DummyCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Has indica si key está en caché.
func (c *DummyCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Calls returns the number of Get and successful Set calls so far.
func (c *DummyCache) Calls() (gets, sets int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gets, c.sets
}
