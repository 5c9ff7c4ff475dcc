package exchange

import (
	"fmt"
	"sort"
	"sync"
)

// Container is a thread-safe registry of named exchange adapters. It
// lets application code resolve adapters by venue name instead of
// holding concrete types.
type Container struct {
	mu        sync.RWMutex
	exchanges map[string]Exchange
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{
		exchanges: make(map[string]Exchange),
	}
}

// Register adds an adapter under the given name, replacing any previous
// registration with that name.
func (c *Container) Register(name string, ex Exchange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges[name] = ex
}

// Get returns the adapter registered under name.
func (c *Container) Get(name string) (Exchange, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ex, exists := c.exchanges[name]
	if !exists {
		return nil, fmt.Errorf("exchange %q not found", name)
	}
	return ex, nil
}

// Names returns the registered names in sorted order.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.exchanges))
	for name := range c.exchanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes the adapter registered under name, if any. The
// adapter is not closed; that remains the caller's job.
func (c *Container) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.exchanges, name)
}

// Exists reports whether an adapter is registered under name.
func (c *Container) Exists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.exchanges[name]
	return exists
}

// Close closes every registered adapter and empties the container. The
// first error is returned; remaining adapters are still closed.
func (c *Container) Close() error {
	c.mu.Lock()
	exchanges := c.exchanges
	c.exchanges = make(map[string]Exchange)
	c.mu.Unlock()

	var firstErr error
	for name, ex := range exchanges {
		if err := ex.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
	}
	return firstErr
}
