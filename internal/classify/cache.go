package classify

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

// Cache memoizes classifications. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Classification
	hits    int
	misses  int
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Classification)}
}

// Key hashes everything a classification depends on.
func Key(version string, uxPlanExists bool, task domain.Task) string {
	hasher := blake3.New()
	for _, part := range []string{
		version,
		strconv.FormatBool(uxPlanExists),
		string(task.ID),
		task.Title,
		task.Description,
		string(task.Type),
		strconv.Itoa(task.EstimatedMinutes),
	} {
		// length-prefixed so field boundaries cannot collide
		_, _ = fmt.Fprintf(hasher, "%d:%s;", len(part), part)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// Get returns a copy of the cached classification for key
func (c *Cache) Get(key string) (Classification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	if !ok {
		c.misses++
		return Classification{}, false
	}
	c.hits++
	return v.Clone(), true
}

// Put stores a copy of v under key
func (c *Cache) Put(key string, v Classification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v.Clone()
}

// Stats returns hit and miss counts
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
