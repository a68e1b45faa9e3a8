package folders

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/groupware/internal/server/models"
)

type cacheKey struct{ contextID, folderID int }

type cacheEntry struct {
	folder  *models.Folder
	expires time.Time
}

// Cache is the process-wide read-through folder cache keyed by (context,
// folder). Writers invalidate, they never update in place. Values are cloned
// on the way in and out.
//
// A reader takes a Ticket before loading from the store and hands it back to
// Put; a Put whose ticket predates an Invalidate of the same key is dropped,
// so a slow reader cannot resurrect a value a writer just invalidated.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[cacheKey]cacheEntry
	gens    map[cacheKey]uint64
	now     func() time.Time
}

// Ticket is the generation of a key observed before a store read.
type Ticket uint64

// NewCache returns an empty cache. A zero ttl keeps entries until invalidated.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[cacheKey]cacheEntry),
		gens:    make(map[cacheKey]uint64),
		now:     time.Now,
	}
}

func (c *Cache) Get(contextID, folderID int) (*models.Folder, bool) {
	k := cacheKey{contextID, folderID}
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.mu.Lock()
		if cur, ok := c.entries[k]; ok && cur.expires.Equal(e.expires) {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.folder.Clone(), true
}

func (c *Cache) Ticket(contextID, folderID int) Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Ticket(c.gens[cacheKey{contextID, folderID}])
}

// Put stores f unless the key was invalidated after t was taken.
func (c *Cache) Put(f *models.Folder, t Ticket) bool {
	k := cacheKey{f.ContextID, f.ID}
	c.mu.Lock()
	defer c.mu.Unlock()
	if Ticket(c.gens[k]) != t {
		return false
	}
	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}
	c.entries[k] = cacheEntry{folder: f.Clone(), expires: expires}
	return true
}

// Invalidate drops the entry and voids outstanding tickets for it.
func (c *Cache) Invalidate(contextID, folderID int) {
	k := cacheKey{contextID, folderID}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
	c.gens[k]++
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
