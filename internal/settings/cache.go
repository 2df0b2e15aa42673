package settings

import "sync"

// Cache is a mutex-guarded in-memory view of a node's settings, backed by
// a Store. The preview loop calls Current to snapshot settings at the
// start of each capture cycle; the command listener calls Update to
// mutate and persist. A reader never observes a torn update — Current
// returns a full copy taken under the lock.
type Cache struct {
	mu    sync.Mutex
	store *Store
	cur   Settings
}

// NewCache loads the initial settings from store and wraps them in a Cache.
func NewCache(store *Store) (*Cache, error) {
	s, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, cur: s}, nil
}

// Current returns a snapshot of the current settings.
func (c *Cache) Current() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// Update applies fn to a copy of the current settings, persists the
// result, and swaps it in as the new current value. On I/O failure the
// in-memory change is still kept and future saves can be retried, but the
// boolean return is false so the caller can log the failure.
func (c *Cache) Update(fn func(*Settings)) (Settings, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.cur
	fn(&next)
	clamp(&next)
	ok := c.store.Save(next)
	c.cur = next
	return next, ok
}

// Replace atomically swaps in an entirely new settings vector (used by
// SET_ALL_SETTINGS and the RESET_* commands).
func (c *Cache) Replace(s Settings) (Settings, bool) {
	return c.Update(func(cur *Settings) { *cur = s })
}
