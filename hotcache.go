package tempuskv

import (
	"container/list"
	"sync"
	"time"
)

/*
hotcache.go is the in-process read-through cache sitting in front of the
flat KV namespace's Get path: an LRU of decoded values keyed by user key,
with its own short TTL independent of a key's own expiry, so a burst of
repeated Get calls for the same hot key does not read the value from
Badger every time (the key's TTL record is still read on every Get).

Expiry reuses the package's millisecond clock (nowMillis/isExpired) rather
than keeping an independent UnixNano-based scheme, and there is no private
janitor goroutine: reaper.go's existing ticker calls sweepExpired once per
tick, the same way it sweeps expired maps and lists, so the cache shares
its sweep cadence and lifecycle with the rest of the background work
instead of running a second one.

Correctness does not depend on this cache: Db.Get never trusts it past
isExpired, and every write path that could make a cached entry stale
(Insert, Remove, BatchInsert, BatchRemove, ExpireAt) invalidates the
corresponding key outright rather than trying to update it in place.
*/

type hotCacheItem struct {
	key      string
	value    []byte
	expireAt int64 // millisecond Unix timestamp; 0 = no expiry
}

func (i *hotCacheItem) expired() bool {
	return isExpired(i.expireAt, nowMillis())
}

// CacheStats reports the hot-key cache's hit/miss/eviction counters,
// surfaced through Db.Info.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

type hotCache struct {
	data       map[string]*list.Element
	lru        *list.List
	mu         sync.RWMutex
	maxEntries int
	stats      CacheStats
}

// newHotCache builds a cache bounded at maxEntries (0 disables eviction,
// relying solely on TTL to bound size). Active expiration is driven by
// sweepExpired, called from the reaper's own ticker rather than one of
// the cache's own.
func newHotCache(maxEntries int) *hotCache {
	return &hotCache{
		data:       make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
	}
}

func (c *hotCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expireAt int64
	if ttl > 0 {
		expireAt = expireAtFor(ttl)
	}

	if elem, found := c.data[key]; found {
		item := elem.Value.(*hotCacheItem)
		item.value = value
		item.expireAt = expireAt
		c.lru.MoveToFront(elem)
		return
	}

	if c.maxEntries > 0 && c.lru.Len() >= c.maxEntries {
		c.evictOldest()
	}

	elem := c.lru.PushFront(&hotCacheItem{key: key, value: value, expireAt: expireAt})
	c.data[key] = elem
}

func (c *hotCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.data[key]
	if !found {
		c.stats.Misses++
		return nil, false
	}
	item := elem.Value.(*hotCacheItem)
	if item.expired() {
		c.removeElement(elem)
		c.stats.Misses++
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.stats.Hits++
	return item.value, true
}

func (c *hotCache) Delete(key string) {
	c.mu.Lock()
	if elem, found := c.data[key]; found {
		c.removeElement(elem)
	}
	c.mu.Unlock()
}

func (c *hotCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *hotCache) evictOldest() {
	elem := c.lru.Back()
	if elem != nil {
		c.removeElement(elem)
		c.stats.Evictions++
	}
}

// removeElement assumes the caller already holds c.mu.
func (c *hotCache) removeElement(e *list.Element) {
	c.lru.Remove(e)
	item := e.Value.(*hotCacheItem)
	delete(c.data, item.key)
}

// sweepExpired walks the cache back-to-front (oldest-touched first) and
// evicts every entry whose TTL has elapsed. Called once per reaper tick.
func (c *hotCache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		item := elem.Value.(*hotCacheItem)
		if item.expired() {
			c.removeElement(elem)
		}
		elem = prev
	}
}
