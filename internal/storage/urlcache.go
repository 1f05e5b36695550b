package storage

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// urlEntry is one cached signed URL with its absolute expiry.
type urlEntry struct {
	url       string
	expiresAt time.Time
}

// URLCache caches signed download URLs keyed by (provider, storageFileID).
// Entries past expiry are treated as absent rather than purged eagerly;
// the LRU size bound keeps dead entries from accumulating without bound.
// The cache never holds negative entries.
//
// The underlying LRU is safe for concurrent use; overlapping refreshes of
// the same key resolve last-writer-wins.
type URLCache struct {
	entries *lru.Cache[string, urlEntry]

	// now is replaceable in tests.
	now func() time.Time
}

// DefaultURLCacheSize bounds the cache when no size is configured.
const DefaultURLCacheSize = 4096

// NewURLCache builds a cache holding at most size entries. A size of zero
// or less falls back to DefaultURLCacheSize.
func NewURLCache(size int) *URLCache {
	if size <= 0 {
		size = DefaultURLCacheSize
	}
	entries, err := lru.New[string, urlEntry](size)
	if err != nil {
		// lru.New only fails on a non-positive size, which is handled above.
		panic(err)
	}
	return &URLCache{entries: entries, now: time.Now}
}

// cacheKey formats the composite key for one provider-side object.
func cacheKey(p Provider, storageFileID string) string {
	return string(p) + "/" + storageFileID
}

// Get returns the cached URL for the object if one exists and has not
// expired.
func (c *URLCache) Get(p Provider, storageFileID string) (string, bool) {
	e, ok := c.entries.Get(cacheKey(p, storageFileID))
	if !ok || !e.expiresAt.After(c.now()) {
		return "", false
	}
	return e.url, true
}

// Put stores a freshly issued URL valid for expiresIn from now.
func (c *URLCache) Put(p Provider, storageFileID, url string, expiresIn time.Duration) {
	c.entries.Add(cacheKey(p, storageFileID), urlEntry{
		url:       url,
		expiresAt: c.now().Add(expiresIn),
	})
}

// Evict drops the entry for one object. Deletes must call this as part of
// the same logical operation: a cached URL for a deleted object is a
// correctness bug, not a staleness nuisance.
func (c *URLCache) Evict(p Provider, storageFileID string) {
	c.entries.Remove(cacheKey(p, storageFileID))
}

// Len reports the number of resident entries, expired ones included.
func (c *URLCache) Len() int {
	return c.entries.Len()
}
