package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestURLCache(t *testing.T) {
	now := time.Now()
	newCache := func(size int) *URLCache {
		c := NewURLCache(size)
		c.now = func() time.Time { return now }
		return c
	}

	t.Run("HitWithinExpiry", func(t *testing.T) {
		c := newCache(8)
		c.Put(ProviderMinio, "key-1", "https://example.com/key-1", time.Hour)

		url, ok := c.Get(ProviderMinio, "key-1")
		assert.True(t, ok)
		assert.Equal(t, "https://example.com/key-1", url)
	})

	t.Run("ExpiredEntryIsAbsent", func(t *testing.T) {
		c := newCache(8)
		c.Put(ProviderMinio, "key-1", "https://example.com/key-1", time.Minute)

		now = now.Add(2 * time.Minute)
		defer func() { now = now.Add(-2 * time.Minute) }()

		_, ok := c.Get(ProviderMinio, "key-1")
		assert.False(t, ok)
	})

	t.Run("KeysAreProviderScoped", func(t *testing.T) {
		c := newCache(8)
		c.Put(ProviderMinio, "key-1", "https://minio.example.com/key-1", time.Hour)

		_, ok := c.Get(ProviderAWS, "key-1")
		assert.False(t, ok)
	})

	t.Run("EvictRemovesEntry", func(t *testing.T) {
		c := newCache(8)
		c.Put(ProviderMinio, "key-1", "https://example.com/key-1", time.Hour)
		c.Evict(ProviderMinio, "key-1")

		_, ok := c.Get(ProviderMinio, "key-1")
		assert.False(t, ok)
	})

	t.Run("LastWriterWins", func(t *testing.T) {
		c := newCache(8)
		c.Put(ProviderMinio, "key-1", "https://example.com/old", time.Hour)
		c.Put(ProviderMinio, "key-1", "https://example.com/new", time.Hour)

		url, ok := c.Get(ProviderMinio, "key-1")
		assert.True(t, ok)
		assert.Equal(t, "https://example.com/new", url)
	})

	t.Run("SizeBoundEvictsOldest", func(t *testing.T) {
		c := newCache(4)
		for i := 0; i < 8; i++ {
			c.Put(ProviderMinio, fmt.Sprintf("key-%d", i), fmt.Sprintf("https://example.com/key-%d", i), time.Hour)
		}

		assert.Equal(t, 4, c.Len())
		_, ok := c.Get(ProviderMinio, "key-0")
		assert.False(t, ok)
		_, ok = c.Get(ProviderMinio, "key-7")
		assert.True(t, ok)
	})
}
