package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string](func() time.Time { return now })

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("s1ticker", "6500", 30*time.Second)
	v, ok := c.Get("s1ticker")
	assert.True(t, ok)
	assert.Equal(t, "6500", v)

	now = now.Add(29 * time.Second)
	_, ok = c.Get("s1ticker")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get("s1ticker")
	assert.False(t, ok, "expires exactly at ttl")
	assert.Zero(t, c.Len())
}

func TestCacheDelete(t *testing.T) {
	c := New[int](nil)
	c.Put("a", 1, time.Minute)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCachePutDropsExpiredEntries(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string](func() time.Time { return now })

	c.Put("s1ticker", "6500", 30*time.Second)
	c.Put("s2ticker", "6510", time.Minute)
	assert.Equal(t, 2, c.Len())

	now = now.Add(45 * time.Second)
	c.Put("s3ticker", "6520", 30*time.Second)
	assert.Equal(t, 2, c.Len(), "s1 expired and was swept")

	_, ok := c.Get("s2ticker")
	assert.True(t, ok)
}
