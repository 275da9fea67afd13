package workspace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheFreshness(t *testing.T) {
	now := time.Now()
	c := NewCache(5 * time.Minute)
	c.now = func() time.Time { return now }

	c.Store([]*Package{pkg("a", "1.0.0")})

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.Name())

	age, ok := c.Age("a")
	require.True(t, ok)
	assert.Zero(t, age)

	// Entries older than the TTL are stale.
	now = now.Add(5*time.Minute + time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)

	// Age still reports for stale entries; staleness is the caller's call.
	age, ok = c.Age("a")
	require.True(t, ok)
	assert.Greater(t, age, 5*time.Minute)
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(time.Minute)
	c.Store([]*Package{pkg("a", "1.0.0"), pkg("b", "1.0.0")})
	assert.Equal(t, 2, c.Len())
	c.Invalidate()
	assert.Equal(t, 0, c.Len())
}

func TestCacheMiss(t *testing.T) {
	c := NewCache(time.Minute)
	_, ok := c.Get("missing")
	assert.False(t, ok)
	_, ok = c.Age("missing")
	assert.False(t, ok)
}
