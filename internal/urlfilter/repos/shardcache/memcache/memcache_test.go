package memcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclayer/urlfilter/internal/urlfilter/domain"
)

func TestCache_PutGetDelete(t *testing.T) {
	c := New(10, time.Minute)

	_, found, err := c.Get("cisco.com:443")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put("cisco.com:443", domain.NewShardTree(false)))

	tree, found, err := c.Get("cisco.com:443")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, tree.Root.Safe)

	require.NoError(t, c.Delete("cisco.com:443"))
	_, found, err = c.Get("cisco.com:443")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_Keys(t *testing.T) {
	c := New(10, time.Minute)
	require.NoError(t, c.Put("a.com:443", domain.NewShardTree(true)))
	require.NoError(t, c.Put("b.com:443", domain.NewShardTree(true)))

	keys, err := c.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.com:443", "b.com:443"}, keys)
}

func TestCache_NativeExpiry(t *testing.T) {
	c := New(10, 30*time.Millisecond)
	require.NoError(t, c.Put("cisco.com:443", domain.NewShardTree(true)))

	_, found, err := c.Get("cisco.com:443")
	require.NoError(t, err)
	require.True(t, found)

	time.Sleep(80 * time.Millisecond)

	_, found, err = c.Get("cisco.com:443")
	require.NoError(t, err)
	assert.False(t, found, "entry must expire without an explicit purge")
}

func TestCache_PutRefreshesTTL(t *testing.T) {
	c := New(10, 60*time.Millisecond)
	require.NoError(t, c.Put("cisco.com:443", domain.NewShardTree(true)))

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, c.Put("cisco.com:443", domain.NewShardTree(false)))
	time.Sleep(40 * time.Millisecond)

	tree, found, err := c.Get("cisco.com:443")
	require.NoError(t, err)
	require.True(t, found, "rewrite resets the entry's expiry")
	assert.False(t, tree.Root.Safe)
}

func TestCache_SizeBound(t *testing.T) {
	c := New(2, time.Minute)
	require.NoError(t, c.Put("a.com:443", domain.NewShardTree(true)))
	require.NoError(t, c.Put("b.com:443", domain.NewShardTree(true)))
	require.NoError(t, c.Put("c.com:443", domain.NewShardTree(true)))

	keys, err := c.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 2, "LRU bound evicts the oldest shard")
}
