package fetcher

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePutGet(t *testing.T) {
	c := NewCache(t.TempDir(), time.Hour)

	require.NoError(t, c.Put(cacheEntry{
		URL:        "https://example.com/a",
		Method:     http.MethodGet,
		StatusCode: 200,
		Content:    "body",
	}))

	entry := c.Get(http.MethodGet, "https://example.com/a")
	require.NotNil(t, entry)
	assert.Equal(t, "body", entry.Content)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestCacheMiss(t *testing.T) {
	c := NewCache(t.TempDir(), time.Hour)
	assert.Nil(t, c.Get(http.MethodGet, "https://example.com/missing"))
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(t.TempDir(), time.Millisecond)

	require.NoError(t, c.Put(cacheEntry{
		URL:    "https://example.com/a",
		Method: http.MethodGet,
	}))
	time.Sleep(5 * time.Millisecond)
	assert.Nil(t, c.Get(http.MethodGet, "https://example.com/a"))
}

func TestCacheRejectsNonGET(t *testing.T) {
	c := NewCache(t.TempDir(), time.Hour)
	err := c.Put(cacheEntry{URL: "https://example.com/a", Method: http.MethodPost})
	assert.Error(t, err)
}

func TestCacheKeyIsMethodAndURL(t *testing.T) {
	a := cacheKey(http.MethodGet, "https://example.com/a")
	b := cacheKey(http.MethodGet, "https://example.com/b")
	c := cacheKey("HEAD", "https://example.com/a")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, cacheKey(http.MethodGet, "https://example.com/a"))
	assert.Len(t, a, 64)
}
