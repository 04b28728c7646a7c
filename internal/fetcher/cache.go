package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// cacheEntry is the on-disk cache record, one JSON file per key.
type cacheEntry struct {
	URL           string            `json:"url"`
	Method        string            `json:"method"`
	StatusCode    int               `json:"status_code"`
	Headers       map[string]string `json:"headers"`
	Content       string            `json:"content"`
	ContentLength int               `json:"content_length"`
	Encoding      string            `json:"encoding"`
	Timestamp     time.Time         `json:"timestamp"`
	Cached        bool              `json:"cached"`
}

// Cache is a process-global disk cache for successful GET responses.
// Reads go straight to disk; writes are serialized.
type Cache struct {
	dir string
	ttl time.Duration

	writeMu sync.Mutex
}

// NewCache creates a cache rooted at dir.
func NewCache(dir string, ttl time.Duration) *Cache {
	return &Cache{dir: dir, ttl: ttl}
}

// cacheKey hashes (method, url) into the cache file name.
func cacheKey(method, url string) string {
	sum := sha256.Sum256([]byte(method + "|" + url))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) path(method, url string) string {
	return filepath.Join(c.dir, cacheKey(method, url)+".json")
}

// Get returns a fresh cached entry, or nil on miss or expiry.
func (c *Cache) Get(method, url string) *cacheEntry {
	data, err := os.ReadFile(c.path(method, url))
	if err != nil {
		return nil
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil
	}
	if time.Since(entry.Timestamp) > c.ttl {
		return nil
	}
	return &entry
}

// Put stores an entry. POST responses must never reach here.
func (c *Cache) Put(entry cacheEntry) error {
	if entry.Method != "GET" {
		return fmt.Errorf("only GET responses are cacheable")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	entry.Timestamp = time.Now().UTC()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	// Write-and-rename keeps readers from seeing partial files.
	tmp := c.path(entry.Method, entry.URL) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return os.Rename(tmp, c.path(entry.Method, entry.URL))
}
