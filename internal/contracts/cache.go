package contracts

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// fileCache keeps instrument dumps on disk so a restart during the day does
// not download the full exchange list again.
type fileCache struct {
	dir string
	ttl time.Duration
	mu  sync.RWMutex
	now func() time.Time
}

type cacheEntry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// newFileCache returns nil when dir is empty, which disables caching.
func newFileCache(dir string, ttl time.Duration) *fileCache {
	if dir == "" {
		return nil
	}
	return &fileCache{dir: dir, ttl: ttl, now: time.Now}
}

func (c *fileCache) get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	if entry.Key != key {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(entry.Timestamp) > c.ttl {
		return nil, false
	}

	return entry.Data, true
}

func (c *fileCache) set(key string, data []byte) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(cacheEntry{Key: key, Data: data, Timestamp: c.now()})
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(key), b, 0o644)
}

// cleanupExpired removes entries older than the TTL.
func (c *fileCache) cleanupExpired() error {
	if c == nil || c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > c.ttl {
			_ = os.Remove(filepath.Join(c.dir, entry.Name()))
		}
	}

	return nil
}

func (c *fileCache) path(key string) string {
	hash := md5.Sum([]byte(key))
	return filepath.Join(c.dir, fmt.Sprintf("%x.json", hash))
}

// cacheKey scopes an instrument dump to one exchange and one IST trading day.
func cacheKey(exchange string, day time.Time) string {
	return "instruments:" + exchange + ":" + day.In(ist).Format("2006-01-02")
}
