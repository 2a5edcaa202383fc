// Package cache is a content-addressed store of prior subtitle text, keyed
// by source identity plus backend identity. Caching is never a correctness
// dependency: every I/O error degrades to a miss.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subforge/pkg/log"
)

const DefaultTTL = 24 * time.Hour

// Entry is the persisted form, one JSON file per key under the cache root.
type Entry struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e Entry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

type Cache struct {
	root   string
	logger *log.Logger
	now    func() time.Time
}

func New(root string, logger *log.Logger) (*Cache, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("cache root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache{
		root:   root,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Key derives a stable cache key from the source file's size and mtime plus
// the backend identity. Any change to the file or the backend/model
// invalidates the key.
func Key(sourcePath, backendID, model string) (string, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", fmt.Errorf("stat source for cache key: %w", err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s|%s", info.Size(), info.ModTime().UnixNano(), backendID, model)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the cached content for key. Expired entries are deleted as a
// side effect and reported as absent.
func (c *Cache) Get(key string) (string, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return "", false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("Discarding unreadable cache entry %s: %v", key, err)
		_ = os.Remove(c.path(key))
		return "", false
	}

	if entry.expired(c.now()) {
		_ = os.Remove(c.path(key))
		return "", false
	}

	return entry.Content, true
}

// Put stores content under key with the given ttl. The write is a
// whole-file replace via rename so concurrent readers never observe a
// partial entry.
func (c *Cache) Put(key, content string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := c.now()
	entry := Entry{
		Content:   content,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("Failed to encode cache entry %s: %v", key, err)
		return
	}

	tmp, err := os.CreateTemp(c.root, "entry-*.tmp")
	if err != nil {
		c.logger.Warn("Failed to write cache entry %s: %v", key, err)
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		c.logger.Warn("Failed to write cache entry %s: %v", key, err)
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return
	}
	if err := os.Rename(tmpName, c.path(key)); err != nil {
		_ = os.Remove(tmpName)
		c.logger.Warn("Failed to store cache entry %s: %v", key, err)
	}
}

// SweepExpired removes all expired entries and reports how many were
// deleted. It is invoked opportunistically by callers, never scheduled
// from inside this package.
func (c *Cache) SweepExpired() int {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return 0
	}

	removed := 0
	now := c.now()
	for _, dirEntry := range entries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), ".json") {
			continue
		}
		path := filepath.Join(c.root, dirEntry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil || entry.expired(now) {
			if os.Remove(path) == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		c.logger.Info("Swept %d expired cache entries", removed)
	}
	return removed
}

// Clear removes every entry regardless of expiry.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("read cache directory: %w", err)
	}
	for _, dirEntry := range entries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(c.root, dirEntry.Name())); err != nil {
			return fmt.Errorf("remove cache entry: %w", err)
		}
	}
	return nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.root, key+".json")
}
