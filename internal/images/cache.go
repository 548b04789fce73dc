// Package images caches downloaded photos in a local BoltDB file so
// repeat displays never refetch. Entries are keyed by the MD5 of the
// source URL; hot entries are additionally promoted to memory.
package images

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketPhotos = []byte("photos")

const (
	downloadTimeout = 30 * time.Second
	userAgent       = "Vireo/1.0"

	// maxMemEntries bounds the in-memory promotion cache. Once full,
	// reads keep serving from disk instead of evicting; photo blobs are
	// too large to let the hot cache grow with the collection.
	maxMemEntries = 64
)

// Cache is a persistent photo cache backed by BoltDB.
type Cache struct {
	db     *bolt.DB
	client *http.Client
	logger *slog.Logger

	mu  sync.RWMutex
	mem map[string][]byte
}

// Open creates or opens the photo cache under dir
func Open(dir string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "images.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open image cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPhotos)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{
		db:     db,
		client: &http.Client{Timeout: downloadTimeout},
		logger: logger,
		mem:    make(map[string][]byte),
	}, nil
}

// Close releases the underlying database
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func cacheKey(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Fetch returns the photo at url, downloading it on the first request
// and serving every later one from the cache. A failed disk write is
// logged and the downloaded bytes returned anyway.
func (c *Cache) Fetch(ctx context.Context, url string) ([]byte, error) {
	key := cacheKey(url)

	// Check memory cache first
	c.mu.RLock()
	if data, ok := c.mem[key]; ok {
		c.mu.RUnlock()
		return data, nil
	}
	c.mu.RUnlock()

	// Then disk
	var data []byte
	c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketPhotos).Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data != nil {
		c.promote(key, data)
		return data, nil
	}

	data, err := c.download(ctx, url)
	if err != nil {
		return nil, err
	}

	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPhotos).Put([]byte(key), data)
	})
	if err != nil {
		c.logger.Error("failed to cache photo", "url", url, "error", err)
	}
	c.promote(key, data)

	c.logger.Debug("cached photo", "url", url, "bytes", len(data))
	return data, nil
}

// Contains reports whether url is already cached, without fetching
func (c *Cache) Contains(url string) bool {
	key := cacheKey(url)

	c.mu.RLock()
	_, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		return true
	}

	found := false
	c.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketPhotos).Get([]byte(key)) != nil
		return nil
	})
	return found
}

// Stats returns the number of cached photos and their total size
func (c *Cache) Stats() (count int, size int64) {
	c.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketPhotos).Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			count++
			size += int64(len(v))
		}
		return nil
	})
	return count, size
}

// Clear removes every cached photo
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.mem = make(map[string][]byte)
	c.mu.Unlock()

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPhotos)
		cur := b.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Cache) promote(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.mem) >= maxMemEntries {
		return
	}
	c.mem[key] = data
}

func (c *Cache) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading photo: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading photo body: %w", err)
	}
	return data, nil
}
