package mirror

import (
	"fmt"
	"io/fs"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultFingerprintCacheSize = 16384

type cachedFingerprint struct {
	size    int64
	modTime time.Time
	fp      Fingerprint
}

// FingerprintCache remembers source fingerprints between mirror passes.
// An entry is reused only while the file's size and mtime are unchanged.
type FingerprintCache struct {
	cache *lru.Cache[string, cachedFingerprint]
}

func NewFingerprintCache(size int) (*FingerprintCache, error) {
	cache, err := lru.New[string, cachedFingerprint](size)
	if err != nil {
		return nil, fmt.Errorf("create fingerprint cache: %w", err)
	}
	return &FingerprintCache{cache: cache}, nil
}

// Fingerprint returns the digest for path, hashing only on a cache miss.
// A nil cache always hashes.
func (c *FingerprintCache) Fingerprint(path string, info fs.FileInfo) (Fingerprint, error) {
	if c == nil {
		return FileFingerprint(path)
	}

	if hit, ok := c.cache.Get(path); ok && hit.size == info.Size() && hit.modTime.Equal(info.ModTime()) {
		return hit.fp, nil
	}

	fp, err := FileFingerprint(path)
	if err != nil {
		c.cache.Remove(path)
		return fp, err
	}

	c.cache.Add(path, cachedFingerprint{size: info.Size(), modTime: info.ModTime(), fp: fp})
	return fp, nil
}

func (c *FingerprintCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
