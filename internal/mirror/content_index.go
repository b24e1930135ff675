package mirror

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// fingerprintChunkSize is the block size used to stream file contents through the hash
const fingerprintChunkSize = 64 * 1024

// Fingerprint is the sha256 digest of a file's full contents
type Fingerprint [sha256.Size]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// FilterCallback is a function that returns true if the path should be skipped
type FilterCallback func(path string) bool

// FileFingerprint reads the file at path in fixed-size blocks and returns its digest.
// A file that vanished or became unreadable yields an error matched by IsTransient.
func FileFingerprint(path string) (Fingerprint, error) {
	var fp Fingerprint

	file, err := os.Open(path)
	if err != nil {
		return fp, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	h := sha256.New()
	buf := make([]byte, fingerprintChunkSize)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fp, fmt.Errorf("read %s: %w", path, err)
		}
	}

	copy(fp[:], h.Sum(nil))
	return fp, nil
}

// IsTransient reports whether err is the expected outcome of a file changing
// underneath us (deleted or permissions revoked between the event and the read).
func IsTransient(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}

// ContentIndex maps absolute file paths to content fingerprints and answers
// copy/rename detection queries. It is safe for concurrent use.
type ContentIndex struct {
	mu      sync.RWMutex
	files   map[string]Fingerprint
	content map[Fingerprint]mapset.Set[string]
}

func NewContentIndex() *ContentIndex {
	return &ContentIndex{
		files:   make(map[string]Fingerprint),
		content: make(map[Fingerprint]mapset.Set[string]),
	}
}

// Build replaces the index contents with a fingerprint of every regular file under root.
// Files that cannot be hashed are skipped. skip may be nil.
func (c *ContentIndex) Build(root string, skip FilterCallback) error {
	files := make(map[string]Fingerprint)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return fmt.Errorf("walk error: %w", walkErr)
			}
			slog.Warn("index walk skipped entry", "path", path, "error", walkErr)
			return nil
		}

		if path != root && skip != nil && skip(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		fp, err := FileFingerprint(path)
		if err != nil {
			if IsTransient(err) {
				slog.Debug("index skipped vanished file", "path", path, "error", err)
			} else {
				slog.Warn("index failed to fingerprint file", "path", path, "error", err)
			}
			return nil
		}

		files[path] = fp
		return nil
	})
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}

	content := make(map[Fingerprint]mapset.Set[string], len(files))
	for path, fp := range files {
		set, ok := content[fp]
		if !ok {
			set = mapset.NewThreadUnsafeSet[string]()
			content[fp] = set
		}
		set.Add(path)
	}

	c.mu.Lock()
	c.files = files
	c.content = content
	c.mu.Unlock()

	slog.Info("content index built", "root", root, "files", len(files), "unique", len(content))
	return nil
}

// IsNew returns true if path has no entry in the index
func (c *ContentIndex) IsNew(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.files[path]
	return !ok
}

// IsDuplicateContent hashes the current contents of path and reports whether
// another indexed path already holds the same fingerprint.
func (c *ContentIndex) IsDuplicateContent(path string) (bool, error) {
	dups, err := c.FindDuplicates(path)
	if err != nil {
		return false, err
	}
	return len(dups) > 0, nil
}

// FindDuplicates returns the indexed paths, other than path itself, whose
// fingerprint matches the current contents of path.
func (c *ContentIndex) FindDuplicates(path string) ([]string, error) {
	fp, err := FileFingerprint(path)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	set, ok := c.content[fp]
	if !ok {
		return nil, nil
	}

	dups := make([]string, 0, set.Cardinality())
	for _, p := range set.ToSlice() {
		if p != path {
			dups = append(dups, p)
		}
	}
	slices.Sort(dups)
	return dups, nil
}

// Add recomputes the fingerprint of path and stores it, overwriting any previous entry
func (c *ContentIndex) Add(path string) error {
	fp, err := FileFingerprint(path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.unlink(path)
	c.files[path] = fp
	set, ok := c.content[fp]
	if !ok {
		set = mapset.NewThreadUnsafeSet[string]()
		c.content[fp] = set
	}
	set.Add(path)
	return nil
}

// Remove deletes the entry for path. Removing an unknown path is a no-op.
func (c *ContentIndex) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unlink(path)
}

// RemoveTree deletes every entry located under dir and returns how many were dropped
func (c *ContentIndex) RemoveTree(dir string) int {
	prefix := dir + string(filepath.Separator)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for path := range c.files {
		if strings.HasPrefix(path, prefix) {
			c.unlink(path)
			removed++
		}
	}
	return removed
}

// unlink drops path from both maps. Callers must hold mu.
func (c *ContentIndex) unlink(path string) {
	fp, ok := c.files[path]
	if !ok {
		return
	}
	delete(c.files, path)

	if set, ok := c.content[fp]; ok {
		set.Remove(path)
		if set.Cardinality() == 0 {
			delete(c.content, fp)
		}
	}
}

// Get returns the stored fingerprint for path
func (c *ContentIndex) Get(path string) (Fingerprint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fp, ok := c.files[path]
	return fp, ok
}

// Len returns the number of indexed paths
func (c *ContentIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}

// Paths returns all indexed paths in sorted order
func (c *ContentIndex) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	paths := make([]string, 0, len(c.files))
	for path := range c.files {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}
