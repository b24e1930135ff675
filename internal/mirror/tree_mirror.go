package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openmined/syftmirror/internal/utils"
	"golang.org/x/sync/errgroup"
)

const defaultMirrorWorkers = 8

var ErrNotDirectory = errors.New("not a directory")

// MirrorOptions controls a tree pass
type MirrorOptions struct {
	// Purge deletes replica entries that have no counterpart in the source
	Purge bool
	// Force copies every file without comparing against the replica
	Force bool
	// Workers bounds the number of concurrent file copies
	Workers int
	// Cache holds source fingerprints across passes, may be nil
	Cache *FingerprintCache
}

// MirrorStats summarises the work done by a tree pass
type MirrorStats struct {
	FilesCopied  int
	FilesFailed  int
	Unchanged    int
	DirsCreated  int
	LinksCreated int
	Deleted      int
	BytesCopied  int64
	Duration     time.Duration
}

func (s *MirrorStats) HasChanges() bool {
	return s.FilesCopied > 0 || s.DirsCreated > 0 || s.LinksCreated > 0 || s.Deleted > 0
}

// ResyncFunc makes dst match src
type ResyncFunc func(ctx context.Context, src, dst string) (*MirrorStats, error)

// CopyTree copies every entry of src into dst, creating dst if needed.
// Existing replica content that does not collide with the source is left alone.
func CopyTree(ctx context.Context, src, dst string) (*MirrorStats, error) {
	return syncTree(ctx, src, dst, MirrorOptions{Force: true})
}

// MirrorTree makes dst structurally and bytewise identical to src,
// copying new or changed files and deleting entries absent from src.
func MirrorTree(ctx context.Context, src, dst string, opts MirrorOptions) (*MirrorStats, error) {
	opts.Purge = true
	return syncTree(ctx, src, dst, opts)
}

type treeSync struct {
	src  string
	dst  string
	opts MirrorOptions
	// seen holds source-relative paths; written only by the walking goroutine
	seen    map[string]struct{}
	statsMu sync.Mutex
	stats   MirrorStats
}

func syncTree(ctx context.Context, src, dst string, opts MirrorOptions) (*MirrorStats, error) {
	tStart := time.Now()

	srcInfo, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src, err)
	}
	if !srcInfo.IsDir() {
		return nil, fmt.Errorf("source %s: %w", src, ErrNotDirectory)
	}

	if err := utils.EnsureDir(dst); err != nil {
		return nil, fmt.Errorf("replica: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultMirrorWorkers
	}

	ts := &treeSync{
		src:  src,
		dst:  dst,
		opts: opts,
		seen: make(map[string]struct{}),
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := egCtx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == src {
				return err
			}
			if !IsTransient(err) {
				slog.Warn("mirror walk skipped entry", "path", path, "error", err)
			}
			return nil
		}

		if path == src {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		ts.seen[rel] = struct{}{}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return ts.syncDir(path, target, d)
		case d.Type()&fs.ModeSymlink != 0:
			ts.syncLink(path, target)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				slog.Debug("mirror skipped vanished file", "path", path, "error", err)
				return nil
			}
			eg.Go(func() error {
				ts.syncFile(path, target, info)
				return nil
			})
		default:
			slog.Debug("mirror skipped special file", "path", path, "mode", d.Type())
		}
		return nil
	})

	// let in-flight copies finish before reporting or purging
	_ = eg.Wait()

	if walkErr != nil {
		return ts.result(tStart), fmt.Errorf("mirror walk: %w", walkErr)
	}

	if opts.Purge {
		if err := ts.purge(ctx); err != nil {
			return ts.result(tStart), fmt.Errorf("mirror purge: %w", err)
		}
	}

	return ts.result(tStart), nil
}

func (ts *treeSync) update(fn func(s *MirrorStats)) {
	ts.statsMu.Lock()
	defer ts.statsMu.Unlock()
	fn(&ts.stats)
}

func (ts *treeSync) result(tStart time.Time) *MirrorStats {
	ts.statsMu.Lock()
	defer ts.statsMu.Unlock()
	stats := ts.stats
	stats.Duration = time.Since(tStart)
	return &stats
}

func (ts *treeSync) syncDir(path, target string, d fs.DirEntry) error {
	existing, err := os.Lstat(target)
	if err == nil && existing.IsDir() {
		return nil
	}

	if err == nil {
		// a file or link sits where the directory belongs
		if err := os.RemoveAll(target); err != nil {
			slog.Warn("mirror failed to replace entry with directory", "path", target, "error", err)
			return filepath.SkipDir
		}
		ts.update(func(s *MirrorStats) { s.Deleted++ })
	}

	info, _ := d.Info()
	if err := os.MkdirAll(target, dirPerm(info)); err != nil {
		slog.Warn("mirror failed to create directory", "path", target, "error", err)
		return filepath.SkipDir
	}
	ts.update(func(s *MirrorStats) { s.DirsCreated++ })
	return nil
}

func (ts *treeSync) syncLink(path, target string) {
	linkDest, err := os.Readlink(path)
	if err != nil {
		slog.Debug("mirror skipped unreadable link", "path", path, "error", err)
		return
	}

	if existing, err := os.Lstat(target); err == nil {
		if existing.Mode()&fs.ModeSymlink != 0 {
			if current, err := os.Readlink(target); err == nil && current == linkDest {
				ts.update(func(s *MirrorStats) { s.Unchanged++ })
				return
			}
		}
		if err := os.RemoveAll(target); err != nil {
			slog.Warn("mirror failed to replace link", "path", target, "error", err)
			ts.update(func(s *MirrorStats) { s.FilesFailed++ })
			return
		}
	}

	if err := os.Symlink(linkDest, target); err != nil {
		slog.Warn("mirror failed to create link", "path", target, "error", err)
		ts.update(func(s *MirrorStats) { s.FilesFailed++ })
		return
	}
	ts.update(func(s *MirrorStats) { s.LinksCreated++ })
}

func (ts *treeSync) syncFile(path, target string, info fs.FileInfo) {
	if !ts.needsCopy(path, target, info) {
		ts.update(func(s *MirrorStats) { s.Unchanged++ })
		return
	}

	n, err := copyFile(path, target, info)
	if err != nil {
		if IsTransient(err) {
			slog.Debug("mirror skipped file", "path", path, "error", err)
		} else {
			slog.Warn("mirror failed to copy file", "path", path, "error", err)
		}
		ts.update(func(s *MirrorStats) { s.FilesFailed++ })
		return
	}

	ts.update(func(s *MirrorStats) {
		s.FilesCopied++
		s.BytesCopied += n
	})
}

// needsCopy compares by size, then mtime, then content fingerprint
func (ts *treeSync) needsCopy(path, target string, info fs.FileInfo) bool {
	existing, err := os.Lstat(target)
	if err != nil || !existing.Mode().IsRegular() {
		return true
	}

	if ts.opts.Force {
		return true
	}

	if existing.Size() != info.Size() {
		return true
	}

	if existing.ModTime().Equal(info.ModTime()) {
		return false
	}

	srcFp, err := ts.opts.Cache.Fingerprint(path, info)
	if err != nil {
		return true
	}
	dstFp, err := FileFingerprint(target)
	if err != nil || srcFp != dstFp {
		return true
	}

	// same bytes; align mtime so the next pass takes the fast path
	if err := os.Chtimes(target, info.ModTime(), info.ModTime()); err != nil {
		slog.Debug("mirror failed to align mtime", "path", target, "error", err)
	}
	return false
}

// purge removes replica entries that were not seen in the source walk
func (ts *treeSync) purge(ctx context.Context) error {
	return filepath.WalkDir(ts.dst, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == ts.dst {
				return err
			}
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("mirror purge skipped entry", "path", path, "error", err)
			}
			return nil
		}

		if path == ts.dst {
			return nil
		}

		rel, err := filepath.Rel(ts.dst, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		if _, ok := ts.seen[rel]; ok {
			return nil
		}

		if err := os.RemoveAll(path); err != nil {
			slog.Warn("mirror failed to delete extraneous entry", "path", path, "error", err)
			ts.update(func(s *MirrorStats) { s.FilesFailed++ })
			return nil
		}
		ts.update(func(s *MirrorStats) { s.Deleted++ })

		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
}
