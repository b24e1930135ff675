package mirror

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openmined/syftmirror/internal/utils"
)

// copyFile replicates src at dst through a temp file in the destination directory
// so readers of the replica never observe a partially written file.
// The source mode bits and mtime are carried over.
func copyFile(src, dst string, info fs.FileInfo) (int64, error) {
	if err := utils.EnsureParent(dst); err != nil {
		return 0, fmt.Errorf("ensure parent: %w", err)
	}

	// a directory or link in the way of a regular file is replaced
	if existing, err := os.Lstat(dst); err == nil && !existing.Mode().IsRegular() {
		if err := os.RemoveAll(dst); err != nil {
			return 0, fmt.Errorf("remove %s: %w", dst, err)
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tempFile, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".mirror.tmp.*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false

	// Cleanup temp file only on failure
	defer func() {
		if !success {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	buf := make([]byte, fingerprintChunkSize)
	n, err := io.CopyBuffer(tempFile, in, buf)
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", src, err)
	}

	if err := tempFile.Sync(); err != nil {
		return n, fmt.Errorf("sync temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tempPath, info.Mode().Perm()); err != nil {
		return n, fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tempPath, dst); err != nil {
		return n, fmt.Errorf("rename temp file to %s: %w", dst, err)
	}
	success = true

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return n, fmt.Errorf("set mtime on %s: %w", dst, err)
	}

	return n, nil
}

// dirPerm returns the permission bits for a replica directory, keeping it writable for the owner
func dirPerm(info fs.FileInfo) fs.FileMode {
	if info == nil {
		return 0o755
	}
	return info.Mode().Perm() | 0o700
}
