package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/syftmirror/internal/utils"
)

const lockFilePrefix = "syftmirror-"

var (
	ErrWorkspaceLocked = errors.New("replica locked by another process")
)

// Workspace holds the canonical paths of one mirror session and guards the
// replica against a second mirror process writing into it.
type Workspace struct {
	Source  string
	Replica string
	LogPath string

	flock *flock.Flock
}

func NewWorkspace(source, replica, logPath string) (*Workspace, error) {
	src, err := utils.CanonicalPath(source)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", source, err)
	}

	dst, err := utils.CanonicalPath(replica)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", replica, err)
	}

	logFile, err := utils.CanonicalPath(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", logPath, err)
	}

	return &Workspace{
		Source:  src,
		Replica: dst,
		LogPath: logFile,
		flock:   flock.New(LockFilePath(dst)),
	}, nil
}

// LockFilePath returns the lock file used for a replica. It lives outside the
// replica so the mirror pass never purges it.
func LockFilePath(replica string) string {
	sum := sha256.Sum256([]byte(replica))
	return filepath.Join(os.TempDir(), lockFilePrefix+hex.EncodeToString(sum[:8])+".lock")
}

func (w *Workspace) Lock() error {
	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock replica: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	slog.Debug("workspace locked", "replica", w.Replica, "lock", w.flock.Path())
	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the replica, then don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock replica: %w", err)
	}

	return os.Remove(w.flock.Path())
}
