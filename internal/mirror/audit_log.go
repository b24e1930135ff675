package mirror

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// AuditAction is the verb written at the start of every audit line
type AuditAction string

const (
	ActionCreated AuditAction = "Created"
	ActionCopied  AuditAction = "Copied"
	ActionDeleted AuditAction = "Deleted"
)

var ErrAuditLogClosed = errors.New("audit log closed")

// AuditLog appends one line per classified change, "<Action>: <file|directory> <path>",
// to a file handle kept open for the whole session and mirrors it to a second writer.
type AuditLog struct {
	mu     sync.Mutex
	file   *os.File
	out    io.Writer
	closed bool
}

// OpenAuditLog opens path for appending. mirror may be nil to skip the console copy.
func OpenAuditLog(path string, mirror io.Writer) (*AuditLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}

	out := io.Writer(file)
	if mirror != nil {
		out = io.MultiWriter(file, mirror)
	}

	return &AuditLog{file: file, out: out}, nil
}

// NewAuditLog writes audit lines to w only
func NewAuditLog(w io.Writer) *AuditLog {
	return &AuditLog{out: w}
}

func (a *AuditLog) Record(action AuditAction, ev ChangeEvent) error {
	line := fmt.Sprintf("%s: %s %s\n", action, ev.Subject(), ev.Path)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAuditLogClosed
	}
	_, err := io.WriteString(a.out, line)
	return err
}

// Close flushes and releases the underlying file. Calling Close twice is a no-op.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if a.file == nil {
		return nil
	}
	if err := a.file.Sync(); err != nil {
		a.file.Close()
		return fmt.Errorf("sync audit log: %w", err)
	}
	return a.file.Close()
}
