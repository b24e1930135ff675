package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/syftmirror/internal/workspace"
)

var (
	ErrStartup              = errors.New("mirror session failed to start")
	ErrResyncAlreadyRunning = errors.New("resync already running")
	ErrInvalidInterval      = errors.New("interval must be positive")
)

// SessionOption configures a Session
type SessionOption func(*Session)

// WithConsole sets where audit lines are mirrored, os.Stdout by default
func WithConsole(w io.Writer) SessionOption {
	return func(s *Session) {
		s.console = w
	}
}

// WithResyncFunc replaces the periodic full-tree pass
func WithResyncFunc(fn ResyncFunc) SessionOption {
	return func(s *Session) {
		s.resync = fn
	}
}

// WithWorkers bounds the number of concurrent copies during a mirror pass
func WithWorkers(n int) SessionOption {
	return func(s *Session) {
		s.workers = n
	}
}

// WithExcludes leaves paths matching the doublestar globs out of change classification
func WithExcludes(patterns ...string) SessionOption {
	return func(s *Session) {
		s.excludes = append(s.excludes, patterns...)
	}
}

// Session owns one source→replica mirror: the seed copy, the content index,
// the change notifier and the periodic resync loop.
type Session struct {
	ws       *workspace.Workspace
	interval time.Duration
	console  io.Writer
	workers  int
	excludes []string

	index      *ContentIndex
	ignore     *IgnoreList
	cache      *FingerprintCache
	status     *SyncStatus
	audit      *AuditLog
	reconciler *Reconciler
	watcher    *FileWatcher
	resync     ResyncFunc

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	muResync sync.Mutex
	stopOnce sync.Once
	stopErr  error
}

func NewSession(ws *workspace.Workspace, interval time.Duration, opts ...SessionOption) (*Session, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	cache, err := NewFingerprintCache(DefaultFingerprintCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ws:       ws,
		interval: interval,
		console:  os.Stdout,
		index:    NewContentIndex(),
		ignore:   NewIgnoreList(ws.Source),
		cache:    cache,
		status:   NewSyncStatus(),
	}
	s.resync = s.mirrorPass

	for _, opt := range opts {
		opt(s)
	}

	if err := s.ignore.AddExcludes(s.excludes...); err != nil {
		return nil, err
	}

	return s, nil
}

// Run starts the session and blocks until ctx is cancelled, then tears it down
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("mirror session interrupted, shutting down")
	return s.Stop()
}

// Start performs the seed copy, indexes the source, starts the notifier and
// the periodic resync loop. It returns once everything is running.
func (s *Session) Start(ctx context.Context) error {
	slog.Info("mirror session start", "source", s.ws.Source, "replica", s.ws.Replica, "interval", s.interval)

	audit, err := OpenAuditLog(s.ws.LogPath, s.console)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}
	s.audit = audit

	s.ignore.Load()

	// seed the replica before anything else touches it
	stats, err := CopyTree(ctx, s.ws.Source, s.ws.Replica)
	if err != nil {
		s.audit.Close()
		return fmt.Errorf("%w: initial copy: %w", ErrStartup, err)
	}
	logStats("initial copy", stats)

	if err := s.index.Build(s.ws.Source, s.ignore.ShouldIgnore); err != nil {
		s.audit.Close()
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.reconciler = NewReconciler(s.index, s.audit, s.status)
	s.watcher = NewFileWatcher(s.ws.Source, s.reconciler.Handle)
	s.watcher.FilterPaths(s.ignore.ShouldIgnore)
	if err := s.watcher.Start(ctx); err != nil {
		cancel()
		s.audit.Close()
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.resyncLoop(ctx)
	}()

	return nil
}

// Stop halts the notifier and the resync loop, then closes the audit log
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		slog.Info("mirror session stop")

		if s.cancel != nil {
			s.cancel()
		}
		if s.watcher != nil {
			s.watcher.Stop()
		}
		s.wg.Wait()

		if s.audit != nil {
			s.stopErr = s.audit.Close()
		}

		slog.Info("mirror session stopped", "status", s.status.Snapshot())
	})
	return s.stopErr
}

func (s *Session) resyncLoop(ctx context.Context) {
	// using a timer and not a ticker to avoid queued ticks when
	// a pass takes longer than the interval to complete
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			err := s.RunResync(ctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrResyncAlreadyRunning) {
				slog.Error("mirror resync failed", "error", err)
			}
			timer.Reset(s.interval)
		}
	}
}

// RunResync runs one full mirror pass now. Overlapping passes are rejected.
func (s *Session) RunResync(ctx context.Context) error {
	if !s.muResync.TryLock() {
		return ErrResyncAlreadyRunning
	}
	defer s.muResync.Unlock()

	stats, err := s.resync(ctx, s.ws.Source, s.ws.Replica)
	s.status.ResyncDone(stats, err)
	if err != nil {
		return err
	}

	logStats("resync", stats)
	return nil
}

// RunOnce mirrors the source into the replica a single time without watching
func (s *Session) RunOnce(ctx context.Context) error {
	slog.Info("mirror once", "source", s.ws.Source, "replica", s.ws.Replica)
	return s.RunResync(ctx)
}

func (s *Session) mirrorPass(ctx context.Context, src, dst string) (*MirrorStats, error) {
	return MirrorTree(ctx, src, dst, MirrorOptions{
		Workers: s.workers,
		Cache:   s.cache,
	})
}

// Index exposes the content index for inspection
func (s *Session) Index() *ContentIndex {
	return s.index
}

func (s *Session) Status() StatusSnapshot {
	return s.status.Snapshot()
}

func logStats(what string, stats *MirrorStats) {
	if stats == nil {
		return
	}

	attrs := []any{
		"copied", stats.FilesCopied,
		"bytes", humanize.Bytes(uint64(stats.BytesCopied)),
		"dirs", stats.DirsCreated,
		"links", stats.LinksCreated,
		"deleted", stats.Deleted,
		"unchanged", stats.Unchanged,
		"failed", stats.FilesFailed,
		"took", stats.Duration,
	}

	if stats.HasChanges() || stats.FilesFailed > 0 {
		slog.Info(what, attrs...)
	} else {
		slog.Debug(what, attrs...)
	}
}
