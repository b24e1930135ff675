package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rjeczalik/notify"
)

const (
	// notify drops events when the channel is full; the mirror pass covers the gap
	eventBufferSize = 1024
	watchedEvents   = notify.Create | notify.Remove | notify.Write | notify.Rename
	// a removed directory can be reported again by its own watch after other events
	removedDirsSize = 256
)

// EventHandler receives normalized events one at a time, in delivery order
type EventHandler func(ChangeEvent)

// FileWatcher adapts recursive notify events under watchDir into ChangeEvents
// and hands them to a single handler synchronously.
type FileWatcher struct {
	watchDir  string
	handler   EventHandler
	rawEvents chan notify.EventInfo
	knownDirs mapset.Set[string]
	// value is whether the removal has been delivered
	removedDirs *lru.Cache[string, bool]
	settleDelay time.Duration
	done        chan struct{}
	wg          sync.WaitGroup
	stopOnce    sync.Once
	// Raw event filtering
	ignoreCallback FilterCallback
	callbackMu     sync.RWMutex
}

func NewFileWatcher(watchDir string, handler EventHandler) *FileWatcher {
	// lru.New only fails for a non-positive size
	removedDirs, _ := lru.New[string, bool](removedDirsSize)
	return &FileWatcher{
		watchDir:    watchDir,
		handler:     handler,
		knownDirs:   mapset.NewSet[string](),
		removedDirs: removedDirs,
		settleDelay: DefaultCreateSettleDelay,
		done:        make(chan struct{}),
	}
}

// SetSettleDelay changes how long a created file must be quiet before delivery.
// It must be called before Start.
func (fw *FileWatcher) SetSettleDelay(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	fw.settleDelay = delay
}

// FilterPaths sets a callback function to filter out raw events before delivery
// The callback should return true if the event should be ignored
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.callbackMu.Lock()
	defer fw.callbackMu.Unlock()
	fw.ignoreCallback = callback
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.watchDir)

	if err := fw.seedKnownDirs(); err != nil {
		return fmt.Errorf("scan watch dir: %w", err)
	}

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)

	recursivePath := filepath.Join(fw.watchDir, "...")
	if err := notify.Watch(recursivePath, fw.rawEvents, watchedEvents); err != nil {
		return fmt.Errorf("watch %s: %w", fw.watchDir, err)
	}

	fw.wg.Add(1)
	go fw.deliverEvents(ctx)

	return nil
}

func (fw *FileWatcher) Stop() {
	fw.stopOnce.Do(func() {
		slog.Info("file watcher stopping")

		close(fw.done)

		if fw.rawEvents != nil {
			notify.Stop(fw.rawEvents)
		}

		fw.wg.Wait()

		slog.Info("file watcher stopped")
	})
}

// deliverEvents normalizes raw events and invokes the handler for each in
// arrival order. Created files are held until their writes settle.
func (fw *FileWatcher) deliverEvents(ctx context.Context) {
	defer func() {
		slog.Debug("file watcher deliver events done")
		fw.wg.Done()
	}()

	queue := newSettleQueue(fw.settleDelay)
	timer := time.NewTimer(fw.settleDelay)
	timer.Stop()
	defer timer.Stop()

	var settled <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			fw.deliver(queue.drain())
			return
		case <-fw.done:
			fw.deliver(queue.drain())
			return
		case <-settled:
		case raw, ok := <-fw.rawEvents:
			if !ok {
				fw.deliver(queue.drain())
				return
			}
			if ev, ok := fw.normalize(raw); ok {
				queue.push(ev, time.Now())
			}
		}

		fw.deliver(queue.ready(time.Now()))

		settled = nil
		if at, ok := queue.nextSettle(); ok {
			timer.Reset(time.Until(at))
			settled = timer.C
		}
	}
}

func (fw *FileWatcher) deliver(events []ChangeEvent) {
	for _, ev := range events {
		slog.Debug("file watcher", "event", ev.Kind, "dir", ev.IsDir, "path", ev.Path)
		fw.handler(ev)
	}
}

func (fw *FileWatcher) normalize(raw notify.EventInfo) (ChangeEvent, bool) {
	path := raw.Path()
	if path == fw.watchDir {
		return ChangeEvent{}, false
	}

	fw.callbackMu.RLock()
	ignore := fw.ignoreCallback
	fw.callbackMu.RUnlock()
	if ignore != nil && ignore(path) {
		return ChangeEvent{}, false
	}

	switch raw.Event() {
	case notify.Create:
		return fw.present(EventCreated, path), true
	case notify.Write:
		return fw.present(EventModified, path), true
	case notify.Remove:
		return fw.vanished(path)
	case notify.Rename:
		// both halves of a move arrive as Rename; the path tells which side we are on
		if _, err := os.Lstat(path); err == nil {
			return fw.present(EventCreated, path), true
		}
		return fw.vanished(path)
	default:
		return ChangeEvent{}, false
	}
}

func (fw *FileWatcher) present(kind EventKind, path string) ChangeEvent {
	var isDir bool
	if info, err := os.Lstat(path); err == nil {
		isDir = info.IsDir()
		// the path exists again, so a later removal is a new one
		fw.removedDirs.Remove(path)
	} else {
		isDir = fw.knownDirs.Contains(path)
	}
	if isDir {
		fw.knownDirs.Add(path)
	}
	return ChangeEvent{Kind: kind, Path: path, IsDir: isDir}
}

// vanished classifies a removal. A directory is reported by its parent and by
// its own watch, possibly with other events in between; only the first report
// is delivered.
func (fw *FileWatcher) vanished(path string) (ChangeEvent, bool) {
	if fw.knownDirs.Contains(path) {
		fw.forgetDir(path)
		fw.removedDirs.Add(path, true)
		return ChangeEvent{Kind: EventDeleted, Path: path, IsDir: true}, true
	}
	if delivered, ok := fw.removedDirs.Get(path); ok {
		if delivered {
			return ChangeEvent{}, false
		}
		// removed along with its parent but not reported yet
		fw.removedDirs.Add(path, true)
		return ChangeEvent{Kind: EventDeleted, Path: path, IsDir: true}, true
	}
	return ChangeEvent{Kind: EventDeleted, Path: path}, true
}

func (fw *FileWatcher) forgetDir(dir string) {
	prefix := dir + string(filepath.Separator)
	fw.knownDirs.Remove(dir)
	for _, known := range fw.knownDirs.ToSlice() {
		if strings.HasPrefix(known, prefix) {
			fw.knownDirs.Remove(known)
			fw.removedDirs.Add(known, false)
		}
	}
}

// seedKnownDirs records existing directories so later deletes can be classified
func (fw *FileWatcher) seedKnownDirs() error {
	return filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == fw.watchDir {
				return err
			}
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("file watcher skipped entry", "path", path, "error", err)
			}
			return nil
		}
		if d.IsDir() && path != fw.watchDir {
			fw.knownDirs.Add(path)
		}
		return nil
	})
}
