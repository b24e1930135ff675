package mirror

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// StatusSnapshot is a point-in-time copy of the session counters
type StatusSnapshot struct {
	EventsHandled  uint64
	EventsDropped  uint64
	Resyncs        uint64
	ResyncFailures uint64
	LastResync     time.Time
	LastStats      MirrorStats
}

func (s StatusSnapshot) String() string {
	return fmt.Sprintf("EventsHandled: %d, EventsDropped: %d, Resyncs: %d, ResyncFailures: %d, LastResync: %s",
		s.EventsHandled, s.EventsDropped, s.Resyncs, s.ResyncFailures, s.LastResync.Format(time.RFC3339))
}

// SyncStatus tracks event and resync counters for a session
type SyncStatus struct {
	eventsHandled  atomic.Uint64
	eventsDropped  atomic.Uint64
	resyncs        atomic.Uint64
	resyncFailures atomic.Uint64

	mu         sync.RWMutex
	lastResync time.Time
	lastStats  MirrorStats
}

func NewSyncStatus() *SyncStatus {
	return &SyncStatus{}
}

func (s *SyncStatus) EventHandled() {
	s.eventsHandled.Add(1)
}

func (s *SyncStatus) EventDropped() {
	s.eventsDropped.Add(1)
}

// ResyncDone records the outcome of a mirror pass. stats may be nil on failure.
func (s *SyncStatus) ResyncDone(stats *MirrorStats, err error) {
	s.resyncs.Add(1)
	if err != nil {
		s.resyncFailures.Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResync = time.Now()
	if stats != nil {
		s.lastStats = *stats
	}
}

func (s *SyncStatus) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StatusSnapshot{
		EventsHandled:  s.eventsHandled.Load(),
		EventsDropped:  s.eventsDropped.Load(),
		Resyncs:        s.resyncs.Load(),
		ResyncFailures: s.resyncFailures.Load(),
		LastResync:     s.lastResync,
		LastStats:      s.lastStats,
	}
}
