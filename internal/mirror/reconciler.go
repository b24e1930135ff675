package mirror

import (
	"log/slog"
)

// Reconciler applies change events to the content index and records the audit trail.
// Classification only feeds the audit log; replica correctness comes from the mirror pass.
type Reconciler struct {
	index  *ContentIndex
	audit  *AuditLog
	status *SyncStatus
}

func NewReconciler(index *ContentIndex, audit *AuditLog, status *SyncStatus) *Reconciler {
	if status == nil {
		status = NewSyncStatus()
	}
	return &Reconciler{
		index:  index,
		audit:  audit,
		status: status,
	}
}

// Handle processes a single event. It never fails: vanished or unreadable
// files drop the event and the next mirror pass repairs the replica.
func (r *Reconciler) Handle(ev ChangeEvent) {
	switch ev.Kind {
	case EventCreated:
		if ev.IsDir {
			return
		}
		r.handleCreated(ev)
	case EventModified:
		if ev.IsDir {
			return
		}
		r.handleModified(ev)
	case EventDeleted:
		r.handleDeleted(ev)
	default:
		slog.Debug("reconciler unhandled event", "event", ev)
	}
}

func (r *Reconciler) handleCreated(ev ChangeEvent) {
	// classify against the index before the path itself is added
	dups, err := r.index.FindDuplicates(ev.Path)
	if err != nil {
		r.drop(ev, err)
		return
	}

	action := ActionCreated
	if len(dups) > 0 {
		action = ActionCopied
		slog.Debug("reconciler duplicate content", "path", ev.Path, "matches", dups)
	}

	if err := r.index.Add(ev.Path); err != nil {
		r.drop(ev, err)
		return
	}

	r.record(action, ev)
	r.status.EventHandled()
}

func (r *Reconciler) handleModified(ev ChangeEvent) {
	if err := r.index.Add(ev.Path); err != nil {
		r.drop(ev, err)
		return
	}
	r.status.EventHandled()
}

func (r *Reconciler) handleDeleted(ev ChangeEvent) {
	r.index.Remove(ev.Path)
	if ev.IsDir {
		if n := r.index.RemoveTree(ev.Path); n > 0 {
			slog.Debug("reconciler dropped entries under deleted directory", "path", ev.Path, "count", n)
		}
	}
	r.record(ActionDeleted, ev)
	r.status.EventHandled()
}

func (r *Reconciler) record(action AuditAction, ev ChangeEvent) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(action, ev); err != nil {
		slog.Error("reconciler failed to write audit log", "path", ev.Path, "error", err)
	}
}

func (r *Reconciler) drop(ev ChangeEvent, err error) {
	r.status.EventDropped()
	if IsTransient(err) {
		slog.Debug("reconciler dropped event", "event", ev, "error", err)
		return
	}
	slog.Warn("reconciler dropped event", "event", ev, "error", err)
}
