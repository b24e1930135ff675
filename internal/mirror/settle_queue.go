package mirror

import "time"

// DefaultCreateSettleDelay is how long a new file must go without writes before it is classified
const DefaultCreateSettleDelay = 100 * time.Millisecond

type heldEvent struct {
	ev ChangeEvent
	// zero once the event may be delivered
	settleAt time.Time
}

// settleQueue keeps events in arrival order. A created file holds the head of
// the queue until its writes have been quiet for delay, so it is hashed with
// its final content and nothing behind it overtakes it.
type settleQueue struct {
	delay  time.Duration
	events []heldEvent
}

func newSettleQueue(delay time.Duration) *settleQueue {
	return &settleQueue{delay: delay}
}

func (q *settleQueue) push(ev ChangeEvent, now time.Time) {
	if i := q.lastFor(ev.Path); i >= 0 && !q.events[i].settleAt.IsZero() {
		if !ev.IsDir && (ev.Kind == EventModified || ev.Kind == EventCreated) {
			// the held create is classified with whatever this write produced
			q.events[i].settleAt = now.Add(q.delay)
			return
		}
		q.events[i].settleAt = time.Time{}
	}

	held := heldEvent{ev: ev}
	if ev.Kind == EventCreated && !ev.IsDir {
		held.settleAt = now.Add(q.delay)
	}
	q.events = append(q.events, held)
}

func (q *settleQueue) lastFor(path string) int {
	for i := len(q.events) - 1; i >= 0; i-- {
		if q.events[i].ev.Path == path {
			return i
		}
	}
	return -1
}

// ready pops the events at the head of the queue that may be delivered at now
func (q *settleQueue) ready(now time.Time) []ChangeEvent {
	n := 0
	for n < len(q.events) {
		at := q.events[n].settleAt
		if !at.IsZero() && now.Before(at) {
			break
		}
		n++
	}
	return q.pop(n)
}

// drain pops everything regardless of settle state
func (q *settleQueue) drain() []ChangeEvent {
	return q.pop(len(q.events))
}

func (q *settleQueue) pop(n int) []ChangeEvent {
	if n == 0 {
		return nil
	}
	out := make([]ChangeEvent, n)
	for i := range n {
		out[i] = q.events[i].ev
	}
	q.events = append(q.events[:0], q.events[n:]...)
	return out
}

// nextSettle returns when the held head of the queue becomes deliverable
func (q *settleQueue) nextSettle() (time.Time, bool) {
	if len(q.events) == 0 || q.events[0].settleAt.IsZero() {
		return time.Time{}, false
	}
	return q.events[0].settleAt, true
}

func (q *settleQueue) Len() int {
	return len(q.events)
}
