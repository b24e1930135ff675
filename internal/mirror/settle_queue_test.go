package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSettleQueue_HoldsCreatedFileUntilQuiet(t *testing.T) {
	q := newSettleQueue(100 * time.Millisecond)
	start := time.Now()

	q.push(ChangeEvent{Kind: EventCreated, Path: "/src/a.txt"}, start)
	assert.Empty(t, q.ready(start.Add(50*time.Millisecond)))

	// a write restarts the quiet period and is folded into the create
	q.push(ChangeEvent{Kind: EventModified, Path: "/src/a.txt"}, start.Add(80*time.Millisecond))
	assert.Empty(t, q.ready(start.Add(150*time.Millisecond)))

	at, ok := q.nextSettle()
	assert.True(t, ok)
	assert.Equal(t, start.Add(180*time.Millisecond), at)

	assert.Equal(t, []ChangeEvent{
		{Kind: EventCreated, Path: "/src/a.txt"},
	}, q.ready(start.Add(180*time.Millisecond)))
	assert.Equal(t, 0, q.Len())
}

func TestSettleQueue_PreservesArrivalOrder(t *testing.T) {
	q := newSettleQueue(100 * time.Millisecond)
	start := time.Now()

	q.push(ChangeEvent{Kind: EventCreated, Path: "/src/a.txt"}, start)
	q.push(ChangeEvent{Kind: EventDeleted, Path: "/src/old.txt"}, start.Add(10*time.Millisecond))
	q.push(ChangeEvent{Kind: EventCreated, Path: "/src/b.txt"}, start.Add(20*time.Millisecond))

	// nothing overtakes the held create
	assert.Empty(t, q.ready(start.Add(90*time.Millisecond)))

	assert.Equal(t, []ChangeEvent{
		{Kind: EventCreated, Path: "/src/a.txt"},
		{Kind: EventDeleted, Path: "/src/old.txt"},
	}, q.ready(start.Add(100*time.Millisecond)))

	assert.Equal(t, []ChangeEvent{
		{Kind: EventCreated, Path: "/src/b.txt"},
	}, q.ready(start.Add(120*time.Millisecond)))
}

func TestSettleQueue_DeleteReleasesHeldCreate(t *testing.T) {
	q := newSettleQueue(time.Hour)
	start := time.Now()

	q.push(ChangeEvent{Kind: EventCreated, Path: "/src/a.txt"}, start)
	q.push(ChangeEvent{Kind: EventDeleted, Path: "/src/a.txt"}, start)

	_, held := q.nextSettle()
	assert.False(t, held)
	assert.Equal(t, []ChangeEvent{
		{Kind: EventCreated, Path: "/src/a.txt"},
		{Kind: EventDeleted, Path: "/src/a.txt"},
	}, q.ready(start))
}

func TestSettleQueue_DirectoriesAreNotHeld(t *testing.T) {
	q := newSettleQueue(time.Hour)
	start := time.Now()

	q.push(ChangeEvent{Kind: EventCreated, Path: "/src/dir", IsDir: true}, start)
	q.push(ChangeEvent{Kind: EventModified, Path: "/src/dir", IsDir: true}, start)

	assert.Len(t, q.ready(start), 2)
}

func TestSettleQueue_DrainIgnoresSettleState(t *testing.T) {
	q := newSettleQueue(time.Hour)
	start := time.Now()

	q.push(ChangeEvent{Kind: EventCreated, Path: "/src/a.txt"}, start)
	q.push(ChangeEvent{Kind: EventDeleted, Path: "/src/b.txt"}, start)

	assert.Empty(t, q.ready(start))
	assert.Len(t, q.drain(), 2)
	assert.Nil(t, q.drain())
}

func TestSettleQueue_ZeroDelayDeliversImmediately(t *testing.T) {
	q := newSettleQueue(0)
	start := time.Now()

	q.push(ChangeEvent{Kind: EventCreated, Path: "/src/a.txt"}, start)
	assert.Len(t, q.ready(start), 1)
}
