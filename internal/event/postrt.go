package event

import (
	"sync"
	"sync/atomic"
)

// PostRtEvent is a notification the audio thread queues for the idle
// thread: parameter/program changes observed in the RT path, note on/off
// activity, xruns.
type PostRtEvent struct {
	Type              int32
	Value1            int32
	Value2            int32
	Value3            int32
	ValueF            float32
	SendCallbackLater bool
}

// postRtPendingSize bounds the audio-side ring. Overflow drops the newest
// events; notifications are advisory, audio is not.
const postRtPendingSize = 512

// PostRtQueue carries notifications from the audio thread to idle.
//
// The audio thread appends into a single-producer ring without taking any
// lock. Idle splices the ring into its own list under a try-lock; when the
// try-lock fails the splice is deferred to the next tick, never blocking
// either side.
type PostRtQueue struct {
	pending [postRtPendingSize]PostRtEvent
	head    atomic.Uint32 // producer position, audio thread only
	tail    atomic.Uint32 // consumer position, idle only

	mu      sync.Mutex
	spliced []PostRtEvent
}

// AppendRT queues an event from the audio thread. Returns false when the
// ring is full and the event was dropped.
func (q *PostRtQueue) AppendRT(e PostRtEvent) bool {
	head := q.head.Load()
	if head-q.tail.Load() >= postRtPendingSize {
		return false
	}
	q.pending[head%postRtPendingSize] = e
	q.head.Store(head + 1)
	return true
}

// TrySplice moves pending events into the idle-side list. Returns false if
// the list lock was contended and the splice was deferred.
func (q *PostRtQueue) TrySplice() bool {
	if !q.mu.TryLock() {
		return false
	}
	defer q.mu.Unlock()
	head := q.head.Load()
	for tail := q.tail.Load(); tail != head; tail++ {
		q.spliced = append(q.spliced, q.pending[tail%postRtPendingSize])
	}
	q.tail.Store(head)
	return true
}

// DrainBatch splices then hands up to maxEvents spliced events to fn in
// append order. Called from idle; one batch per tick.
func (q *PostRtQueue) DrainBatch(maxEvents int, fn func(PostRtEvent)) int {
	q.TrySplice()

	q.mu.Lock()
	n := len(q.spliced)
	if maxEvents > 0 && n > maxEvents {
		n = maxEvents
	}
	batch := make([]PostRtEvent, n)
	copy(batch, q.spliced[:n])
	q.spliced = q.spliced[:copy(q.spliced, q.spliced[n:])]
	q.mu.Unlock()

	for i := range batch {
		fn(batch[i])
	}
	return n
}
