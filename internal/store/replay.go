package store

import "sync"

// replayBuffer bridges the gap between registering a subscriber and
// finishing its snapshot replay. Deltas arriving during the replay are
// queued; finish flushes them in arrival order and switches to direct
// delivery.
type replayBuffer struct {
	mu        sync.Mutex
	replaying bool
	queued    [][]Change
	fn        func([]Change)
}

func newReplayBuffer(fn func([]Change)) *replayBuffer {
	return &replayBuffer{replaying: true, fn: fn}
}

// deliver forwards a change batch, queueing it while the replay is
// still in flight.
func (b *replayBuffer) deliver(changes []Change) {
	b.mu.Lock()
	if b.replaying {
		b.queued = append(b.queued, changes)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	b.fn(changes)
}

// finish flushes the queued batches and switches to direct delivery.
// The flush runs under the lock so a concurrent delta cannot jump
// ahead of the queued ones.
func (b *replayBuffer) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, changes := range b.queued {
		b.fn(changes)
	}
	b.queued = nil
	b.replaying = false
}
