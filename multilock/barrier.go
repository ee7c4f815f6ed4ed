package multilock

import (
	"sync"
	"sync/atomic"
)

// barrier is a Group's one-shot activation gate. Participants block on wait
// until the group is signaled active (or the owning MultiLock is closed
// while they wait). Closing a channel is Go's idiomatic one-shot broadcast
// for "wake every current and future waiter exactly once", which is what
// activation needs here; the teacher's primitives use atomics and
// Gosched spins for mutual exclusion, but that shape doesn't fit a
// fan-out wakeup of arbitrarily many waiters.
type barrier struct {
	ch     chan struct{}
	once   sync.Once
	closed atomic.Bool
}

func newBarrier() *barrier {
	return &barrier{ch: make(chan struct{})}
}

// activate signals the barrier as the group becoming the active head.
// Idempotent: a group can only be activated once per activation cycle, but
// callers are not required to track that themselves.
func (b *barrier) activate() {
	b.once.Do(func() { close(b.ch) })
}

// closeForDestruction signals the barrier with the sticky closed flag set,
// used when the owning MultiLock is torn down while a group still has
// waiters. Idempotent with activate: whichever happens first wins the
// close of the underlying channel, but the closed flag is always set.
func (b *barrier) closeForDestruction() {
	b.closed.Store(true)
	b.once.Do(func() { close(b.ch) })
}

// wait blocks until the barrier is signaled and reports whether the signal
// was a destruction closure rather than a normal activation.
func (b *barrier) wait() (destroyed bool) {
	<-b.ch
	return b.closed.Load()
}
