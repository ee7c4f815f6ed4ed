package multilock

import (
	"fmt"
	"sync"
	"time"

	"github.com/Kubiyak/bloomfilter-lock/metrics"
	"github.com/Kubiyak/bloomfilter-lock/spinlock"
	"github.com/google/uuid"
)

// MultiLock is a multi-resource reader/writer lock. Callers describe an
// intended access set (single Key or arbitrary reads+writes) and are
// merged into a shared admission Group whenever their intention is
// provably compatible with everything already admitted; incompatible
// requests are sequenced FIFO behind the groups that precede them. See
// SPEC_FULL.md for the full admission algorithm.
//
// A MultiLock must not be acquired twice by the same goroutine without an
// intervening Unlock; doing so panics (§7).
type MultiLock struct {
	id uuid.UUID

	mu    spinlock.Locker
	q     *queue
	pool  *pool
	guard *guard

	hashCount      int
	participantCap int
	writeCap       int
	recorder       metrics.Recorder

	closing bool
}

// New constructs a ready-to-use MultiLock with default parameters: a
// blocking sync.Mutex critical section, fingerprint.HashCount hash
// positions per Key, a participant cap and write cap of 8, and a no-op
// metrics recorder.
func New(opts ...Option) *MultiLock {
	m := &MultiLock{
		id:             uuid.New(),
		q:              newQueue(),
		pool:           newPool(),
		guard:          newGuard(),
		hashCount:      defaultHashCount(),
		participantCap: defaultParticipantCap,
		writeCap:       defaultWriteCap,
		recorder:       metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.mu == nil {
		m.mu = &sync.Mutex{}
	}
	return m
}

// ReadLock acquires read access to a single Key.
func (m *MultiLock) ReadLock(id Key) error {
	return m.acquire(readIntention(m.hashCount, id), nil)
}

// WriteLock acquires write access to a single Key.
func (m *MultiLock) WriteLock(id Key) error {
	return m.acquire(writeIntention(m.hashCount, id), nil)
}

// Multilock acquires combined read and write access to arbitrary sets of
// Keys in a single request. Named Multilock rather than MultiLock (the
// method can't shadow the type) to keep the exported API Go-idiomatic.
func (m *MultiLock) Multilock(reads, writes []Key) error {
	if len(reads) == 0 && len(writes) == 0 {
		return ErrEmptyRequest
	}
	return m.acquire(newIntention(m.hashCount, reads, writes), nil)
}

// GlobalReadLock joins the shared "all readers" class: compatible with any
// other global reader and with any request that carries no writes (such as
// a plain ReadLock), and with nothing else.
func (m *MultiLock) GlobalReadLock() error {
	return m.acquire(intention{}, (*group).globalRead)
}

// GlobalWriteLock acquires exclusive access to the entire MultiLock,
// blocking every other admission until released.
func (m *MultiLock) GlobalWriteLock() error {
	return m.acquireExclusive()
}

// acquire implements the three-way admission decision of spec.md §4.3 for
// every operation except GlobalWriteLock: try head-merge; for global
// reads only, try tail-merge; otherwise allocate a fresh tail group.
// globalOp, when non-nil, selects the global_read merge rule instead of
// the ordinary intention-based merge rule (used by GlobalReadLock; for
// everything else i carries the request).
func (m *MultiLock) acquire(i intention, globalOp func(*group) bool) error {
	gid := m.guard.checkReentrance(m)

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return ErrClosed
	}

	head := m.q.front()
	headWasIdle := head.kind == kindNone
	var merged bool
	if globalOp != nil {
		merged = globalOp(head)
	} else {
		merged = head.mergeRequest(i, m.participantCap, m.writeCap)
	}
	if merged {
		if headWasIdle {
			head.activate()
		}
		m.mu.Unlock()
		m.recorder.AdmittedHead()
		m.guard.record(gid, m, head)
		return m.await(head)
	}

	if globalOp != nil && m.q.hasFollower() {
		tail := m.q.back()
		if tail.globalRead() {
			m.mu.Unlock()
			m.recorder.AdmittedTail()
			m.guard.record(gid, m, tail)
			return m.await(tail)
		}
	}

	fresh := m.pool.get()
	if globalOp != nil {
		globalOp(fresh)
	} else {
		fresh.mergeRequest(i, m.participantCap, m.writeCap)
	}
	m.q.pushBack(fresh)
	m.mu.Unlock()
	m.recorder.AdmittedNew()
	m.guard.record(gid, m, fresh)
	return m.await(fresh)
}

// acquireExclusive implements GlobalWriteLock, which per spec.md §4.2 only
// ever succeeds against a None head and never merges into or past an
// existing tail, so it does not share acquire's tail-merge branch.
func (m *MultiLock) acquireExclusive() error {
	gid := m.guard.checkReentrance(m)

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return ErrClosed
	}

	head := m.q.front()
	if head.kind == kindNone {
		head.globalWrite()
		head.activate()
		m.mu.Unlock()
		m.recorder.AdmittedHead()
		m.guard.record(gid, m, head)
		return m.await(head)
	}

	fresh := m.pool.get()
	fresh.globalWrite()
	m.q.pushBack(fresh)
	m.mu.Unlock()
	m.recorder.AdmittedNew()
	m.guard.record(gid, m, fresh)
	return m.await(fresh)
}

// await blocks the caller on g's barrier, releasing the guard entry again
// if the wait ends in closure rather than activation.
func (m *MultiLock) await(g *group) error {
	if destroyed := g.barrier.wait(); destroyed {
		m.guard.untrack(m)
		return ErrClosed
	}
	return nil
}

// Unlock releases the lock held by the calling goroutine. It must be
// called exactly once per successful acquire, from the same goroutine.
func (m *MultiLock) Unlock() error {
	g, ok := m.guard.lookup(m)
	if !ok {
		return fmt.Errorf("multilock: unlock without matching acquire: %w", ErrUnbalancedUnlock)
	}
	m.guard.untrack(m)

	if g.release() != 0 {
		return nil
	}

	// Torch-bearer: the decrement that observed participants reach zero
	// advances the queue under the mutex. Between that decrement and this
	// Lock, a new caller could have taken the mutex first and merged into
	// g while it was still sitting at q.front() with kind unchanged (the
	// merge side doesn't look at participants to decide eligibility), so
	// the zero this goroutine observed lock-free is not yet final. Re-read
	// participants under the mutex before tearing down: if it is no
	// longer zero, some other release will reach zero again later and
	// become the real torch-bearer, so just leave g active and return.
	m.mu.Lock()
	if g.participantCount() != 0 {
		m.mu.Unlock()
		return nil
	}
	heldFor := time.Since(g.activatedAt)
	m.q.dropFront()
	if next := m.q.front(); next != nil {
		next.activate()
		m.pool.put(g)
	} else {
		g.clear()
		m.q.pushBack(g)
	}
	m.mu.Unlock()

	m.recorder.Released(heldFor)
	return nil
}

// Close tears down the MultiLock: every group still in the queue, and any
// goroutine currently parked in await, is signaled closed rather than
// left to block forever. Double-Close is a no-op.
func (m *MultiLock) Close() error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	m.q.closeAll()
	m.mu.Unlock()
	return nil
}
