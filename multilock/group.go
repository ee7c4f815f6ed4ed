package multilock

import (
	"sync/atomic"
	"time"
)

// groupKind is the admission-record state spec'd by the state machine in
// SPEC_FULL.md §4.6.
type groupKind int

const (
	kindNone groupKind = iota
	kindReadOnly
	kindReadWrite
	kindExclusive
	kindGlobalWrite
)

func (k groupKind) String() string {
	switch k {
	case kindNone:
		return "none"
	case kindReadOnly:
		return "read-only"
	case kindReadWrite:
		return "read-write"
	case kindExclusive:
		return "exclusive"
	case kindGlobalWrite:
		return "global-write"
	default:
		return "unknown"
	}
}

// group is an admission record: a merged intention, a participant count,
// a type tag, and the barrier participants wait on until it becomes the
// active head. kind and intention are mutated only while the owning
// MultiLock's internal mutex is held. participants is read and written
// with atomics on every access, increments included: a merge into the
// active head runs under the mutex, but release (the decrement) is
// intentionally lock-free, so the two can race on the same group, and
// plain int32 reads/writes of participants would be a data race.
type group struct {
	kind         groupKind
	intention    intention
	participants int32
	barrier      *barrier
	activatedAt  time.Time
}

func newGroup() *group {
	return &group{kind: kindNone, barrier: newBarrier()}
}

// mergeRequest attempts to admit i into g, following the per-kind table in
// SPEC_FULL.md §4.2. Must be called while holding the owning MultiLock's
// mutex.
func (g *group) mergeRequest(i intention, participantCap, writeCap int) bool {
	switch g.kind {
	case kindNone:
		g.kind = kindReadWrite
		g.intention = i
		atomic.StoreInt32(&g.participants, 1)
		return true
	case kindReadOnly:
		if i.minWrites != 0 {
			return false
		}
		atomic.AddInt32(&g.participants, 1)
		return true
	case kindExclusive, kindGlobalWrite:
		return false
	case kindReadWrite:
		if i.minWrites > writeCap {
			return false
		}
		if !g.intention.merge(i, writeCap) {
			return false
		}
		n := atomic.AddInt32(&g.participants, 1)
		if int(n) >= participantCap {
			g.kind = kindExclusive
		}
		return true
	default:
		return false
	}
}

func (g *group) mergeRead(hashCount int, id Key, participantCap, writeCap int) bool {
	return g.mergeRequest(readIntention(hashCount, id), participantCap, writeCap)
}

func (g *group) mergeWrite(hashCount int, id Key, participantCap, writeCap int) bool {
	return g.mergeRequest(writeIntention(hashCount, id), participantCap, writeCap)
}

// globalRead admits a caller into the shared "all readers" class. It only
// ever succeeds against None (becoming ReadOnly) or an existing ReadOnly
// group; every other kind refuses outright, including ReadWrite — joining
// a ReadWrite group as a pure reader would require tracking its intention,
// which ReadOnly groups deliberately don't do.
func (g *group) globalRead() bool {
	switch g.kind {
	case kindNone:
		g.kind = kindReadOnly
		atomic.StoreInt32(&g.participants, 1)
		return true
	case kindReadOnly:
		atomic.AddInt32(&g.participants, 1)
		return true
	default:
		return false
	}
}

// globalWrite admits the sole caller of an exclusive, lock-wide write.
// It only succeeds against None; it never merges.
func (g *group) globalWrite() bool {
	if g.kind != kindNone {
		return false
	}
	g.kind = kindGlobalWrite
	atomic.StoreInt32(&g.participants, 1)
	return true
}

// release decrements the participant count and returns the count that
// remains. It is safe to call without the owning MultiLock's mutex held;
// exactly one caller will observe the count reach zero. That caller must
// still re-read participantCount under the mutex before tearing g down,
// since a merge can land on the same group between this decrement and the
// mutex being taken.
func (g *group) release() int32 {
	return atomic.AddInt32(&g.participants, -1)
}

// participantCount reads the current participant count. Callers that need
// a value safe to act on (as opposed to a merge decision already made
// under the mutex) should call this rather than reading the field
// directly, since release mutates it lock-free.
func (g *group) participantCount() int32 {
	return atomic.LoadInt32(&g.participants)
}

// clear resets g to the None placeholder shape with a fresh barrier, ready
// for reuse from the pool or as the queue's placeholder tail. Must be
// called while holding the owning MultiLock's mutex.
func (g *group) clear() {
	g.kind = kindNone
	g.intention = intention{}
	atomic.StoreInt32(&g.participants, 0)
	g.barrier = newBarrier()
	g.activatedAt = time.Time{}
}

func (g *group) activate() {
	g.activatedAt = time.Now()
	g.barrier.activate()
}

func (g *group) closeBarrier() {
	g.barrier.closeForDestruction()
}
