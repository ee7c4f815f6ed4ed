package spinlock

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// FairLock is an array-based mutual-exclusion lock: a fixed-size ring of
// flags hands the critical section to waiters in strict arrival order,
// with each waiter spinning on its own slot rather than shared state.
// Capacity must be sized to the expected number of concurrent callers;
// exceeding it degrades to goroutines sharing slots rather than failing,
// the same trade-off the teacher's array lock makes. Suited to
// MultiLock's internal critical section when the number of concurrently
// contending goroutines is known and bounded (e.g. a fixed worker pool).
//
// Unlike the teacher's ArrayLock, which hands each goroutine its own
// wrapper struct to remember its slot between Lock and Unlock, FairLock
// satisfies the plain zero-argument Locker interface: the slot is
// remembered in a goroutine-ID-keyed map instead, the same technique
// MCSLock uses for its per-caller node.
type FairLock struct {
	flags []uint32
	tail  uint32
	size  uint32

	mu     sync.Mutex
	mySlot map[int64]uint32
}

// NewFairLock creates a FairLock sized for capacity concurrent callers.
func NewFairLock(capacity uint32) *FairLock {
	if capacity == 0 {
		capacity = 1
	}
	flags := make([]uint32, capacity)
	flags[0] = 1
	return &FairLock{flags: flags, size: capacity, mySlot: make(map[int64]uint32)}
}

// Lock acquires the lock for the calling goroutine.
func (f *FairLock) Lock() {
	slot := (atomic.AddUint32(&f.tail, 1) - 1) % f.size
	gid := goroutineID()
	f.mu.Lock()
	f.mySlot[gid] = slot
	f.mu.Unlock()

	for atomic.LoadUint32(&f.flags[slot]) == 0 {
		runtime.Gosched()
	}
}

// Unlock releases the lock, admitting the next slot in the ring.
func (f *FairLock) Unlock() {
	gid := goroutineID()
	f.mu.Lock()
	slot, ok := f.mySlot[gid]
	if ok {
		delete(f.mySlot, gid)
	}
	f.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("spinlock: FairLock.Unlock called by goroutine %d without a matching Lock", gid))
	}

	atomic.StoreUint32(&f.flags[slot], 0)
	next := (slot + 1) % f.size
	atomic.StoreUint32(&f.flags[next], 1)
}

// TryLock attempts to acquire the lock without blocking.
func (f *FairLock) TryLock() bool {
	tail := atomic.LoadUint32(&f.tail)
	if atomic.LoadUint32(&f.flags[tail%f.size]) == 1 {
		if atomic.CompareAndSwapUint32(&f.tail, tail, tail+1) {
			gid := goroutineID()
			f.mu.Lock()
			f.mySlot[gid] = tail % f.size
			f.mu.Unlock()
			return true
		}
	}
	return false
}
