package spinlock

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// mcsNode is one goroutine's queue node in an MCSLock. Each goroutine
// needs its own node, which is why the raw MCS algorithm is normally
// exposed with an explicit node parameter on Lock/Unlock; MCSLock hides
// that by keeping a node pool and a registry keyed by the calling
// goroutine's ID (the same runtime.Stack-based identification
// multilock.guard uses for its reentrance check), so it satisfies the
// plain zero-argument Locker interface MultiLock expects of its internal
// mutex collaborator.
type mcsNode struct {
	next    atomic.Pointer[mcsNode]
	waiting uint32
}

// MCSLock is a scalable, FIFO, queue-based spin lock: each waiter spins
// on its own node rather than on shared state, so contention doesn't
// cause cache-line ping-pong the way a single shared spin flag does.
// Suited to MultiLock's internal critical section under heavy goroutine
// contention.
type MCSLock struct {
	tail atomic.Pointer[mcsNode]

	nodePool sync.Pool
	mu       sync.Mutex
	inUse    map[int64]*mcsNode
}

// NewMCSLock creates a ready-to-use MCSLock.
func NewMCSLock() *MCSLock {
	return &MCSLock{inUse: make(map[int64]*mcsNode)}
}

func (l *MCSLock) getNode() *mcsNode {
	if n, ok := l.nodePool.Get().(*mcsNode); ok {
		n.next.Store(nil)
		n.waiting = 0
		return n
	}
	return &mcsNode{}
}

func (l *MCSLock) putNode(n *mcsNode) {
	l.nodePool.Put(n)
}

// Lock acquires the lock for the calling goroutine.
func (l *MCSLock) Lock() {
	node := l.getNode()
	gid := goroutineID()
	l.mu.Lock()
	l.inUse[gid] = node
	l.mu.Unlock()

	pred := l.tail.Swap(node)
	if pred == nil {
		return
	}

	atomic.StoreUint32(&node.waiting, 1)
	pred.next.Store(node)

	for atomic.LoadUint32(&node.waiting) != 0 {
		runtime.Gosched()
	}
}

// Unlock releases the lock held by the calling goroutine.
func (l *MCSLock) Unlock() {
	gid := goroutineID()
	l.mu.Lock()
	node, ok := l.inUse[gid]
	if ok {
		delete(l.inUse, gid)
	}
	l.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("spinlock: MCSLock.Unlock called by goroutine %d without a matching Lock", gid))
	}

	if node.next.Load() == nil {
		if l.tail.CompareAndSwap(node, nil) {
			l.putNode(node)
			return
		}
		for {
			succ := node.next.Load()
			if succ != nil {
				atomic.StoreUint32(&succ.waiting, 0)
				l.putNode(node)
				return
			}
			runtime.Gosched()
		}
	}

	succ := node.next.Load()
	atomic.StoreUint32(&succ.waiting, 0)
	l.putNode(node)
}

func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var gid int64
	fmt.Sscanf(string(buf[:n]), "goroutine %d ", &gid)
	return gid
}
