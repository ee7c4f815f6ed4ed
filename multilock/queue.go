package multilock

// queueNode is one link in the admission queue's singly linked list.
type queueNode struct {
	g    *group
	next *queueNode
}

// queue is the FIFO of admission groups described in SPEC_FULL.md §4.3.
// front() is always the active head while the lock is non-idle: groups are
// never removed from the queue until their participants have fully
// released, so a late arrival can still merge into a running group by
// reaching the front. The queue is never empty once a MultiLock exists:
// newQueue seeds a None placeholder, and Unlock's release path re-pushes
// one whenever dropping the front would otherwise leave it empty.
type queue struct {
	head, tail *queueNode
	length     int
}

func newQueue() *queue {
	q := &queue{}
	q.pushBack(newGroup())
	return q
}

// front returns the current head group, nil only if the queue is empty
// (which should never be observed between MultiLock operations).
func (q *queue) front() *group {
	if q.head == nil {
		return nil
	}
	return q.head.g
}

// hasFollower reports whether a second group already exists behind the
// front, i.e. whether a tail-merge target exists distinct from the head.
func (q *queue) hasFollower() bool {
	return q.length > 1
}

// back returns the last group in the queue.
func (q *queue) back() *group {
	if q.tail == nil {
		return nil
	}
	return q.tail.g
}

func (q *queue) pushBack(g *group) {
	n := &queueNode{g: g}
	if q.tail == nil {
		q.head = n
		q.tail = n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.length++
}

// dropFront unlinks the current head node and returns its group. The
// caller decides what to do next: promote and activate the new front,
// return the dropped group to the pool, or re-push it as a cleared
// placeholder if the queue is now empty.
func (q *queue) dropFront() *group {
	old := q.head
	if old == nil {
		return nil
	}
	q.head = old.next
	q.length--
	if q.head == nil {
		q.tail = nil
	}
	return old.g
}

func (q *queue) empty() bool {
	return q.length == 0
}

// closeAll signals every remaining group's barrier as destroyed, waking
// any caller still blocked in a wait during MultiLock.Close.
func (q *queue) closeAll() {
	for n := q.head; n != nil; n = n.next {
		n.g.closeBarrier()
	}
}
