package multilock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewQueueStartsWithSinglePlaceholder(t *testing.T) {
	q := newQueue()
	assert.Equal(t, 1, q.length)
	assert.Equal(t, kindNone, q.front().kind)
	assert.False(t, q.hasFollower())
}

func TestQueuePushBackGrowsLengthAndBack(t *testing.T) {
	q := newQueue()
	g := newGroup()
	q.pushBack(g)
	assert.Equal(t, 2, q.length)
	assert.True(t, q.hasFollower())
	assert.Same(t, g, q.back())
}

func TestQueueDropFrontPromotesNext(t *testing.T) {
	q := newQueue()
	first := q.front()
	second := newGroup()
	q.pushBack(second)

	dropped := q.dropFront()
	assert.Same(t, first, dropped)
	assert.Same(t, second, q.front())
	assert.Equal(t, 1, q.length)
}

func TestQueueDropFrontCanEmpty(t *testing.T) {
	q := newQueue()
	only := q.front()
	dropped := q.dropFront()
	assert.Same(t, only, dropped)
	assert.True(t, q.empty())
	assert.Nil(t, q.front())
}

func TestQueueCloseAllSignalsEveryGroup(t *testing.T) {
	q := newQueue()
	second := newGroup()
	q.pushBack(second)

	q.closeAll()
	assert.True(t, q.front().barrier.wait())
	assert.True(t, second.barrier.wait())
}
