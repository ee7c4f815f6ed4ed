package multilock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kubiyak/bloomfilter-lock/fingerprint"
	"github.com/Kubiyak/bloomfilter-lock/spinlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

func waitOrFail(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(testTimeout):
		t.Fatal(msg)
	}
}

// disjointKeys searches upward from start for n Keys whose hashCount-bit
// fingerprints are pairwise disjoint, using the real fingerprint package
// rather than assuming small integers happen not to collide under the
// hash. Tests that need several requests to provably merge into one group
// (or, for writes, to provably stay compatible with one another) build
// their keys from this instead of guessing.
func disjointKeys(t *testing.T, hashCount, n int, start Key) []Key {
	t.Helper()
	keys := make([]Key, 0, n)
	fps := make([]fingerprint.Set, 0, n)
	k := start
	for attempts := 0; len(keys) < n; attempts++ {
		if attempts > 1_000_000 {
			t.Fatalf("could not find %d pairwise-disjoint keys starting from %d", n, start)
		}
		fp := fingerprint.BuildWith(hashCount, k)
		collides := false
		for _, existing := range fps {
			if existing.Intersects(fp) {
				collides = true
				break
			}
		}
		if !collides {
			keys = append(keys, k)
			fps = append(fps, fp)
		}
		k++
	}
	return keys
}

// Scenario 1: two disjoint writers merge into the same head group and both
// return before either unlocks.
func TestScenarioTwoDisjointWriters(t *testing.T) {
	m := New()
	defer m.Close()

	// Four pairwise-disjoint keys: A={read k0, write k1}, B={read k2, write
	// k3} are then compatible no matter which order they're admitted in,
	// since none of A's or B's fingerprints share a bit.
	keys := disjointKeys(t, fingerprint.HashCount, 4, 1)

	admittedA := make(chan struct{})
	admittedB := make(chan struct{})
	proceed := make(chan struct{})
	resultA := make(chan error, 1)
	resultB := make(chan error, 1)

	go func() {
		require.NoError(t, m.Multilock([]Key{keys[0]}, []Key{keys[1]}))
		close(admittedA)
		<-proceed
		resultA <- m.Unlock()
	}()
	go func() {
		require.NoError(t, m.Multilock([]Key{keys[2]}, []Key{keys[3]}))
		close(admittedB)
		<-proceed
		resultB <- m.Unlock()
	}()

	waitOrFail(t, admittedA, "writer A was never admitted")
	waitOrFail(t, admittedB, "writer B was never admitted")
	close(proceed)

	require.NoError(t, <-resultA)
	require.NoError(t, <-resultB)
}

// Scenario 2: colliding writers are strictly serialized.
func TestScenarioCollidingWriters(t *testing.T) {
	m := New()
	defer m.Close()

	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	require.NoError(t, m.WriteLock(100))
	record("A-acquire")

	bDone := make(chan struct{})
	go func() {
		require.NoError(t, m.WriteLock(100))
		record("B-acquire")
		require.NoError(t, m.Unlock())
		record("B-unlock")
		close(bDone)
	}()

	// Give B a chance to queue behind A; it must not be able to proceed.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	snapshot := append([]string(nil), order...)
	mu.Unlock()
	assert.Equal(t, []string{"A-acquire"}, snapshot)

	record("A-unlock")
	require.NoError(t, m.Unlock())

	waitOrFail(t, bDone, "writer B never completed after A unlocked")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A-acquire", "A-unlock", "B-acquire", "B-unlock"}, order)
}

// Scenario 3: a global write excludes every other admission until released.
func TestScenarioGlobalWriteExcludesAll(t *testing.T) {
	m := New()
	defer m.Close()

	require.NoError(t, m.GlobalWriteLock())

	const n = 16
	var completed atomic.Int32
	var wg sync.WaitGroup

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(k Key) {
			defer wg.Done()
			require.NoError(t, m.ReadLock(k))
			completed.Add(1)
			require.NoError(t, m.Unlock())
		}(Key(i + 1))
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), completed.Load(), "readers must not be admitted while the global write is held")

	require.NoError(t, m.Unlock())

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	waitOrFail(t, done, "readers never completed after the global write released")
	assert.Equal(t, int32(n), completed.Load())
}

// Scenario 4: the 9th merge attempt into a ReadWrite head is serialized
// behind the frozen Exclusive group.
func TestScenarioCapInducedSerialization(t *testing.T) {
	m := New()
	defer m.Close()

	const firstBatch = 8
	// Eight pairwise-disjoint write keys: spec.md §8 scenario 4 presumes
	// "pairwise non-colliding k_i" so that all eight genuinely merge into
	// one head group before it freezes to Exclusive.
	keys := disjointKeys(t, fingerprint.HashCount, firstBatch, 1)
	var wg sync.WaitGroup
	admitted := make(chan struct{}, firstBatch)
	release := make(chan struct{})

	wg.Add(firstBatch)
	for _, k := range keys {
		go func(k Key) {
			defer wg.Done()
			require.NoError(t, m.WriteLock(k))
			admitted <- struct{}{}
			<-release
			require.NoError(t, m.Unlock())
		}(k)
	}
	for i := 0; i < firstBatch; i++ {
		waitOrFail(t, admitted, "first batch of writers was not fully admitted")
	}

	// The frozen Exclusive head refuses every request regardless of its
	// fingerprint, so the 9th key needs no disjointness property of its own.
	ninth := keys[len(keys)-1] + 1000
	ninthAdmitted := make(chan struct{})
	go func() {
		require.NoError(t, m.WriteLock(ninth))
		close(ninthAdmitted)
		require.NoError(t, m.Unlock())
	}()

	select {
	case <-ninthAdmitted:
		t.Fatal("9th writer must not be admitted into the frozen Exclusive group")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	wg.Wait()
	waitOrFail(t, ninthAdmitted, "9th writer should be admitted once the head group drains")
}

// Scenario 5: a global read that can't head-merge creates a ReadOnly tail,
// and a later global read merges into that same tail.
func TestScenarioGlobalReadTailMerge(t *testing.T) {
	m := New()
	defer m.Close()

	require.NoError(t, m.Multilock([]Key{1}, []Key{2}))

	bAdmitted := make(chan struct{})
	cAdmitted := make(chan struct{})
	release := make(chan struct{})

	go func() {
		require.NoError(t, m.GlobalReadLock())
		close(bAdmitted)
		<-release
		require.NoError(t, m.Unlock())
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-bAdmitted:
		t.Fatal("global read must not head-merge into a ReadWrite group")
	default:
	}

	go func() {
		require.NoError(t, m.GlobalReadLock())
		close(cAdmitted)
		<-release
		require.NoError(t, m.Unlock())
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-bAdmitted:
		t.Fatal("B must still be waiting behind A")
	default:
	}
	select {
	case <-cAdmitted:
		t.Fatal("C must still be waiting behind A")
	default:
	}

	require.NoError(t, m.Unlock())

	waitOrFail(t, bAdmitted, "B should activate once A releases")
	waitOrFail(t, cAdmitted, "C should activate together with B")
	close(release)
}

// A plain ReadLock that arrives while a global-read head is active must
// merge into it rather than queueing, and every participant's Unlock must
// balance correctly once merged.
func TestScenarioPlainReadMergesIntoGlobalReadHead(t *testing.T) {
	m := New()
	defer m.Close()

	admittedA := make(chan struct{})
	releaseA := make(chan struct{})
	resultA := make(chan error, 1)
	go func() {
		err := m.GlobalReadLock()
		close(admittedA)
		<-releaseA
		resultA <- m.Unlock()
		_ = err
	}()
	waitOrFail(t, admittedA, "global reader was never admitted")

	require.NoError(t, m.ReadLock(42))

	head := m.q.front()
	assert.Equal(t, kindReadOnly, head.kind)
	assert.Equal(t, int32(2), head.participants)

	require.NoError(t, m.Unlock())
	assert.Equal(t, int32(1), head.participants, "one Unlock of two participants must not drain the group")

	close(releaseA)
	require.NoError(t, <-resultA)
}

// Scenario 6: self-reentrance is a fatal programming error.
func TestScenarioSelfReentranceFatal(t *testing.T) {
	m := New()
	defer m.Close()

	require.NoError(t, m.ReadLock(1))
	assert.Panics(t, func() {
		_ = m.ReadLock(2)
	})
	require.NoError(t, m.Unlock())
}

func TestUnlockWithoutAcquireReturnsError(t *testing.T) {
	m := New()
	defer m.Close()

	err := m.Unlock()
	assert.ErrorIs(t, err, ErrUnbalancedUnlock)
}

func TestQueueIsNeverEmptyAfterQuiescence(t *testing.T) {
	m := New()
	defer m.Close()

	require.NoError(t, m.WriteLock(1))
	require.NoError(t, m.Unlock())

	assert.False(t, m.q.empty())
	assert.Equal(t, kindNone, m.q.front().kind)
	assert.Equal(t, 1, m.q.length)
}

func TestCloseWakesPendingWaiters(t *testing.T) {
	m := New()
	require.NoError(t, m.WriteLock(1))

	blocked := make(chan error, 1)
	go func() {
		blocked <- m.WriteLock(1)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Close())

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(testTimeout):
		t.Fatal("Close did not wake a pending waiter")
	}
}

func TestDoubleCloseIsNoop(t *testing.T) {
	m := New()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

// WithLocker swaps out the default sync.Mutex for one of the spinlock
// package's collaborators; this exercises that wiring with a real
// contended workload rather than only through spinlock's own tests.
func TestWithLockerUsesSpinLockAsCriticalSection(t *testing.T) {
	m := New(WithLocker(spinlock.New()))
	defer m.Close()

	const numGoroutines = 50
	const iterations = 50
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(base Key) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				require.NoError(t, m.WriteLock(base))
				require.NoError(t, m.Unlock())
			}
		}(Key(i + 1))
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	waitOrFail(t, done, "WithLocker(spinlock.New()) deadlocked or never drained")
}

func TestEmptyRequestRefused(t *testing.T) {
	m := New()
	defer m.Close()
	err := m.Multilock(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

func BenchmarkReadLockUncontended(b *testing.B) {
	m := New()
	defer m.Close()
	for i := 0; i < b.N; i++ {
		m.ReadLock(1)
		m.Unlock()
	}
}

func BenchmarkMultilockDisjointContended(b *testing.B) {
	m := New()
	defer m.Close()
	b.ReportAllocs()
	var counter atomic.Uint32
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			id := counter.Add(1)
			m.Multilock([]Key{Key(id)}, []Key{Key(id) + 1<<20})
			m.Unlock()
		}
	})
}

func BenchmarkGlobalReadLockTailMerge(b *testing.B) {
	m := New()
	defer m.Close()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.GlobalReadLock()
			m.Unlock()
		}
	})
}
