package multilock

import (
	"github.com/Kubiyak/bloomfilter-lock/fingerprint"
	"github.com/Kubiyak/bloomfilter-lock/metrics"
	"github.com/Kubiyak/bloomfilter-lock/spinlock"
)

const (
	defaultParticipantCap = 8
	defaultWriteCap       = 8
)

// Option configures a MultiLock constructed with New. Mirrors the
// options-with-defaults shape used across the example pack's constructors
// (e.g. cockroachdb-field-eng-powertools/lockset's executor options).
type Option func(*MultiLock)

// WithHashCount overrides the number of bit positions derived per Key.
// Defaults to fingerprint.HashCount.
func WithHashCount(hashCount int) Option {
	return func(m *MultiLock) { m.hashCount = hashCount }
}

// WithParticipantCap overrides the number of callers a ReadWrite group may
// admit before freezing to Exclusive. Defaults to 8, per spec.md §4.4.
func WithParticipantCap(n int) Option {
	return func(m *MultiLock) { m.participantCap = n }
}

// WithWriteCap overrides the maximum write count a single request may
// carry and still be eligible for merging. Defaults to 8, per spec.md §4.4.
func WithWriteCap(n int) Option {
	return func(m *MultiLock) { m.writeCap = n }
}

// WithRecorder attaches a metrics.Recorder. Defaults to
// metrics.NoopRecorder{}.
func WithRecorder(r metrics.Recorder) Option {
	return func(m *MultiLock) { m.recorder = r }
}

// WithLocker selects the internal short-critical-section mutex
// implementation, realizing spec.md §6's "pluggable mutex primitive"
// collaborator. Defaults to &sync.Mutex{}.
func WithLocker(l spinlock.Locker) Option {
	return func(m *MultiLock) { m.mu = l }
}

func defaultHashCount() int {
	return fingerprint.HashCount
}
