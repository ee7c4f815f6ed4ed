package multilock

import "github.com/Kubiyak/bloomfilter-lock/fingerprint"

// Key identifies a resource protected by a MultiLock. Zero is reserved:
// callers must never present it as a real resource ID (see doc.go).
type Key = fingerprint.Key

// intention describes a caller's requested access as a pair of Bloom
// filter fingerprints plus an exact write count. The zero value is the
// identity intention (no reads, no writes, min writes zero) used by
// global read participation.
type intention struct {
	readFP, writeFP fingerprint.Set
	minWrites       int
}

func newIntention(hashCount int, reads, writes []Key) intention {
	return intention{
		readFP:    fingerprint.BuildWith(hashCount, reads...),
		writeFP:   fingerprint.BuildWith(hashCount, writes...),
		minWrites: len(writes),
	}
}

func readIntention(hashCount int, id Key) intention {
	return intention{readFP: fingerprint.BuildWith(hashCount, id)}
}

func writeIntention(hashCount int, id Key) intention {
	return intention{writeFP: fingerprint.BuildWith(hashCount, id), minWrites: 1}
}

// compatible reports whether a and b could be admitted into the same
// group: no write fingerprint of one may intersect either fingerprint of
// the other. A false positive here (reporting incompatible when the
// underlying Key sets are actually disjoint) only causes an unnecessary
// refusal; compatible never reports true for genuinely conflicting sets.
func compatible(a, b intention) bool {
	if a.writeFP.Intersects(b.readFP.Union(b.writeFP)) {
		return false
	}
	if b.writeFP.Intersects(a.readFP.Union(a.writeFP)) {
		return false
	}
	return true
}

// merge widens i to also cover other, provided other is cheap enough to
// merge (bounded write count) and compatible with i's current fingerprint.
// Merging always widens the fingerprint, which is why a false positive can
// only make merge overly conservative, never unsafe.
func (i *intention) merge(other intention, writeCap int) bool {
	if other.minWrites > writeCap {
		return false
	}
	if !compatible(*i, other) {
		return false
	}
	i.readFP = i.readFP.Union(other.readFP)
	i.writeFP = i.writeFP.Union(other.writeFP)
	i.minWrites += other.minWrites
	return true
}
