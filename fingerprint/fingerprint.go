// Package fingerprint implements the probabilistic bit-vector summaries
// MultiLock uses to decide whether two access requests might overlap.
//
// A Set is a single machine word. Each Key contributes a handful of bit
// positions, derived from one 64-bit hash split into two 32-bit lanes and
// combined by double hashing (Kirsch-Mitzenmacher): this keeps construction
// to one hash per Key regardless of HashCount. Membership tests are never
// performed here — fingerprint.Set only supports the operations MultiLock
// needs: build, union, and the conflict predicate used by intention
// compatibility.
package fingerprint

import "github.com/cespare/xxhash/v2"

// Bits is the width of a Set in bits. The reference shape from the design
// is "one machine word".
const Bits = 64

// HashCount is the default number of bit positions derived per Key.
const HashCount = 4

// Key is a resource identifier. Zero is reserved by convention of the
// caller (see the multilock package) and is never treated specially here.
type Key uint32

// Set is a fixed-width Bloom-filter-style bit vector.
type Set uint64

// Build ORs HashCount bit positions for each id into a fresh Set.
func Build(ids ...Key) Set {
	return BuildWith(HashCount, ids...)
}

// BuildWith is Build with an explicit hash count, exposed for tests and the
// benchmark harness that want to explore the false-positive/collision
// trade-off directly.
func BuildWith(hashCount int, ids ...Key) Set {
	var s Set
	for _, id := range ids {
		s = s.addWith(hashCount, id)
	}
	return s
}

// Add returns a Set with id's HashCount bit positions OR-ed in.
func (s Set) Add(id Key) Set {
	return s.addWith(HashCount, id)
}

func (s Set) addWith(hashCount int, id Key) Set {
	h1, h2 := splitHash(id)
	for i := 0; i < hashCount; i++ {
		bit := (h1 + uint64(i)*h2) % Bits
		s |= Set(1) << bit
	}
	return s
}

// Union widens s to include every bit set in other. Merging always widens;
// it never narrows a fingerprint, which is what makes false positives safe
// (they can only cause an unnecessary refusal, never an incorrect accept).
func (s Set) Union(other Set) Set {
	return s | other
}

// Intersects reports whether s and other share any set bit.
func (s Set) Intersects(other Set) bool {
	return s&other != 0
}

// Empty reports whether no bit is set.
func (s Set) Empty() bool {
	return s == 0
}

// splitHash hashes id once with xxhash and splits the result into two
// 32-bit lanes used as the two hash functions of a double-hashing scheme,
// the same "hash once, derive many positions" shape as
// buildbarn's PathHashIterator, adapted from a rolling hash over path
// components to a one-shot hash over a single 32-bit Key.
func splitHash(id Key) (h1, h2 uint64) {
	var buf [4]byte
	buf[0] = byte(id)
	buf[1] = byte(id >> 8)
	buf[2] = byte(id >> 16)
	buf[3] = byte(id >> 24)
	sum := xxhash.Sum64(buf[:])
	h1 = sum & 0xffffffff
	h2 = sum >> 32
	// A zero second lane would degenerate double hashing into a single
	// repeated bit position; fold in an odd constant to keep it nonzero.
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}
