// Package multilock implements a multi-resource reader/writer lock that
// admits compatible requests into shared "groups" and sequences
// incompatible ones FIFO between groups, using Bloom-filter fingerprints
// (package fingerprint) to decide compatibility cheaply.
//
// Key zero is reserved as "no resource" and must never be presented as a
// real resource ID; this precondition is not validated at runtime, the
// same documented-but-unchecked contract spec.md §7 assigns to it.
//
// A MultiLock must be released with exactly one Unlock per successful
// acquire, on the same goroutine that acquired it. Acquiring a MultiLock
// a goroutine already holds is a programming error and panics rather than
// deadlocking silently. Apart from this self-reentrance rule, a MultiLock
// is safe for concurrent use by multiple goroutines.
package multilock
