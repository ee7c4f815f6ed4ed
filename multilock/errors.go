package multilock

import "errors"

// ErrClosed is returned by any acquire operation (ReadLock, WriteLock,
// Multilock, GlobalReadLock, GlobalWriteLock) issued after Close has been
// called, including by callers still parked in a pending request when
// Close runs. Unlock and Close do not return it.
var ErrClosed = errors.New("multilock: lock is closed")

// ErrUnbalancedUnlock is returned by Unlock when the calling goroutine does
// not currently hold a lock obtained through this MultiLock.
var ErrUnbalancedUnlock = errors.New("multilock: unlock without a matching lock")

// ErrEmptyRequest is returned by MultiLock when called with no read and no
// write keys; there is nothing to admit.
var ErrEmptyRequest = errors.New("multilock: request has no read or write keys")
