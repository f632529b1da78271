// Package guarded implements the Guarded Buffer: a fixed-length byte
// region that starts locked and unlocks only for the dynamic extent of
// an explicit borrow. It is the memory-safety primitive every plaintext
// secret in this engine passes through; nothing above this package ever
// holds plaintext outside of a View/ViewMut callback.
//
// Grounded on _examples/original_source/engine/runtime/src/guarded.rs
// (Guarded/Ref/RefMut borrow discipline) and
// _examples/original_source/runtime/src/secret.rs. Go has no
// lifetime-scoped destructors, so the borrow contract is expressed the
// way spec.md's design notes sanction: a caller-supplied closure run
// while the region is unlocked, with the region re-locked and the
// closure's panics still propagated once it returns.
package guarded

import "errors"

// ErrAllocationFailed is returned when the requested region could not
// be allocated (size too large, or the platform allocator refused).
var ErrAllocationFailed = errors.New("guarded: allocation failed")

// ErrLockPoisoned names the poisoned-internal-mutex failure. Go mutexes
// don't poison themselves and the buffer's bookkeeping performs no such
// check, so no function in this package returns it.
var ErrLockPoisoned = errors.New("guarded: lock poisoned")

// ErrZeroLength is returned by operations that require a non-zero
// length buffer (borrowing a zero-length buffer is a programmer error
// in the original, modeled here as a returned error instead of a panic
// since callers cross a package boundary).
var ErrZeroLength = errors.New("guarded: zero-length buffer")

// ErrClosed is returned by any operation on a buffer that has already
// been destroyed.
var ErrClosed = errors.New("guarded: buffer already destroyed")

// CanaryError is fatal: it indicates the canary bytes flanking a
// region were overwritten, i.e. memory corruption or tampering. Per
// spec.md §4.1 this must abort the process rather than be treated as a
// recoverable error, so the Linux region's zeroAndRelease panics with
// it instead of returning it.
type CanaryError struct {
	Side string // "left" or "right"
}

func (e *CanaryError) Error() string {
	return "guarded: " + e.Side + " canary corrupted"
}
