//go:build linux

package guarded

import (
	"crypto/rand"
	"fmt"
	"runtime"

	"github.com/hashicorp/go-secure-stdlib/mlock"
	"golang.org/x/sys/unix"
)

// canarySize is the width of the randomised sentinel flanking the
// usable region on each side. A mismatch on release means something
// wrote past the end of its borrow.
const canarySize = 16

// mmapRegion is the full-protection backend: a guard page of PROT_NONE
// on each side of a page-aligned middle mapping, canary bytes flanking
// the usable slice within that middle mapping, and the whole usable
// range mlock'd so it never reaches swap. Grounded on
// _examples/original_source/engine/runtime/src/guarded.rs, which
// implements the same guard-page-plus-canary scheme over libsodium's
// allocator; here it's done directly with mmap/mprotect since there is
// no libsodium binding in the pack.
type mmapRegion struct {
	full       []byte // guard | middle | guard
	middle     []byte // the mprotect'd portion: canary | data | canary
	data       []byte // the canarySize:canarySize+length slice of middle
	leftCanary []byte
	rightCanary []byte
	pageSize   int
}

func newRegion(length int) (region, error) {
	pageSize := unix.Getpagesize()
	usable := canarySize + length + canarySize
	middlePages := (usable + pageSize - 1) / pageSize
	if middlePages == 0 {
		middlePages = 1
	}
	total := pageSize + middlePages*pageSize + pageSize

	full, err := unix.Mmap(-1, 0, total, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}

	middle := full[pageSize : pageSize+middlePages*pageSize]
	if err := unix.Mprotect(middle, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		_ = unix.Munmap(full)
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}

	if err := mlock.LockMemory(middle); err != nil {
		// Best effort: spec §4.1 item (iv) is swap-resistance, not a hard
		// allocation requirement. Proceed without it.
		_ = err
	}

	left := middle[:canarySize]
	data := middle[canarySize : canarySize+length]
	right := middle[canarySize+length : canarySize+length+canarySize]
	if _, err := rand.Read(left); err != nil {
		_ = unix.Munmap(full)
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	if _, err := rand.Read(right); err != nil {
		_ = unix.Munmap(full)
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}

	r := &mmapRegion{
		full:        full,
		middle:      middle,
		data:        data,
		leftCanary:  append([]byte(nil), left...),
		rightCanary: append([]byte(nil), right...),
		pageSize:    pageSize,
	}

	if err := unix.Mprotect(middle, unix.PROT_NONE); err != nil {
		_ = unix.Munmap(full)
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}

	return r, nil
}

func (r *mmapRegion) bytes() []byte {
	return r.data
}

func (r *mmapRegion) protect(unlocked bool) error {
	prot := unix.PROT_NONE
	if unlocked {
		prot = unix.PROT_READ | unix.PROT_WRITE
	}
	return unix.Mprotect(r.middle, prot)
}

func (r *mmapRegion) zeroAndRelease() error {
	if err := unix.Mprotect(r.middle, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return err
	}

	left := r.middle[:canarySize]
	right := r.middle[canarySize+len(r.data) : canarySize+len(r.data)+canarySize]
	if !constantTimeEqual(left, r.leftCanary) {
		panic(&CanaryError{Side: "left"})
	}
	if !constantTimeEqual(right, r.rightCanary) {
		panic(&CanaryError{Side: "right"})
	}

	zero(r.middle)
	runtime.KeepAlive(r.middle)

	_ = unix.Munlock(r.middle)
	return unix.Munmap(r.full)
}
