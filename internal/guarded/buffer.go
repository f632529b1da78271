package guarded

import (
	"crypto/subtle"
	"sync"
)

// region is the platform-specific backend a Buffer delegates to. Two
// implementations exist: buffer_linux.go provides the full guarantee
// (guard pages, canaries, mlock) and buffer_other.go provides the
// degraded fallback (zeroisation and borrow semantics only), per
// spec.md §4.1's platform carve-out.
type region interface {
	// bytes returns the usable, length-sized slice. Only valid to read
	// or write while the region is unlocked; callers in this package
	// always call it from within a protect(true)..protect(false) pair.
	bytes() []byte
	// protect toggles page access. unlocked=true grants read/write
	// access to the usable region; unlocked=false revokes it.
	protect(unlocked bool) error
	// zeroAndRelease verifies canaries (if any), zeroises the usable
	// region, and releases the backing allocation. Canary mismatch is
	// fatal: implementations panic rather than return an error, per
	// spec.md §4.1.
	zeroAndRelease() error
}

// shared is the reference-counted state behind one or more cloned
// Buffer handles. Holders track how many Buffer values point at this
// region; access arbitrates borrows (many readers, one writer); region
// is released only once holders reaches zero and no borrow is
// outstanding.
type shared struct {
	lifeMu    sync.Mutex
	access    sync.RWMutex
	region    region
	length    int
	holders   int32
	destroyed bool
}

// Buffer is a fixed-length, lock-protected region of memory. It starts
// locked; plaintext is only observable via View/ViewMut for the
// duration of the supplied callback. See the package doc for the
// borrow discipline this implements.
type Buffer struct {
	s *shared
}

// Mode selects which region implementation backs a Buffer, per
// spec.md §6's guarded_buffer_mode option.
type Mode int

const (
	// ModeFull requests every protection spec.md §4.1 describes
	// (guard pages, canaries, mlock) on platforms that support them,
	// degrading automatically to ModeReduced where they are not
	// available.
	ModeFull Mode = iota
	// ModeReduced requests the plain, zeroisation-only region
	// regardless of what the platform could otherwise support.
	ModeReduced
)

// Allocate reserves a new, zero-filled Buffer of the given length
// under ModeFull.
func Allocate(length int) (*Buffer, error) {
	return AllocateMode(length, ModeFull)
}

// AllocateMode reserves a new, zero-filled Buffer of the given length
// under the requested Mode.
func AllocateMode(length int, mode Mode) (*Buffer, error) {
	if length <= 0 {
		return nil, ErrZeroLength
	}
	var r region
	var err error
	if mode == ModeReduced {
		r, err = newPlainRegion(length)
	} else {
		r, err = newRegion(length)
	}
	if err != nil {
		return nil, err
	}
	return &Buffer{s: &shared{region: r, length: length, holders: 1}}, nil
}

// AllocateFrom reserves a new Buffer under ModeFull and copies data
// into it. The caller's slice is not zeroised by this call; callers
// holding secret bytes outside a Buffer are responsible for their own
// hygiene up to the point this function returns.
func AllocateFrom(data []byte) (*Buffer, error) {
	return AllocateFromMode(data, ModeFull)
}

// AllocateFromMode is AllocateFrom under the requested Mode.
func AllocateFromMode(data []byte, mode Mode) (*Buffer, error) {
	b, err := AllocateMode(len(data), mode)
	if err != nil {
		return nil, err
	}
	if err := b.ViewMut(func(dst []byte) error {
		copy(dst, data)
		return nil
	}); err != nil {
		_ = b.Destroy()
		return nil, err
	}
	return b, nil
}

// Len reports the buffer's fixed length.
func (b *Buffer) Len() int {
	return b.s.length
}

// Clone returns a new handle sharing the same underlying region. The
// region is released only when every handle (the original and every
// clone) has been destroyed.
func (b *Buffer) Clone() *Buffer {
	s := b.s
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.holders++
	return &Buffer{s: s}
}

// View unlocks the region for reading, invokes fn with the plaintext,
// and relocks the region when fn returns (normally or via panic).
// Concurrent View calls on clones of the same buffer may proceed
// together; a concurrent ViewMut excludes all of them.
func (b *Buffer) View(fn func(plaintext []byte) error) error {
	s := b.s
	s.access.RLock()
	defer s.access.RUnlock()

	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()

	return fn(s.region.bytes())
}

// ViewMut unlocks the region for reading and writing, invokes fn with
// the mutable plaintext, and relocks the region when fn returns.
// ViewMut is exclusive: no other View or ViewMut on a clone of the
// same buffer proceeds concurrently.
func (b *Buffer) ViewMut(fn func(plaintext []byte) error) error {
	s := b.s
	s.access.Lock()
	defer s.access.Unlock()

	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()

	return fn(s.region.bytes())
}

func (b *Buffer) enter() error {
	s := b.s
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.destroyed {
		return ErrClosed
	}
	return s.region.protect(true)
}

func (b *Buffer) leave() {
	s := b.s
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.destroyed {
		return
	}
	_ = s.region.protect(false)
}

// Destroy releases this handle's hold on the region. Once every handle
// sharing the region has called Destroy, the region is zeroised and
// released; it is not safe to call View/ViewMut on any handle after
// the last Destroy returns.
func (b *Buffer) Destroy() error {
	s := b.s
	s.lifeMu.Lock()
	if s.destroyed {
		s.lifeMu.Unlock()
		return nil
	}
	s.holders--
	if s.holders > 0 {
		s.lifeMu.Unlock()
		return nil
	}
	s.lifeMu.Unlock()

	// Last holder: wait out any in-flight borrow before releasing.
	s.access.Lock()
	defer s.access.Unlock()

	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.destroyed {
		return nil
	}
	err := s.region.zeroAndRelease()
	s.destroyed = true
	return err
}

// Equal performs a best-effort constant-time comparison of two
// buffers' plaintext. Both buffers are borrowed read-only for the
// duration of the comparison.
func Equal(a, b *Buffer) (bool, error) {
	if a.Len() != b.Len() {
		return false, nil
	}
	var result bool
	err := a.View(func(ap []byte) error {
		return b.View(func(bp []byte) error {
			result = constantTimeEqual(ap, bp)
			return nil
		})
	})
	return result, err
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
