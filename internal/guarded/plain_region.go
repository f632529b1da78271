package guarded

import "runtime"

// plainRegion backs every Buffer allocated in reduced mode
// (spec.md §6's guarded_buffer_mode="reduced"), and is also the only
// region implementation available on platforms buffer_linux.go's
// mmap/mprotect machinery doesn't support. It provides zeroisation and
// the package's borrow semantics but no guard pages, no canaries, and
// no swap resistance, per spec.md §4.1's degraded-platform carve-out.
type plainRegion struct {
	data []byte
}

func newPlainRegion(length int) (region, error) {
	return &plainRegion{data: make([]byte, length)}, nil
}

func (r *plainRegion) bytes() []byte {
	return r.data
}

func (r *plainRegion) protect(unlocked bool) error {
	// No OS-level page protection in reduced mode; the Go-level borrow
	// discipline in buffer.go is the only enforcement.
	return nil
}

func (r *plainRegion) zeroAndRelease() error {
	zero(r.data)
	runtime.KeepAlive(r.data)
	return nil
}
