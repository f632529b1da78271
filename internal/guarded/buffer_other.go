//go:build !linux

package guarded

// On platforms without buffer_linux.go's mmap/mprotect support, full
// mode degrades to the same plainRegion reduced mode uses everywhere,
// per spec.md §4.1's "on platforms that cannot enforce... must still
// implement... zeroisation and borrow semantics" carve-out.
func newRegion(length int) (region, error) {
	return newPlainRegion(length)
}
