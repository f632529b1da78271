package ids

// Location specifies where in the engine a piece of data should be
// stored: either a Generic (non-versioned) path pair, or a Counter
// (versioned) path plus index. Mirrors Location's two variants from
// _examples/original_source/client_new/src/types/location.rs; Go has
// no sum type, so the two constructors below are the only supported
// way to build one and Resolve dispatches on which fields are set.
type Location struct {
	kind       locationKind
	vaultPath  []byte
	recordPath []byte
	counter    uint64
}

type locationKind int

const (
	locationGeneric locationKind = iota
	locationCounter
)

// Generic builds a non-versioned Location addressed by an explicit
// record path.
func Generic(vaultPath, recordPath []byte) Location {
	return Location{kind: locationGeneric, vaultPath: vaultPath, recordPath: recordPath}
}

// Counter builds a versioned Location addressed by index within the
// vault path's chain family. Counter 0 is the first record.
func Counter(vaultPath []byte, counter uint64) Location {
	return Location{kind: locationCounter, vaultPath: vaultPath, counter: counter}
}

// VaultPath returns the location's vault path regardless of variant.
func (l Location) VaultPath() []byte {
	return l.vaultPath
}

// Resolve derives the (VaultID, RecordID) pair this location names.
func (l Location) Resolve() (VaultID, RecordID) {
	vid := DeriveVaultID(l.vaultPath)
	switch l.kind {
	case locationCounter:
		return vid, DeriveRecordIDFromCounter(l.vaultPath, l.counter)
	default:
		return vid, DeriveRecordID(l.vaultPath, l.recordPath)
	}
}
