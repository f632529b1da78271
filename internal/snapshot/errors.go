package snapshot

import "errors"

// ErrSnapshotCorrupted is returned when the file's magic bytes don't
// match or the decrypted payload isn't valid JSON.
var ErrSnapshotCorrupted = errors.New("snapshot: corrupted")

// ErrSnapshotVersionUnsupported is returned when the file's version
// field names a version this engine doesn't know how to read.
var ErrSnapshotVersionUnsupported = errors.New("snapshot: unsupported version")

// ErrSnapshotAuthFailed is returned when the authentication tag over
// the compressed payload doesn't verify, including the case of a
// wrong master key.
var ErrSnapshotAuthFailed = errors.New("snapshot: authentication failed")

// ErrClientNotFound is returned by Load when the requested client path
// isn't present in the snapshot file.
var ErrClientNotFound = errors.New("snapshot: client not found")
