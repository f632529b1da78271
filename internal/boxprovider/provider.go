// Package boxprovider defines the capability surface used to seal and
// open secret bytes under a key, plus the engine's default
// implementation of it.
//
// Grounded on _examples/original_source/engine/vault/src/crypto_box.rs
// and _examples/original_source/engine/new_runtime/src/crypto_utils/crypto_box.rs
// (the `BoxProvider` trait). Go has no generic associated-type trait
// bound equivalent, so the trait becomes a plain interface; callers
// needing an ordered/hashable key type get it from internal/keystore
// instead of the provider itself.
package boxprovider

import "errors"

// ErrOpenFailed is returned when Open cannot authenticate the supplied
// ciphertext and associated data against the key - either the data was
// tampered with, or the wrong key was used.
var ErrOpenFailed = errors.New("boxprovider: open failed: authentication failed")

// Provider is a sealed-box capability: given a key, it can seal
// plaintext (with associated data bound into the authentication tag
// but not encrypted) and open it back up, and it can fill buffers with
// cryptographically secure random bytes.
type Provider interface {
	// KeyLength is the number of key bytes this provider requires.
	KeyLength() int
	// Overhead is the number of bytes Seal adds beyond the plaintext
	// length (nonce plus authentication tag, for the default provider).
	Overhead() int
	// Seal authenticates ad and encrypts data under key, returning a
	// single buffer containing everything Open needs to reverse it.
	Seal(key, ad, data []byte) ([]byte, error)
	// Open authenticates ad and decrypts the buffer Seal produced,
	// returning ErrOpenFailed if authentication fails.
	Open(key, ad, sealed []byte) ([]byte, error)
	// RandomBytes fills buf with secure random bytes.
	RandomBytes(buf []byte) error
}
