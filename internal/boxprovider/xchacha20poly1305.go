package boxprovider

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// XChaCha20Poly1305 is the engine's default Provider, chosen the way
// spec.md §4.2 specifies it: an AEAD with a nonce wide enough to be
// drawn at random per seal without a meaningful collision risk. This
// mirrors the teacher pack's reliance on golang.org/x/crypto for
// authenticated encryption rather than rolling a cipher by hand.
type XChaCha20Poly1305 struct{}

var _ Provider = XChaCha20Poly1305{}

// KeyLength returns chacha20poly1305.KeySize (32 bytes).
func (XChaCha20Poly1305) KeyLength() int {
	return chacha20poly1305.KeySize
}

// Overhead returns the combined nonce and authentication tag size
// added to every sealed buffer: chacha20poly1305.NonceSizeX (24 bytes)
// plus chacha20poly1305.Overhead (16 bytes).
func (XChaCha20Poly1305) Overhead() int {
	return chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
}

// Seal draws a fresh random nonce, seals data with it, and prepends
// the nonce to the returned buffer so Open needs nothing but the key
// and associated data to reverse it.
func (p XChaCha20Poly1305) Seal(key, ad, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("boxprovider: new aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if err := p.RandomBytes(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(data)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, data, ad)
	return out, nil
}

// Open splits the leading nonce off sealed, then authenticates and
// decrypts the remainder.
func (p XChaCha20Poly1305) Open(key, ad, sealed []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, ErrOpenFailed
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("boxprovider: new aead: %w", err)
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

// RandomBytes fills buf using crypto/rand, the same CSPRNG source the
// teacher's own CryptoSource seeds from
// (_examples/lpassig-vault-vector-dpe/plugins/utils/crypto_source.go).
func (XChaCha20Poly1305) RandomBytes(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}
