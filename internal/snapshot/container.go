package snapshot

import (
	"crypto/rand"
	"fmt"

	"github.com/hashicorp/go-version"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

var (
	magic            = [5]byte{'s', 't', 'n', 'g', 'h'}
	currentVersion   = [2]byte{0x03, 0x00}
	supportedVersion = mustVersion("3.0")

	tagSize   = chacha20poly1305.Overhead
	nonceSize = chacha20poly1305.NonceSizeX
	pubSize   = curve25519.PointSize

	headerSize = len(magic) + len(currentVersion) + pubSize + tagSize
)

func mustVersion(s string) *version.Version {
	v, err := version.NewVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// encode writes the §4.7 container: magic, version, ephemeral public
// key, authentication tag, ciphertext - in that field order, so the
// tag sits ahead of the ciphertext it authenticates rather than
// trailing it the way a bare AEAD output would.
func encode(masterKey [32]byte, compressed []byte) ([]byte, error) {
	var ephemeralPriv [32]byte
	if _, err := rand.Read(ephemeralPriv[:]); err != nil {
		return nil, fmt.Errorf("snapshot: generate ephemeral key: %w", err)
	}

	ephemeralPub, err := curve25519.X25519(ephemeralPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("snapshot: derive ephemeral public key: %w", err)
	}
	masterPub, err := curve25519.X25519(masterKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("snapshot: derive master public key: %w", err)
	}
	shared, err := curve25519.X25519(ephemeralPriv[:], masterPub)
	if err != nil {
		return nil, fmt.Errorf("snapshot: derive shared secret: %w", err)
	}

	nonce, err := deriveNonce(ephemeralPub, masterPub)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(shared)
	if err != nil {
		return nil, fmt.Errorf("snapshot: new aead: %w", err)
	}
	sealed := aead.Seal(nil, nonce, compressed, nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, headerSize+len(ciphertext))
	out = append(out, magic[:]...)
	out = append(out, currentVersion[:]...)
	out = append(out, ephemeralPub...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out, nil
}

// decode reverses encode, returning the compressed payload once the
// magic, version, and authentication tag have all checked out.
func decode(masterKey [32]byte, data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, ErrSnapshotCorrupted
	}
	if [5]byte(data[0:5]) != magic {
		return nil, ErrSnapshotCorrupted
	}

	major, minor := data[5], data[6]
	v, err := version.NewVersion(fmt.Sprintf("%d.%d", major, minor))
	if err != nil || !v.Equal(supportedVersion) {
		return nil, ErrSnapshotVersionUnsupported
	}

	offset := 7
	ephemeralPub := data[offset : offset+pubSize]
	offset += pubSize
	tag := data[offset : offset+tagSize]
	offset += tagSize
	ciphertext := data[offset:]

	masterPub, err := curve25519.X25519(masterKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("snapshot: derive master public key: %w", err)
	}
	shared, err := curve25519.X25519(masterKey[:], ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("snapshot: derive shared secret: %w", err)
	}
	nonce, err := deriveNonce(ephemeralPub, masterPub)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(shared)
	if err != nil {
		return nil, fmt.Errorf("snapshot: new aead: %w", err)
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	compressed, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrSnapshotAuthFailed
	}
	return compressed, nil
}

// deriveNonce is the first 24 bytes of BLAKE2b-256(ephemeralPublic ‖
// masterPublic), per spec.md §4.7 step 5.
func deriveNonce(ephemeralPub, masterPub []byte) ([]byte, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: new blake2b hash: %w", err)
	}
	h.Write(ephemeralPub)
	h.Write(masterPub)
	sum := h.Sum(nil)
	return sum[:nonceSize], nil
}
