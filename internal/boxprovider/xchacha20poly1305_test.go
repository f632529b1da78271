package boxprovider

import (
	"bytes"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	p := XChaCha20Poly1305{}
	key := make([]byte, p.KeyLength())
	if err := p.RandomBytes(key); err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}

	ad := []byte("associated-data")
	plaintext := []byte("the quick brown fox")

	sealed, err := p.Seal(key, ad, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(sealed) != len(plaintext)+p.Overhead() {
		t.Fatalf("sealed length %d, want %d", len(sealed), len(plaintext)+p.Overhead())
	}

	opened, err := p.Open(key, ad, sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("opened %q, want %q", opened, plaintext)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	p := XChaCha20Poly1305{}
	key := make([]byte, p.KeyLength())
	_ = p.RandomBytes(key)

	sealed, err := p.Seal(key, []byte("ad"), []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	if _, err := p.Open(key, []byte("ad"), sealed); err != ErrOpenFailed {
		t.Fatalf("Open tampered = %v, want ErrOpenFailed", err)
	}
}

func TestOpenRejectsWrongAssociatedData(t *testing.T) {
	p := XChaCha20Poly1305{}
	key := make([]byte, p.KeyLength())
	_ = p.RandomBytes(key)

	sealed, err := p.Seal(key, []byte("ad-one"), []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := p.Open(key, []byte("ad-two"), sealed); err != ErrOpenFailed {
		t.Fatalf("Open wrong ad = %v, want ErrOpenFailed", err)
	}
}

func TestOpenRejectsShortBuffer(t *testing.T) {
	p := XChaCha20Poly1305{}
	key := make([]byte, p.KeyLength())
	_ = p.RandomBytes(key)

	if _, err := p.Open(key, nil, []byte{1, 2, 3}); err != ErrOpenFailed {
		t.Fatalf("Open short = %v, want ErrOpenFailed", err)
	}
}
