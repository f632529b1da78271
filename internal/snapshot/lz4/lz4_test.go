package lz4

import (
	"bytes"
	"strings"
	"testing"
)

func roundTrip(t *testing.T, input []byte) []byte {
	t.Helper()
	compressed := Compress(input)
	out, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(out), len(input))
	}
	return compressed
}

func TestRoundTripEmpty(t *testing.T) {
	roundTrip(t, nil)
}

func TestRoundTripShortLiteralOnly(t *testing.T) {
	roundTrip(t, []byte("hi"))
}

func TestRoundTripNoRepetition(t *testing.T) {
	roundTrip(t, []byte("the quick brown fox jumps over the lazy dog, completely"))
}

func TestRoundTripHighlyRepetitive(t *testing.T) {
	roundTrip(t, bytes.Repeat([]byte("abcd"), 5000))
}

func TestRoundTripLongLiteralRun(t *testing.T) {
	input := []byte(strings.Repeat("x", 20) + strings.Repeat("y", 300))
	compressed := roundTrip(t, input)
	if len(compressed) == 0 {
		t.Fatalf("expected non-empty compressed output")
	}
}

func TestRoundTripRepeatedStructuredData(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 200; i++ {
		buf.WriteString("record-id=000000000000000000000000;counter=0;tag=data;")
	}
	roundTrip(t, buf.Bytes())
}

func TestCompressedIsSmallerForRepetitiveInput(t *testing.T) {
	input := bytes.Repeat([]byte("0123456789"), 2000)
	compressed := Compress(input)
	if len(compressed) >= len(input) {
		t.Fatalf("expected compression to shrink highly repetitive input: %d >= %d", len(compressed), len(input))
	}
}

func TestDecompressRejectsTruncatedStream(t *testing.T) {
	compressed := Compress(bytes.Repeat([]byte("abcd"), 5000))
	truncated := compressed[:len(compressed)-3]
	if _, err := Decompress(truncated); err == nil {
		t.Fatalf("expected error decompressing truncated stream")
	}
}

func TestDecompressRejectsBogusOffset(t *testing.T) {
	// A single token byte claiming 0 literals and a match, followed by an
	// offset pointing further back than any output produced so far.
	bogus := []byte{0x00, 0xFF, 0xFF}
	if _, err := Decompress(bogus); err == nil {
		t.Fatalf("expected error for out-of-range match offset")
	}
}

func FuzzRoundTrip(f *testing.F) {
	f.Add([]byte(""))
	f.Add([]byte("a"))
	f.Add(bytes.Repeat([]byte("ab"), 100))
	f.Add([]byte("the quick brown fox jumps over the lazy dog"))

	f.Fuzz(func(t *testing.T, input []byte) {
		compressed := Compress(input)
		out, err := Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress: %v", err)
		}
		if !bytes.Equal(out, input) {
			t.Fatalf("round trip mismatch for input of length %d", len(input))
		}
	})
}
