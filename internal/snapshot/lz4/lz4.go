// Package lz4 implements the snapshot codec's block compressor: a
// direct-mapped-dictionary LZ77 variant with nibble-packed token
// bytes, byte for byte the same framing the engine has always used for
// compressed snapshot state.
//
// Grounded on
// _examples/original_source/engine/src/snapshot/compression/encoder.rs
// (Lz4Encoder: the 4096-entry dict, the multiplicative cursor hash, the
// token/extension-byte framing). The original ships no decoder in the
// retrieved sources; Decompress here is the straightforward inverse the
// encoder's own framing implies.
package lz4

import (
	"encoding/binary"
	"errors"
)

const dictSize = 4096

// ErrCorrupt is returned by Decompress when the input ends mid-token,
// mid-extension-run, or claims a match offset past what has been
// produced so far.
var ErrCorrupt = errors.New("lz4: corrupt compressed stream")

// Compress returns input encoded as a self-delimiting compressed block.
// The caller is expected to wrap the result in something that carries
// its own length (here, the outer authenticated ciphertext), since the
// format has no explicit trailer.
func Compress(input []byte) []byte {
	e := &encoder{input: input, output: make([]byte, 0, len(input))}
	for i := range e.dict {
		e.dict[i] = ^uint64(0)
	}
	e.run()
	return e.output
}

type encoder struct {
	input  []byte
	output []byte
	cursor int
	dict   [dictSize]uint64
}

type duplicate struct {
	offset  uint16
	padding int
}

func (e *encoder) remaining() bool {
	return e.cursor+4 < len(e.input)
}

func (e *encoder) at(n int) uint32 {
	return binary.LittleEndian.Uint32(e.input[n : n+4])
}

func (e *encoder) atCursor() uint32 {
	return e.at(e.cursor)
}

func (e *encoder) cursorHash() uint64 {
	x := uint64(e.atCursor()) * 0xa4d94a4f
	a := x >> 16
	b := x >> 30
	x ^= a >> b
	x *= 0xa4d94a4f
	return x % dictSize
}

func (e *encoder) insertCursor() {
	if e.remaining() {
		e.dict[e.cursorHash()] = uint64(e.cursor)
	}
}

// stepForward advances the cursor by steps, inserting each visited
// position into the dictionary, and reports whether the cursor is
// still within (or exactly at the end of) the input.
func (e *encoder) stepForward(steps int) bool {
	for i := 0; i < steps; i++ {
		e.insertCursor()
		e.cursor++
	}
	return e.cursor <= len(e.input)
}

func (e *encoder) findDuplicate() *duplicate {
	if !e.remaining() {
		return nil
	}
	candidate := e.dict[e.cursorHash()]
	if candidate == ^uint64(0) {
		return nil
	}
	c := int(candidate)
	if e.at(c) != e.atCursor() {
		return nil
	}
	if e.cursor-c > 0xFFFF {
		return nil
	}

	padding := 0
	for e.cursor+4+padding < len(e.input) && c+4+padding < len(e.input) &&
		e.input[e.cursor+4+padding] == e.input[c+4+padding] {
		padding++
	}
	return &duplicate{offset: uint16(e.cursor - c), padding: padding}
}

func writeExtLen(out []byte, n int) []byte {
	for n >= 0xFF {
		n -= 0xFF
		out = append(out, 0xFF)
	}
	return append(out, byte(n))
}

type block struct {
	literalLength int
	dup           *duplicate
}

func (e *encoder) popBlock() block {
	lit := 0
	for {
		if dup := e.findDuplicate(); dup != nil {
			e.stepForward(dup.padding + 4)
			return block{literalLength: lit, dup: dup}
		}
		if !e.stepForward(1) {
			return block{literalLength: lit, dup: nil}
		}
		lit++
	}
}

func (e *encoder) run() {
	for {
		start := e.cursor
		b := e.popBlock()

		var token byte
		if b.literalLength < 0xF {
			token = byte(b.literalLength) << 4
		} else {
			token = 0xF0
		}

		dupExtra := 0
		if b.dup != nil {
			dupExtra = b.dup.padding
		}
		if dupExtra < 0xF {
			token |= byte(dupExtra)
		} else {
			token |= 0xF
		}

		e.output = append(e.output, token)

		if b.literalLength >= 0xF {
			e.output = writeExtLen(e.output, b.literalLength-0xF)
		}
		e.output = append(e.output, e.input[start:start+b.literalLength]...)

		if b.dup == nil {
			break
		}
		e.output = append(e.output, byte(b.dup.offset), byte(b.dup.offset>>8))
		if dupExtra >= 0xF {
			e.output = writeExtLen(e.output, dupExtra-0xF)
		}
	}
}

// Decompress reverses Compress. It is a total function on any input
// Compress can produce; malformed input is rejected with ErrCorrupt
// rather than panicking or over-reading.
func Decompress(input []byte) ([]byte, error) {
	out := make([]byte, 0, len(input)*2)
	pos := 0

	readExtLen := func() (int, bool) {
		n := 0
		for {
			if pos >= len(input) {
				return 0, false
			}
			b := input[pos]
			pos++
			n += int(b)
			if b != 0xFF {
				return n, true
			}
		}
	}

	for {
		if pos >= len(input) {
			return nil, ErrCorrupt
		}
		token := input[pos]
		pos++

		litLen := int(token >> 4)
		if litLen == 0xF {
			ext, ok := readExtLen()
			if !ok {
				return nil, ErrCorrupt
			}
			litLen += ext
		}

		if pos+litLen > len(input) {
			return nil, ErrCorrupt
		}
		out = append(out, input[pos:pos+litLen]...)
		pos += litLen

		matchLen := int(token & 0xF)
		atEnd := pos >= len(input)
		if atEnd {
			break
		}

		if pos+2 > len(input) {
			return nil, ErrCorrupt
		}
		offset := int(binary.LittleEndian.Uint16(input[pos : pos+2]))
		pos += 2

		if matchLen == 0xF {
			ext, ok := readExtLen()
			if !ok {
				return nil, ErrCorrupt
			}
			matchLen += ext
		}
		matchLen += 4

		if offset == 0 || offset > len(out) {
			return nil, ErrCorrupt
		}
		start := len(out) - offset
		for i := 0; i < matchLen; i++ {
			out = append(out, out[start+i])
		}
	}

	return out, nil
}
