package protocol

import (
	"encoding/binary"
	"math"
)

// FrameSize is the number of bytes one hash frame occupies on the wire.
const FrameSize = 4

// HashSequence holds one 32-bit perceptual hash per analysis frame.
type HashSequence []uint32

// ToggleSet holds the pre-encoded toggle variants of a HashSequence. Every entry
// is exactly FrameSize*N bytes for a primary sequence of N frames.
type ToggleSet [][]byte

// EncodeFrameCount returns the 4-byte little-endian frame count part.
func EncodeFrameCount(n int) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(n))
	return b
}

// DecodeFrameCount reads a frame count part.
func DecodeFrameCount(b []byte) (int, error) {
	if len(b) != 4 {
		return 0, decodeErrorf("frame count is %d bytes, want 4", len(b))
	}
	n := binary.LittleEndian.Uint32(b)
	if n > math.MaxInt32 {
		return 0, decodeErrorf("frame count %d out of range", n)
	}
	return int(n), nil
}

// EncodeHashes packs the frames without a count prefix. This is the form of
// the hash part and of every toggle part.
func EncodeHashes(seq HashSequence) []byte {
	b := make([]byte, FrameSize*len(seq))
	for i, h := range seq {
		binary.LittleEndian.PutUint32(b[FrameSize*i:], h)
	}
	return b
}

// DecodeHashes unpacks n frames from b, which must hold exactly n frames.
func DecodeHashes(b []byte, n int) (HashSequence, error) {
	if n < 0 || len(b) != FrameSize*n {
		return nil, decodeErrorf("hash payload is %d bytes, want %d for %d frames", len(b), FrameSize*n, n)
	}
	seq := make(HashSequence, n)
	for i := range seq {
		seq[i] = binary.LittleEndian.Uint32(b[FrameSize*i:])
	}
	return seq, nil
}

// EncodeSequence returns the frame count followed by the frames: 4+4N bytes.
func EncodeSequence(seq HashSequence) []byte {
	b := make([]byte, 4, 4+FrameSize*len(seq))
	binary.LittleEndian.PutUint32(b, uint32(len(seq)))
	return append(b, EncodeHashes(seq)...)
}

// DecodeSequence is the inverse of EncodeSequence.
func DecodeSequence(b []byte) (HashSequence, error) {
	if len(b) < 4 {
		return nil, decodeErrorf("sequence is %d bytes, shorter than its count", len(b))
	}
	n, err := DecodeFrameCount(b[:4])
	if err != nil {
		return nil, err
	}
	return DecodeHashes(b[4:], n)
}

// NewToggleSet encodes each variant. Variants must all have the same length;
// Validate against the primary sequence before sending.
func NewToggleSet(variants ...HashSequence) ToggleSet {
	if len(variants) == 0 {
		return nil
	}
	ts := make(ToggleSet, len(variants))
	for i, v := range variants {
		ts[i] = EncodeHashes(v)
	}
	return ts
}

// Validate checks the toggle invariant for a primary sequence of n frames.
func (ts ToggleSet) Validate(n int) error {
	if len(ts) > math.MaxUint8 {
		return encodingErrorf("%d toggle variants do not fit the toggle count byte", len(ts))
	}
	want := FrameSize * n
	for i, t := range ts {
		if len(t) != want {
			return encodingErrorf("toggle variant %d is %d bytes, want %d", i, len(t), want)
		}
	}
	return nil
}

// Variant decodes entry k back to hash values.
func (ts ToggleSet) Variant(k int) (HashSequence, error) {
	if k < 0 || k >= len(ts) {
		return nil, decodeErrorf("toggle variant %d out of range", k)
	}
	return DecodeHashes(ts[k], len(ts[k])/FrameSize)
}

// DecodeIdentifier reads the 4-byte little-endian signed identifier of a submit reply.
func DecodeIdentifier(b []byte) (int32, error) {
	if len(b) != 4 {
		return 0, &DecodeError{Command: Submit, Length: len(b), Expected: 4}
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// EncodeIdentifier is used by servers answering a submit.
func EncodeIdentifier(id int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(id))
	return b
}
