// Package packedint implements the sort-preserving variable-length signed
// integer encoding used throughout the wire protocol (spec §3/§4.2): the
// byte-lexicographic order of the encoded form matches the numeric order
// of the decoded value, which key encoding and continuation keys depend
// on.
//
// Single-byte region: bytes 0x08..0xF7 encode values in [-119, 120] as
// value+127. Below 0x08: negative multi-byte form, length = 0x08-b1,
// followed by that many magnitude bytes whose bits are stored complemented
// (0xFF-b) so that a more negative value — a larger magnitude — produces a
// lexicographically smaller byte string. Above 0xF7: positive multi-byte
// form, length = b1-0xF7, followed by that many magnitude bytes stored
// directly (ascending with value, no complement needed).
package packedint

import (
	"math/big"

	"progressdb/nosqldb/pkg/buffer"

	"github.com/cockroachdb/errors"
)

const (
	negativeMultiByteLimit = 0x08
	positiveMultiByteStart = 0xF7

	singleByteMin = -119
	singleByteMax = 120

	negAdjust = 119
	posAdjust = 121

	// MaxInt32EncodedLen is the largest number of bytes WriteSortedInt32
	// can emit.
	MaxInt32EncodedLen = 5
	// MaxInt64EncodedLen is the largest number of bytes WriteSortedInt64
	// can emit.
	MaxInt64EncodedLen = 9
)

// ErrOutOfRange is returned when a multi-byte length byte would require
// more bytes than the target width supports.
var ErrOutOfRange = errors.New("packedint: value out of range for width")

// WriteSortedInt32 writes v at off and returns the offset past the last
// byte written.
func WriteSortedInt32(buf *buffer.ResizableBuffer, off int, v int32) int {
	return writeSortedBig(buf, off, big.NewInt(int64(v)), 4)
}

// WriteSortedInt64 writes v at off and returns the offset past the last
// byte written.
func WriteSortedInt64(buf *buffer.ResizableBuffer, off int, v int64) int {
	return writeSortedBig(buf, off, big.NewInt(v), 8)
}

// WriteSortedBigInt writes a big.Int using the same encoding (spec §4.2:
// "implementations must handle arbitrary-precision integers when the
// host's native integer cannot represent the full signed 64-bit range").
// The format carries at most 8 magnitude bytes, so v must lie in
// [-(2^64+118), 2^64+120]: the full int64 range plus the values just past
// it that the adjusted magnitude still fits. No length byte exists for
// wider values.
func WriteSortedBigInt(buf *buffer.ResizableBuffer, off int, v *big.Int) int {
	return writeSortedBig(buf, off, v, 8)
}

var (
	bigSingleMin = big.NewInt(singleByteMin)
	bigSingleMax = big.NewInt(singleByteMax)
	bigNegAdjust = big.NewInt(negAdjust)
	bigPosAdjust = big.NewInt(posAdjust)
)

func writeSortedBig(buf *buffer.ResizableBuffer, off int, v *big.Int, maxWidth int) int {
	if v.Cmp(bigSingleMin) >= 0 && v.Cmp(bigSingleMax) <= 0 {
		return buf.WriteUint8(byte(v.Int64()+127), off)
	}

	if v.Sign() < 0 {
		// mag = -v - 119, always >= 1 here since v < -119.
		mag := new(big.Int).Neg(v)
		mag.Sub(mag, bigNegAdjust)
		magBytes := minimalBytes(mag)
		off = buf.WriteUint8(byte(negativeMultiByteLimit-len(magBytes)), off)
		return buf.WriteBytesAt(complement(magBytes), off)
	}

	// mag = v - 121, always >= 0 here since v > 120.
	mag := new(big.Int).Sub(v, bigPosAdjust)
	magBytes := minimalBytes(mag)
	off = buf.WriteUint8(byte(positiveMultiByteStart+len(magBytes)), off)
	return buf.WriteBytesAt(magBytes, off)
}

// minimalBytes returns the minimal big-endian representation of a
// non-negative integer, at least one byte (a zero value is one zero
// byte).
func minimalBytes(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) == 0 {
		return []byte{0}
	}
	return b
}

func complement(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = 0xFF - c
	}
	return out
}

// ReadSortedInt32 reads a packed int32 at off, returning the decoded value
// and the offset past the last byte consumed.
func ReadSortedInt32(buf *buffer.ResizableBuffer, off int) (int32, int, error) {
	v, next, err := readSortedBig(buf, off, 4)
	if err != nil {
		return 0, 0, err
	}
	return int32(v.Int64()), next, nil
}

// ReadSortedInt64 reads a packed int64 at off.
func ReadSortedInt64(buf *buffer.ResizableBuffer, off int) (int64, int, error) {
	v, next, err := readSortedBig(buf, off, 8)
	if err != nil {
		return 0, 0, err
	}
	return v.Int64(), next, nil
}

// ReadSortedBigInt reads a packed integer as a big.Int, for responses
// whose value may fall just outside int64 (at most 8 magnitude bytes, the
// range WriteSortedBigInt documents).
func ReadSortedBigInt(buf *buffer.ResizableBuffer, off int) (*big.Int, int, error) {
	return readSortedBig(buf, off, 8)
}

func readSortedBig(buf *buffer.ResizableBuffer, off int, maxWidth int) (*big.Int, int, error) {
	b1, err := buf.ReadUint8(off)
	if err != nil {
		return nil, 0, errors.Wrap(err, "packedint: read length byte")
	}
	off++

	if b1 >= negativeMultiByteLimit && b1 <= positiveMultiByteStart {
		return big.NewInt(int64(b1) - 127), off, nil
	}

	if b1 < negativeMultiByteLimit {
		n := int(negativeMultiByteLimit - b1)
		if n > maxWidth {
			return nil, 0, errors.Wrapf(ErrOutOfRange, "negative length %d exceeds width %d", n, maxWidth)
		}
		raw, err := buf.Slice(off, off+n)
		if err != nil {
			return nil, 0, errors.Wrap(err, "packedint: read negative magnitude")
		}
		off += n
		mag := new(big.Int).SetBytes(complement(raw))
		v := new(big.Int).Neg(mag)
		v.Sub(v, bigNegAdjust)
		return v, off, nil
	}

	n := int(b1 - positiveMultiByteStart)
	if n > maxWidth {
		return nil, 0, errors.Wrapf(ErrOutOfRange, "positive length %d exceeds width %d", n, maxWidth)
	}
	raw, err := buf.Slice(off, off+n)
	if err != nil {
		return nil, 0, errors.Wrap(err, "packedint: read positive magnitude")
	}
	off += n
	v := new(big.Int).SetBytes(raw)
	v.Add(v, bigPosAdjust)
	return v, off, nil
}
