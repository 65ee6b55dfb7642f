package packedint_test

import (
	"bytes"
	"math"
	"math/big"
	"math/rand"
	"testing"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/packedint"

	"github.com/stretchr/testify/require"
)

func encodedBytes32(t *testing.T, v int32) []byte {
	t.Helper()
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)
	end := packedint.WriteSortedInt32(buf, 0, v)
	b, err := buf.Slice(0, end)
	require.NoError(t, err)
	return b
}

func encodedBytes64(t *testing.T, v int64) []byte {
	t.Helper()
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)
	end := packedint.WriteSortedInt64(buf, 0, v)
	b, err := buf.Slice(0, end)
	require.NoError(t, err)
	return b
}

// TestRoundTripInt32 exercises spec §8 property 1 for int32: decode(encode(v)) == v
// and the encoded size never exceeds MaxInt32EncodedLen.
func TestRoundTripInt32(t *testing.T) {
	values := []int32{0, 1, -1, 120, -119, 121, -120, math.MaxInt32, math.MinInt32, 1000, -1000, 1 << 20, -(1 << 20)}
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		values = append(values, int32(r.Uint32()))
	}
	pool := buffer.NewPool()
	for _, v := range values {
		buf := pool.Acquire()
		end := packedint.WriteSortedInt32(buf, 0, v)
		require.LessOrEqual(t, end, packedint.MaxInt32EncodedLen, "value %d", v)
		got, next, err := packedint.ReadSortedInt32(buf, 0)
		require.NoError(t, err)
		require.Equal(t, end, next)
		require.Equal(t, v, got, "round trip of %d", v)
		pool.Release(buf)
	}
}

// TestRoundTripInt64 is int32's sibling at 64 bits (spec §8 property 1).
func TestRoundTripInt64(t *testing.T) {
	values := []int64{0, 1, -1, 120, -119, 121, -120, math.MaxInt64, math.MinInt64, 1 << 40, -(1 << 40)}
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 500; i++ {
		values = append(values, r.Int63()-r.Int63())
	}
	pool := buffer.NewPool()
	for _, v := range values {
		buf := pool.Acquire()
		end := packedint.WriteSortedInt64(buf, 0, v)
		require.LessOrEqual(t, end, packedint.MaxInt64EncodedLen, "value %d", v)
		got, next, err := packedint.ReadSortedInt64(buf, 0)
		require.NoError(t, err)
		require.Equal(t, end, next)
		require.Equal(t, v, got, "round trip of %d", v)
		pool.Release(buf)
	}
}

// TestRoundTripBigInt exercises the arbitrary-precision path beyond
// int64's range (spec §4.2 "implementations must handle arbitrary-precision
// integers"), using ±2^64, which still fits the format's 8 magnitude bytes.
func TestRoundTripBigInt(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 64)
	negHuge := new(big.Int).Neg(huge)
	for _, v := range []*big.Int{huge, negHuge, big.NewInt(0), big.NewInt(-1)} {
		pool := buffer.NewPool()
		buf := pool.Acquire()
		end := packedint.WriteSortedBigInt(buf, 0, v)
		got, next, err := packedint.ReadSortedBigInt(buf, 0)
		require.NoError(t, err)
		require.Equal(t, end, next)
		require.Equal(t, 0, v.Cmp(got), "round trip of %s", v.String())
		pool.Release(buf)
	}
}

// TestOrderPreserving is spec §8 property 2: byte-lexicographic order of
// the encoded form matches numeric order.
func TestOrderPreservingInt32(t *testing.T) {
	values := []int32{math.MinInt32, -1 << 20, -1000, -120, -119, -1, 0, 1, 120, 121, 1000, 1 << 20, math.MaxInt32}
	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			a, b := encodedBytes32(t, values[i]), encodedBytes32(t, values[j])
			require.Negative(t, bytes.Compare(a, b), "encode(%d) should sort before encode(%d)", values[i], values[j])
		}
	}
}

func TestOrderPreservingInt64(t *testing.T) {
	values := []int64{math.MinInt64, -(1 << 40), -1000, -120, -119, -1, 0, 1, 120, 121, 1000, 1 << 40, math.MaxInt64}
	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			a, b := encodedBytes64(t, values[i]), encodedBytes64(t, values[j])
			require.Negative(t, bytes.Compare(a, b), "encode(%d) should sort before encode(%d)", values[i], values[j])
		}
	}
}

// TestReadPastEndOfBuffer confirms truncated input surfaces as an error
// rather than a panic (spec §4.2 "out-of-range failures surface as
// end-of-stream protocol errors").
func TestReadPastEndOfBuffer(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)
	packedint.WriteSortedInt64(buf, 0, math.MaxInt64)
	full, err := buf.Slice(0, buf.Len())
	require.NoError(t, err)

	truncated := pool.Acquire()
	defer pool.Release(truncated)
	truncated.AppendBytes(full[:len(full)-1])
	_, _, err = packedint.ReadSortedInt64(truncated, 0)
	require.Error(t, err)
}
