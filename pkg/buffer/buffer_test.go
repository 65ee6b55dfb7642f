package buffer_test

import (
	"testing"

	"progressdb/nosqldb/pkg/buffer"

	"github.com/stretchr/testify/require"
)

// TestGrowthAtArbitraryOffset exercises spec §8 property 3: writing at an
// offset extends length to max(previous length, offset+width) and a
// subsequent Slice(0, length) returns exactly those bytes.
func TestGrowthAtArbitraryOffset(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)

	require.Equal(t, 0, buf.Len())
	buf.WriteUint32BE(0xdeadbeef, 10)
	require.Equal(t, 14, buf.Len())

	b, err := buf.Slice(0, buf.Len())
	require.NoError(t, err)
	require.Len(t, b, 14)
	for i := 0; i < 10; i++ {
		require.Equal(t, byte(0), b[i], "gap byte %d should be zero-filled", i)
	}

	got, err := buf.ReadUint32BE(10)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), got)

	// A write entirely inside the existing length doesn't shrink it.
	buf.WriteUint8(0xff, 2)
	require.Equal(t, 14, buf.Len())
}

func TestReadPastLengthFails(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)
	buf.WriteUint8(1, 0)
	_, err := buf.ReadUint32BE(0)
	require.Error(t, err)
}

func TestAppendBytesAndSlice(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)
	buf.AppendBytes([]byte("hello"))
	buf.AppendBytes([]byte(" world"))
	b, err := buf.Slice(0, buf.Len())
	require.NoError(t, err)
	require.Equal(t, "hello world", string(b))
}

func TestDoubleRoundTrip(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)
	buf.WriteDoubleBE(3.14159265, 0)
	v, err := buf.ReadDoubleBE(0)
	require.NoError(t, err)
	require.Equal(t, 3.14159265, v)
}

// TestPoolDoubleReleasePanics documents the programming-error contract
// (spec §4.1 "a double-release or use-after-release is a programming
// error").
func TestPoolDoubleReleasePanics(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	pool.Release(buf)
	require.Panics(t, func() { pool.Release(buf) })
}

func TestPoolInUseAccounting(t *testing.T) {
	pool := buffer.NewPool()
	require.Equal(t, 0, pool.InUse())
	b1 := pool.Acquire()
	b2 := pool.Acquire()
	require.Equal(t, 2, pool.InUse())
	pool.Release(b1)
	require.Equal(t, 1, pool.InUse())
	pool.Release(b2)
	require.Equal(t, 0, pool.InUse())
}

// TestClearResetsLengthNotCapacity exercises the reuse-without-realloc
// path the request pipeline depends on between attempts.
func TestClearResetsLengthNotCapacity(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)
	buf.AppendBytes(make([]byte, 256))
	capBefore := buf.Cap()
	buf.Clear()
	require.Equal(t, 0, buf.Len())
	require.Equal(t, capBefore, buf.Cap())
}

// TestReaderRebindsToOffsetZero documents the cached-reader optimization
// (spec §4.1/§9): calling Reader() again always restarts the cursor at 0,
// even after a previous Reader() call advanced it.
func TestReaderRebindsToOffsetZero(t *testing.T) {
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)
	buf.AppendBytes([]byte{1, 2, 3})

	r := buf.Reader()
	v, err := r.Uint8()
	require.NoError(t, err)
	require.Equal(t, byte(1), v)
	require.Equal(t, 1, r.Offset())

	r2 := buf.Reader()
	require.Same(t, r, r2, "Reader() should return the same cached scratch object")
	require.Equal(t, 0, r2.Offset())
	v2, err := r2.Uint8()
	require.NoError(t, err)
	require.Equal(t, byte(1), v2)
}
