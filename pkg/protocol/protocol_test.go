package protocol_test

import (
	"testing"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/protocol"
	"progressdb/nosqldb/pkg/wirebinary"

	"github.com/stretchr/testify/require"
)

// a private test-only opcode, registered at all three versions, so this
// package can exercise Register/Serialize/Deserialize without depending on
// pkg/ops (which would create an import cycle back onto protocol).
const testOp wirebinary.OpCode = 200

type echoReq struct{ payload int32 }

func init() {
	ser := func(buf *buffer.ResizableBuffer, req interface{}) error {
		wirebinary.WriteInt(buf, req.(*echoReq).payload)
		return nil
	}
	de := func(r *buffer.Reader, req interface{}) (interface{}, error) {
		v, err := wirebinary.ReadInt(r)
		return v, err
	}
	protocol.Register(wirebinary.V4, testOp, ser, de)
	protocol.Register(wirebinary.V3, testOp, ser, de)
	protocol.Register(wirebinary.V2, testOp, ser, de)
}

// TestManagerStartsAtV4 pins spec §4.5 "start the session at V4".
func TestManagerStartsAtV4(t *testing.T) {
	m := protocol.NewManager()
	require.Equal(t, wirebinary.V4, m.ActiveVersion())
}

// TestDowngradeSequenceAndFloor exercises spec §4.5's fixed decrement
// order V4->V3->V2 and its no-op floor at V2.
func TestDowngradeSequenceAndFloor(t *testing.T) {
	m := protocol.NewManager()

	ok, v := m.Downgrade(wirebinary.V4)
	require.True(t, ok)
	require.Equal(t, wirebinary.V3, v)
	require.Equal(t, wirebinary.V3, m.ActiveVersion())

	ok, v = m.Downgrade(wirebinary.V3)
	require.True(t, ok)
	require.Equal(t, wirebinary.V2, v)
	require.Equal(t, wirebinary.V2, m.ActiveVersion())

	ok, v = m.Downgrade(wirebinary.V2)
	require.False(t, ok)
	require.Equal(t, wirebinary.V2, v)
}

// TestDowngradeSkipsOnStaleUsedVersion documents the race rule: a downgrade
// request encoded against a version that is no longer current is ignored
// rather than decrementing further.
func TestDowngradeSkipsOnStaleUsedVersion(t *testing.T) {
	m := protocol.NewManager()
	ok, _ := m.Downgrade(wirebinary.V4)
	require.True(t, ok)
	require.Equal(t, wirebinary.V3, m.ActiveVersion())

	// A late-arriving downgrade signal for a request that was encoded
	// against V4, now that the manager has already moved to V3.
	ok, v := m.Downgrade(wirebinary.V4)
	require.False(t, ok)
	require.Equal(t, wirebinary.V3, v)
	require.Equal(t, wirebinary.V3, m.ActiveVersion())
}

// TestIsUnsupportedProtocolSignal pins the two reserved byte values that
// can never be valid NSON type tags at V4 (spec §4.5, DESIGN.md Open
// Question decision #2).
func TestIsUnsupportedProtocolSignal(t *testing.T) {
	require.True(t, protocol.IsUnsupportedProtocolSignal(wirebinary.V4, 17))
	require.True(t, protocol.IsUnsupportedProtocolSignal(wirebinary.V4, 24))
	require.False(t, protocol.IsUnsupportedProtocolSignal(wirebinary.V4, 2))
	require.False(t, protocol.IsUnsupportedProtocolSignal(wirebinary.V3, 17))
	require.False(t, protocol.IsUnsupportedProtocolSignal(wirebinary.V2, 24))
}

// TestSerializeDeserializeRoundTrip exercises Manager.Serialize writing the
// serial-version+opcode framing plus the registered body, and
// protocol.Deserialize reading the body back given that recorded version.
func TestSerializeDeserializeRoundTrip(t *testing.T) {
	m := protocol.NewManager()
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)

	usedVersion, err := m.Serialize(buf, testOp, &echoReq{payload: 99})
	require.NoError(t, err)
	require.Equal(t, wirebinary.V4, usedVersion)

	r := buf.Reader()
	gotVersion, err := wirebinary.ReadSerialVersion(r)
	require.NoError(t, err)
	require.Equal(t, wirebinary.V4, gotVersion)
	opByte, err := r.Uint8()
	require.NoError(t, err)
	require.Equal(t, testOp, wirebinary.OpCode(opByte))

	result, err := protocol.Deserialize(usedVersion, r, testOp, &echoReq{})
	require.NoError(t, err)
	require.Equal(t, int32(99), result)
}

// TestSerializeUnregisteredOpcodeFails covers the error path when no
// serialize/deserialize pair is registered for an opcode at a version.
func TestSerializeUnregisteredOpcodeFails(t *testing.T) {
	m := protocol.NewManager()
	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)
	_, err := m.Serialize(buf, wirebinary.OpCode(250), &echoReq{})
	require.Error(t, err)
}
