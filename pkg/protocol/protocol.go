// Package protocol holds the per-version serialize/deserialize dispatch
// tables (spec §4.5, §4.8) and the per-client active-version state
// machine. Operations register a SerializeFunc/DeserializeFunc pair per
// opcode per version at package init time; the registry is process-wide
// and immutable after init, replacing the source driver's per-operation
// subclass hierarchy with plain maps of function pairs (spec §9 design
// note). Manager instances (one per Client) each track their own active
// version independently, since protocol downgrade is a per-connection
// concern (spec §5 "Protocol manager pointer: a single word").
package protocol

import (
	"sync/atomic"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/wirebinary"

	"github.com/cockroachdb/errors"
)

// SerializeFunc writes one operation's request body (after the serial
// version + opcode framing, which Manager.Serialize writes itself).
type SerializeFunc func(buf *buffer.ResizableBuffer, req interface{}) error

// DeserializeFunc reads one operation's response body (after whatever
// envelope framing the version requires; V2/V3 callers read the leading
// error code themselves, V4 callers get the raw NSON cursor).
type DeserializeFunc func(r *buffer.Reader, req interface{}) (interface{}, error)

type opFuncs struct {
	serialize   SerializeFunc
	deserialize DeserializeFunc
}

var registry = map[wirebinary.SerialVersion]map[wirebinary.OpCode]opFuncs{
	wirebinary.V4: {},
	wirebinary.V3: {},
	wirebinary.V2: {},
}

// Register installs the serialize/deserialize pair for op at version v.
// Called from each operation package's init function in pkg/ops.
func Register(v wirebinary.SerialVersion, op wirebinary.OpCode, ser SerializeFunc, de DeserializeFunc) {
	registry[v][op] = opFuncs{serialize: ser, deserialize: de}
}

// Manager tracks one client's active protocol version and implements the
// downgrade rule (spec §4.5). Dispatch is always against the process-wide
// registry.
type Manager struct {
	active atomic.Int32 // wirebinary.SerialVersion, stored as int32
}

// NewManager returns a Manager starting the session at V4 (NSON), per
// spec §4.5 "Start the session at V4".
func NewManager() *Manager {
	m := &Manager{}
	m.active.Store(int32(wirebinary.V4))
	return m
}

// ActiveVersion returns the protocol version currently in use.
func (m *Manager) ActiveVersion() wirebinary.SerialVersion {
	return wirebinary.SerialVersion(m.active.Load())
}

// Downgrade decrements the active version by one step (V4 -> V3 -> V2),
// per spec §4.5's fixed decrement order. It is a no-op once already at
// V2. usedVersion is the version the failed request was encoded against;
// downgrade only happens if it still matches the current active version
// (the race-handling rule in spec §4.5/§4.6: "if they differ, retry
// without decrementing further").
func (m *Manager) Downgrade(usedVersion wirebinary.SerialVersion) (downgraded bool, newVersion wirebinary.SerialVersion) {
	current := wirebinary.SerialVersion(m.active.Load())
	if usedVersion != current {
		return false, current
	}
	var next wirebinary.SerialVersion
	switch current {
	case wirebinary.V4:
		next = wirebinary.V3
	case wirebinary.V3:
		next = wirebinary.V2
	default:
		return false, current
	}
	if m.active.CompareAndSwap(int32(current), int32(next)) {
		return true, next
	}
	return false, wirebinary.SerialVersion(m.active.Load())
}

// Serialize writes the serial version, opcode, and the operation's body
// for the active version, returning the version it encoded against (the
// caller must remember this for the downgrade race check in §4.5/§4.6).
func (m *Manager) Serialize(buf *buffer.ResizableBuffer, op wirebinary.OpCode, req interface{}) (wirebinary.SerialVersion, error) {
	v := m.ActiveVersion()
	funcs, ok := registry[v][op]
	if !ok {
		return v, errors.Newf("protocol: opcode %d not registered at version %d", op, v)
	}
	wirebinary.WriteSerialVersion(buf, v)
	wirebinary.WriteOpCode(buf, op)
	if err := funcs.serialize(buf, req); err != nil {
		return v, err
	}
	return v, nil
}

// Deserialize reads a response body for op at version v (the version the
// request was encoded against, not necessarily the current active
// version, since a concurrent downgrade may have happened mid-flight).
func Deserialize(v wirebinary.SerialVersion, r *buffer.Reader, op wirebinary.OpCode, req interface{}) (interface{}, error) {
	funcs, ok := registry[v][op]
	if !ok {
		return nil, errors.Newf("protocol: opcode %d not registered at version %d", op, v)
	}
	return funcs.deserialize(r, req)
}

// IsUnsupportedProtocolSignal reports whether the tag/error-code byte of
// a response, read at version v, indicates the server doesn't understand
// that version (spec §4.5 downgrade rule; see DESIGN.md Open Question
// decision #2). Every response this driver parses opens with the 2-byte
// serial-version prefix (SPEC_FULL.md "SUPPLEMENTED FEATURES"), so the
// byte this function inspects is resp.Body[2], not resp.Body[0] — the
// caller is responsible for skipping the prefix before indexing in. At
// V4 that byte is an NSON type tag (0-12); codes 17 and 24 can never
// appear there, so seeing either means the server replied in the older
// binary error-code framing instead.
func IsUnsupportedProtocolSignal(v wirebinary.SerialVersion, tagByte byte) bool {
	if v != wirebinary.V4 {
		return false
	}
	return tagByte == 17 || tagByte == 24
}
