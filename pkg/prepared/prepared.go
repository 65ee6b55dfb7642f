// Package prepared implements PreparedStatement: the server-returned
// opaque query blob plus the driver-side bookkeeping layered on top of it
// (spec §3 "PreparedStatement").
package prepared

import (
	"sync"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/wirebinary"

	"github.com/cockroachdb/errors"
)

const prefixHashLen = 32

// scratchPool backs parsePrefix's private cursor; it is unrelated to the
// pool a Client uses for request/response bodies.
var scratchPool = buffer.NewPool()

// PreparedStatement is immutable once returned from Prepare except for its
// attached topology info and bind-variable map, which a later query on the
// same table may refresh in place.
type PreparedStatement struct {
	SQLText string
	Blob    []byte

	Namespace string
	TableName string
	OpCode    wirebinary.OpCode

	QueryPlan       *string
	DriverQueryPlan []byte // nil means a simple query, handled entirely server-side

	mu            sync.RWMutex
	bindVariables map[string]int
	topology      wirebinary.TopologyInfo
}

// New builds a PreparedStatement from a freshly received blob, extracting
// the driver-visible namespace/table/opcode prefix.
func New(sqlText string, blob []byte) (*PreparedStatement, error) {
	ns, table, op, err := parsePrefix(blob)
	if err != nil {
		return nil, err
	}
	return &PreparedStatement{
		SQLText:   sqlText,
		Blob:      blob,
		Namespace: ns,
		TableName: table,
		OpCode:    op,
		topology:  wirebinary.TopologyInfo{SeqNum: -1},
	}, nil
}

// parsePrefix reads {4-byte length, 32-byte hash, 1-byte table count,
// namespace string, table string, opcode byte} from the front of blob.
// It operates on a private scratch buffer loaded with a copy of blob, so
// it never disturbs whatever cursor the caller used to extract blob from
// the response in the first place (spec §4.3: "parsed in-place without
// advancing the logical read cursor").
func parsePrefix(blob []byte) (namespace, table string, op wirebinary.OpCode, err error) {
	scratch := scratchPool.Acquire()
	defer scratchPool.Release(scratch)
	scratch.AppendBytes(blob)
	r := scratch.Reader()

	if _, err = r.Int32BE(); err != nil {
		return "", "", 0, errors.Wrap(err, "prepared: read prefix length")
	}
	if _, err = r.Bytes(prefixHashLen); err != nil {
		return "", "", 0, errors.Wrap(err, "prepared: read prefix hash")
	}
	if _, err = r.Uint8(); err != nil {
		return "", "", 0, errors.Wrap(err, "prepared: read table count")
	}
	nsp, err := wirebinary.ReadString(r)
	if err != nil {
		return "", "", 0, errors.Wrap(err, "prepared: read namespace")
	}
	tbl, err := wirebinary.ReadString(r)
	if err != nil {
		return "", "", 0, errors.Wrap(err, "prepared: read table name")
	}
	opByte, err := r.Uint8()
	if err != nil {
		return "", "", 0, errors.Wrap(err, "prepared: read opcode")
	}
	if nsp != nil {
		namespace = *nsp
	}
	if tbl != nil {
		table = *tbl
	}
	return namespace, table, wirebinary.OpCode(opByte), nil
}

// Topology returns the currently cached topology info.
func (p *PreparedStatement) Topology() wirebinary.TopologyInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.topology
}

// UpdateTopology replaces the cached topology info if t carries a higher
// sequence number (spec §3 "Topology info" invariant).
func (p *PreparedStatement) UpdateTopology(t wirebinary.TopologyInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topology.Supersedes(t) {
		p.topology = t
	}
}

// BindVariables returns the cached name->position map, or nil if none has
// been attached yet.
func (p *PreparedStatement) BindVariables() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bindVariables
}

// SetBindVariables attaches (or replaces) the bind-variable map.
func (p *PreparedStatement) SetBindVariables(m map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindVariables = m
}

// ReadResult deserializes a PrepareOp response body (spec §4.3): an
// opaque length-prefixed blob, an optional query-plan printout, an
// optional driver-side query plan, two unused counters, a variable count,
// then that many name/position pairs.
func ReadResult(r *buffer.Reader, sqlText string) (*PreparedStatement, error) {
	blob, err := wirebinary.ReadBinary2(r)
	if err != nil {
		return nil, errors.Wrap(err, "prepared: read statement blob")
	}
	ps, err := New(sqlText, blob)
	if err != nil {
		return nil, err
	}
	ps.QueryPlan, err = wirebinary.ReadString(r)
	if err != nil {
		return nil, errors.Wrap(err, "prepared: read query plan printout")
	}
	ps.DriverQueryPlan, err = wirebinary.ReadBinary(r)
	if err != nil {
		return nil, errors.Wrap(err, "prepared: read driver query plan")
	}
	if _, err = wirebinary.ReadInt(r); err != nil { // unused counter 1
		return nil, errors.Wrap(err, "prepared: read unused counter")
	}
	if _, err = wirebinary.ReadInt(r); err != nil { // unused counter 2
		return nil, errors.Wrap(err, "prepared: read unused counter")
	}
	varCount, err := wirebinary.ReadInt(r)
	if err != nil {
		return nil, errors.Wrap(err, "prepared: read variable count")
	}
	if varCount > 0 {
		vars := make(map[string]int, varCount)
		for i := int32(0); i < varCount; i++ {
			name, err := wirebinary.ReadString(r)
			if err != nil {
				return nil, errors.Wrap(err, "prepared: read bind variable name")
			}
			pos, err := wirebinary.ReadInt(r)
			if err != nil {
				return nil, errors.Wrap(err, "prepared: read bind variable position")
			}
			if name != nil {
				vars[*name] = int(pos)
			}
		}
		ps.SetBindVariables(vars)
	}
	return ps, nil
}
