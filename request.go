package nosqldb

import (
	"progressdb/nosqldb/pkg/ops"
	"progressdb/nosqldb/pkg/wirebinary"
)

// Request wraps one in-flight operation with the per-attempt state the
// pipeline accumulates: the serialized wire bytes (for AuthProvider
// inspection, spec §4.9), the request id, and the protocol version it was
// last encoded against (for the downgrade race check, spec §4.5/§4.6).
type Request struct {
	Op ops.Op
	ID uint64

	compartment string
	namespace   string

	body        []byte
	usedVersion wirebinary.SerialVersion
	attempt     int
}

// Body implements auth.Request: the exact bytes that went on the wire for
// the current attempt (spec §4.9 "may inspect req.buf").
func (r *Request) Body() []byte { return r.body }

// Compartment implements auth.Request and reports the effective
// compartment/namespace header value for this request (spec §6's
// compartment/namespace header rule).
func (r *Request) Compartment() string { return r.compartment }

// Namespace returns the effective namespace for this request.
func (r *Request) Namespace() string { return r.namespace }

// Attempt returns the 0-based attempt count reached so far, for Observer
// callbacks and RetryHandler decisions.
func (r *Request) Attempt() int { return r.attempt }
