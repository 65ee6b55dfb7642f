// Package ops implements the operation registry of spec §4.8: one
// descriptor per request kind, each owning its defaults/validation and
// its serialize/deserialize codec registered into a protocol.Manager.
package ops

import (
	"time"

	"progressdb/nosqldb/pkg/wirebinary"

	"github.com/cockroachdb/errors"
)

// Size limits enforced by Validate (spec §4.8).
const (
	MaxRequestSize      = 2 * 1024 * 1024
	MaxBatchRequestSize = 25 * 1024 * 1024
	MaxBatchOps         = 50
)

// DefaultRequestTimeout is used when neither the call nor the client sets
// one.
const DefaultRequestTimeout = 5 * time.Second

// Options carries the per-call settings that every operation inherits
// from client defaults via deep merge (spec §4.8 applyDefaults). Pointer
// fields distinguish "not set, inherit from client" from an explicit
// zero value.
type Options struct {
	Timeout     *time.Duration
	Consistency *wirebinary.Consistency
	Durability  *wirebinary.Durability
	ReturnRow   *bool
	Compartment *string
	Namespace   *string
}

// Merge returns a new Options with every unset field in o filled from
// defaults. Call-site options always win over client defaults; the
// service type, retry handler, and auth provider are deliberately not
// part of Options because spec §4.8 forbids overriding them per call.
func (o Options) Merge(defaults Options) Options {
	out := o
	if out.Timeout == nil {
		out.Timeout = defaults.Timeout
	}
	if out.Consistency == nil {
		out.Consistency = defaults.Consistency
	}
	if out.Durability == nil {
		out.Durability = defaults.Durability
	}
	if out.ReturnRow == nil {
		out.ReturnRow = defaults.ReturnRow
	}
	if out.Compartment == nil {
		out.Compartment = defaults.Compartment
	}
	if out.Namespace == nil {
		out.Namespace = defaults.Namespace
	}
	return out
}

// TimeoutOrDefault resolves the effective timeout.
func (o Options) TimeoutOrDefault() time.Duration {
	if o.Timeout != nil {
		return *o.Timeout
	}
	return DefaultRequestTimeout
}

// ConsistencyOrDefault resolves the effective consistency, defaulting to
// EVENTUAL for reads (the cheaper, more common case).
func (o Options) ConsistencyOrDefault() wirebinary.Consistency {
	if o.Consistency != nil {
		return *o.Consistency
	}
	return wirebinary.ConsistencyEventual
}

// DurabilityOrDefault resolves the effective durability for writes.
func (o Options) DurabilityOrDefault() wirebinary.Durability {
	if o.Durability != nil {
		return *o.Durability
	}
	return wirebinary.Durability{}
}

// ReturnRowOrDefault resolves whether conditional writes should return
// the existing row on failure.
func (o Options) ReturnRowOrDefault() bool {
	if o.ReturnRow != nil {
		return *o.ReturnRow
	}
	return false
}

func checkSize(n int, limit int, what string) error {
	if n > limit {
		return errors.Newf("ops: %s size %d exceeds limit %d", what, n, limit)
	}
	return nil
}
