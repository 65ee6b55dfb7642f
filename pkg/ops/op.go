package ops

import "progressdb/nosqldb/pkg/wirebinary"

// Op is the common descriptor surface every operation request implements
// (spec §4.8). The pipeline in the root package drives a request purely
// through this interface, never switching on concrete type.
type Op interface {
	// OpCode identifies the wire opcode this request serializes as.
	OpCode() wirebinary.OpCode
	// TableName returns the table this operation targets, or "" if not
	// yet known (e.g. a query bound to a not-yet-prepared statement).
	TableName() string
	// Validate performs argument and range checks (spec §4.8).
	Validate() error
	// ShouldRetry reports whether this operation kind is ever retried.
	// DDL, list, usage, and prepare operations return false.
	ShouldRetry() bool
	// SupportsRateLimiting reports whether this op participates in the
	// per-table rate limiter control loop (spec §4.7).
	SupportsRateLimiting() bool
	// DoesReads/DoesWrites are rate-limiter hints, statically known for
	// most operations and corrected by onError for the rest (spec §4.7
	// "flip the corresponding hint to true in case detection was wrong").
	DoesReads() bool
	DoesWrites() bool
}

// ReadOp is implemented by operations that carry a consistency option.
type ReadOp interface {
	Op
	GetOptions() Options
}

// OptionsHolder is implemented by every operation that carries per-call
// Options, letting the pipeline apply client-default inheritance
// uniformly without switching on concrete type (spec §4.8 applyDefaults).
type OptionsHolder interface {
	Op
	GetOptions() Options
	SetOptions(Options)
}
