// Package nosqlerr implements the error taxonomy of spec §7: error kinds
// (argument, protocol, service, network, timeout, typed server error,
// unsupported-protocol) plus the propagation policy of attaching the
// originating request to every outgoing error. Built on
// github.com/cockroachdb/errors for Wrap/Is/As semantics.
package nosqlerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies an error for the retry loop (spec §7).
type Kind int

const (
	KindArgument Kind = iota
	KindProtocol
	KindService
	KindNetwork
	KindTimeout
	KindServer
	KindUnsupportedProtocol
)

func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "argument"
	case KindProtocol:
		return "protocol"
	case KindService:
		return "service"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindServer:
		return "server"
	case KindUnsupportedProtocol:
		return "unsupported_protocol"
	default:
		return "unknown"
	}
}

// Code is the server's typed error code enum (spec §7). The numeric
// values mirror the wire protocol's ERROR_CODE field and must not be
// renumbered.
type Code int

const (
	CodeNone                     Code = 0
	CodeUnknownOperation         Code = 1
	CodeTableNotFound            Code = 2
	CodeIndexNotFound            Code = 3
	CodeIllegalArgument          Code = 4
	CodeRowSizeLimitExceeded     Code = 5
	CodeKeySizeLimitExceeded     Code = 6
	CodeBatchOpNumberLimitExceeded Code = 7
	CodeRequestSizeLimitExceeded Code = 8
	CodeTableExists              Code = 9
	CodeIndexExists              Code = 10
	CodeInvalidAuthorization     Code = 11
	CodeInsufficientPermission   Code = 12
	CodeResourceExists           Code = 13
	CodeResourceNotFound         Code = 14
	CodeTableLimitExceeded       Code = 15
	CodeIndexLimitExceeded       Code = 16
	CodeBadProtocolMessage       Code = 17
	CodeEvolutionLimitExceeded   Code = 18
	CodeTableDeploymentLimitExceeded Code = 19
	CodeTenantDeploymentLimitExceeded Code = 20
	CodeNoSQLRestrictedError     Code = 21
	CodeReadLimitExceeded        Code = 22
	CodeWriteLimitExceeded       Code = 23
	CodeSizeLimitExceeded        Code = 24
	CodeOperationLimitExceeded   Code = 25
	CodeUnsupportedProtocol      Code = 26
	CodeRetryAuthentication      Code = 29
	CodeServerError              Code = 50
	CodeUnknownError              Code = 51
	CodeIllegalState              Code = 52
	CodeTableNotReady              Code = 53
	CodeSecurityInfoUnavailable    Code = 54
	CodeOperationNotSupported      Code = 55
	CodeNetworkError                Code = 56
	CodeRequestTimeout               Code = 57
)

var retryable = map[Code]bool{
	CodeTableLimitExceeded:            false,
	CodeReadLimitExceeded:             true,
	CodeWriteLimitExceeded:            true,
	CodeSizeLimitExceeded:             false,
	CodeOperationLimitExceeded:        true,
	CodeUnsupportedProtocol:           true,
	CodeRetryAuthentication:           true,
	CodeServerError:                   true,
	CodeTableNotReady:                 true,
	CodeSecurityInfoUnavailable:       true,
	CodeNetworkError:                  true,
	CodeRequestTimeout:                false,
	CodeInvalidAuthorization:          false,
	CodeIllegalArgument:               false,
	CodeTableNotFound:                 false,
}

// IsRetryable reports whether the server considers this error code
// retryable by default. Individual operations may still override via
// their own shouldRetry (spec §4.8).
func IsRetryable(c Code) bool { return retryable[c] }

// Error is the single error type this package constructs. Kind
// discriminates which spec §7 bucket it belongs to; Code carries the
// server error code for KindServer and KindUnsupportedProtocol, and the
// HTTP status for KindService. It is CodeNone for every other Kind.
type Error struct {
	Kind      Kind
	Code      Code
	Message   string
	Retryable bool
	Request   interface{} // *nosqldb.Request, attached by the pipeline
	Attempts  int         // meaningful for KindTimeout
	cause     error
}

func (e *Error) Error() string {
	if e.Code != CodeNone {
		return fmt.Sprintf("nosqldb: %s error (code=%d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("nosqldb: %s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithRequest returns a shallow copy of e with Request attached,
// implementing §7's "the pipeline attaches the request object to every
// outgoing error" without mutating an error another goroutine might also
// hold a reference to.
func (e *Error) WithRequest(req interface{}) *Error {
	cp := *e
	cp.Request = req
	return &cp
}

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// Argument builds a caller-misuse error: fail fast, never retried.
func Argument(format string, args ...interface{}) *Error {
	return newErr(KindArgument, fmt.Sprintf(format, args...), nil)
}

// Protocol builds a malformed-response error: never retried, fatal for
// the current attempt.
func Protocol(cause error, format string, args ...interface{}) *Error {
	return newErr(KindProtocol, fmt.Sprintf(format, args...), cause)
}

// Service builds a non-200 HTTP error carrying the server's detail body.
func Service(status int, detail string) *Error {
	e := newErr(KindService, detail, nil)
	e.Code = Code(status)
	return e
}

// Network builds a retryable socket/transport failure.
func Network(cause error, format string, args ...interface{}) *Error {
	e := newErr(KindNetwork, fmt.Sprintf(format, args...), cause)
	e.Retryable = true
	return e
}

// Timeout builds a deadline-exceeded error carrying the attempt count and
// the last underlying cause (spec §7).
func Timeout(attempts int, cause error) *Error {
	e := newErr(KindTimeout, fmt.Sprintf("deadline exceeded after %d attempt(s)", attempts), cause)
	e.Attempts = attempts
	return e
}

// Server builds a typed server error with its retryability flag resolved
// from the code table (callers may override Retryable afterward).
func Server(code Code, message string) *Error {
	e := newErr(KindServer, message, nil)
	e.Code = code
	e.Retryable = IsRetryable(code)
	return e
}

// UnsupportedProtocol builds the special error that triggers protocol
// downgrade in the transport (spec §4.5/§7).
func UnsupportedProtocol(message string) *Error {
	e := newErr(KindUnsupportedProtocol, message, nil)
	e.Code = CodeUnsupportedProtocol
	e.Retryable = true
	return e
}

// As/Is helpers delegate to cockroachdb/errors so callers can use the
// standard library idiom (errors.As(err, &nosqlerr.Error{})) against
// wrapped chains produced anywhere in the pipeline.
func As(err error, target interface{}) bool { return errors.As(err, target) }
func Is(err, target error) bool             { return errors.Is(err, target) }
func Wrap(err error, msg string) error      { return errors.Wrap(err, msg) }
