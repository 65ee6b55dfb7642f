package nosqlerr_test

import (
	"testing"

	"progressdb/nosqldb/pkg/nosqlerr"

	"github.com/stretchr/testify/require"
)

func TestServerResolvesRetryableFromCodeTable(t *testing.T) {
	e := nosqlerr.Server(nosqlerr.CodeReadLimitExceeded, "throttled")
	require.True(t, e.Retryable)
	require.Equal(t, nosqlerr.KindServer, e.Kind)

	e = nosqlerr.Server(nosqlerr.CodeIllegalArgument, "bad arg")
	require.False(t, e.Retryable)
}

func TestUnsupportedProtocolIsAlwaysRetryable(t *testing.T) {
	e := nosqlerr.UnsupportedProtocol("server rejected version")
	require.True(t, e.Retryable)
	require.Equal(t, nosqlerr.KindUnsupportedProtocol, e.Kind)
	require.Equal(t, nosqlerr.CodeUnsupportedProtocol, e.Code)
}

func TestNetworkIsAlwaysRetryable(t *testing.T) {
	require.True(t, nosqlerr.Network(nil, "dial failed").Retryable)
}

// TestArgumentAndProtocolAreNotRetryableByDefault covers the two
// fail-fast kinds: caller misuse and malformed-response parsing.
func TestArgumentAndProtocolAreNotRetryableByDefault(t *testing.T) {
	require.False(t, nosqlerr.Argument("table name required").Retryable)
	require.False(t, nosqlerr.Protocol(nil, "short read").Retryable)
}

// TestWithRequestDoesNotMutateOriginal confirms WithRequest returns an
// independent copy rather than mutating an error another goroutine might
// also hold (spec §7 concurrent-attempt safety).
func TestWithRequestDoesNotMutateOriginal(t *testing.T) {
	orig := nosqlerr.Argument("bad input")
	withReq := orig.WithRequest("some-request")
	require.Nil(t, orig.Request)
	require.Equal(t, "some-request", withReq.Request)
}

func TestErrorMessageIncludesCodeOnlyWhenSet(t *testing.T) {
	argErr := nosqlerr.Argument("missing table")
	require.NotContains(t, argErr.Error(), "code=")

	srvErr := nosqlerr.Server(nosqlerr.CodeTableNotFound, "no such table")
	require.Contains(t, srvErr.Error(), "code=2")
}

// TestAsUnwrapsThroughWrap exercises the cockroachdb/errors-backed
// As/Wrap helpers against a chain built the way the pipeline builds one.
func TestAsUnwrapsThroughWrap(t *testing.T) {
	base := nosqlerr.Timeout(3, nil)
	wrapped := nosqlerr.Wrap(base, "attempt pipeline failed")

	var got *nosqlerr.Error
	require.True(t, nosqlerr.As(wrapped, &got))
	require.Equal(t, nosqlerr.KindTimeout, got.Kind)
	require.Equal(t, 3, got.Attempts)
}

func TestIsRetryableUnknownCodeDefaultsFalse(t *testing.T) {
	require.False(t, nosqlerr.IsRetryable(nosqlerr.Code(9999)))
}
