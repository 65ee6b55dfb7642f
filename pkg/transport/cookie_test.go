package transport_test

import (
	"net/http"
	"testing"

	"progressdb/nosqldb/pkg/transport"

	"github.com/stretchr/testify/require"
)

func TestCookieJarCapturesSessionCookieOnly(t *testing.T) {
	j := &transport.CookieJar{}
	headers := http.Header{}
	headers.Add("Set-Cookie", "unrelated=1; Path=/")
	headers.Add("Set-Cookie", "session=abc123; Path=/; HttpOnly")
	j.Observe(headers)

	out := http.Header{}
	j.Apply(out)
	require.Equal(t, "session=abc123", out.Get("Cookie"))
}

func TestCookieJarApplyIsNoopBeforeAnyObserve(t *testing.T) {
	j := &transport.CookieJar{}
	out := http.Header{}
	j.Apply(out)
	require.Empty(t, out.Get("Cookie"))
}

// TestCookieJarLastWriterWins pins spec §5's "last-writer-wins; racing
// updates are benign" rule for the session cookie.
func TestCookieJarLastWriterWins(t *testing.T) {
	j := &transport.CookieJar{}
	first := http.Header{}
	first.Add("Set-Cookie", "session=first")
	j.Observe(first)

	second := http.Header{}
	second.Add("Set-Cookie", "session=second")
	j.Observe(second)

	out := http.Header{}
	j.Apply(out)
	require.Equal(t, "session=second", out.Get("Cookie"))
}
