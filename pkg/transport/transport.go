// Package transport implements the HTTP send side of spec §4.5: a single
// POST per attempt, cookie capture/reuse, and the response classification
// (200 -> parse, 400 -> service error with body, other -> generic service
// error) that feeds the retry loop. Mirrors the teacher's
// pkg/httpx adapter-interface pattern: one Transport interface, two
// client-side implementations (net/http default, fasthttp alternate),
// the same pairing as the teacher's nethttp_adapter.go/fasthttp_adapter.go.
package transport

import (
	"context"
	"net/http"
)

// Response is the raw HTTP result of one attempt, before any wire codec
// runs (spec §4.5 step 4).
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Transport sends one HTTP POST and returns the raw response. Send must
// not retain body past the call; callers copy what they need out of the
// returned Response. Implementations must honor ctx cancellation (spec §5
// "An in-flight HTTP request is cancelled by closing its connection").
type Transport interface {
	Send(ctx context.Context, url string, headers http.Header, body []byte) (Response, error)
	// Close releases any pooled connections the transport holds.
	Close()
}
