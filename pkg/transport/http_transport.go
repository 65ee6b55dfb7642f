package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"progressdb/nosqldb/pkg/nosqlerr"
)

// NetHTTPTransport is the default Transport, backed by a shared
// *http.Client with keep-alive connection pooling (spec §5 "The
// transport uses a single shared HTTP connection pool").
type NetHTTPTransport struct {
	client *http.Client
}

// NewNetHTTPTransport builds a transport whose per-attempt timeout is
// bounded by the caller via the context passed to Send, not by the
// underlying client's own Timeout field (so the retry loop's remaining-
// budget computation stays authoritative).
func NewNetHTTPTransport() *NetHTTPTransport {
	return &NetHTTPTransport{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (t *NetHTTPTransport) Send(ctx context.Context, url string, headers http.Header, body []byte) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, errors.Wrap(err, "transport: build request")
	}
	req.Header = headers
	resp, err := t.client.Do(req)
	if err != nil {
		return Response{}, nosqlerr.Network(err, "transport: HTTP send failed")
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, nosqlerr.Network(err, "transport: read response body")
	}
	return Response{Status: resp.StatusCode, Headers: resp.Header, Body: b}, nil
}

func (t *NetHTTPTransport) Close() {
	t.client.CloseIdleConnections()
}
