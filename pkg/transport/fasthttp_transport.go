package transport

import (
	"context"
	"net/http"

	"github.com/valyala/fasthttp"

	"progressdb/nosqldb/pkg/nosqlerr"
)

// FastHTTPTransport is the alternate Transport backed by
// github.com/valyala/fasthttp, mirroring the teacher's fasthttp_adapter.go
// pairing with the net/http adapter — here on the client-sending side
// rather than the server-handling side. Selected via Config.Transport.
type FastHTTPTransport struct {
	client *fasthttp.Client
}

func NewFastHTTPTransport() *FastHTTPTransport {
	return &FastHTTPTransport{client: &fasthttp.Client{
		MaxConnsPerHost: 10,
	}}
}

func (t *FastHTTPTransport) Send(ctx context.Context, url string, headers http.Header, body []byte) (Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.SetBody(body)

	deadline, hasDeadline := ctx.Deadline()
	var err error
	if hasDeadline {
		err = t.client.DoDeadline(req, resp, deadline)
	} else {
		err = t.client.Do(req, resp)
	}
	if err != nil {
		return Response{}, nosqlerr.Network(err, "transport: fasthttp send failed")
	}

	hdr := make(http.Header)
	resp.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		hdr[key] = append(hdr[key], string(v))
	})
	// resp.Body() is only valid until the next release/reset; copy it out.
	bodyCopy := append([]byte(nil), resp.Body()...)
	return Response{Status: resp.StatusCode(), Headers: hdr, Body: bodyCopy}, nil
}

func (t *FastHTTPTransport) Close() {
	t.client.CloseIdleConnections()
}
