// Package auth defines the AuthProvider contract the transport consumes
// (spec §4.9). Real signature-based cloud auth, instance/resource
// principals, and on-prem login tokens are explicitly out of scope (spec
// §1) — they are external collaborators that implement this interface.
// This package ships only the interface plus two trivial
// implementations used to exercise it in tests and demos.
package auth

import "context"

// Header is one outgoing HTTP header name/value pair an AuthProvider
// contributes to a request.
type Header struct {
	Name  string
	Value string
}

// Authorization is what GetAuthorization returns: either a single bearer
// token string (the common case) or an explicit header set (spec §4.9:
// "string | {header: value, ...}").
type Authorization struct {
	Bearer  string
	Headers []Header
}

// Request is the minimal view of an in-flight request an AuthProvider may
// need to compute a signature (spec §4.9: "may inspect req.buf ... and
// req.opt.compartment"). The root package's *Request satisfies this
// directly through its Body and Compartment methods; pkg/auth itself does
// not import the root package.
type Request interface {
	Body() []byte
	Compartment() string
}

// Provider is the contract the transport consumes. Implementations may
// suspend (network calls to mint/refresh a token) and may cache state
// across calls; GetAuthorization itself must otherwise be
// side-effect-free (spec §4.9).
type Provider interface {
	// GetAuthorization computes (or returns a cached) Authorization for
	// req. May return an error (e.g. failed to refresh a token).
	GetAuthorization(ctx context.Context, req Request) (Authorization, error)
}

// Initializer is implemented by providers needing one-time setup against
// the client's resolved configuration (spec §4.9 "onInit(config)").
type Initializer interface {
	OnInit(endpoint string) error
}

// Closer is implemented by providers holding background resources —
// timers, file watchers, an HTTPS agent — that must be released when the
// client shuts down (spec §4.9 "close()").
type Closer interface {
	Close() error
}

// ErrorHinter is implemented by providers that want to see the last
// authorization failure so they can invalidate a cached token (spec
// §4.9: "on a 401 response, the pipeline gives the provider a lastError
// hint so it can invalidate its cache").
type ErrorHinter interface {
	OnAuthError(err error)
}

// NoAuth is the trivial Provider for unsecured/on-prem-no-auth
// deployments: it contributes no headers at all.
type NoAuth struct{}

func (NoAuth) GetAuthorization(context.Context, Request) (Authorization, error) {
	return Authorization{}, nil
}
