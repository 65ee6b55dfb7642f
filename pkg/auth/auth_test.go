package auth_test

import (
	"context"
	"testing"

	"progressdb/nosqldb/pkg/auth"

	"github.com/stretchr/testify/require"
)

type fakeRequest struct {
	body        []byte
	compartment string
}

func (r fakeRequest) Body() []byte        { return r.body }
func (r fakeRequest) Compartment() string { return r.compartment }

func TestNoAuthContributesNoHeaders(t *testing.T) {
	authz, err := (auth.NoAuth{}).GetAuthorization(context.Background(), fakeRequest{})
	require.NoError(t, err)
	require.Equal(t, auth.Authorization{}, authz)
}

func TestSharedSecretProviderCachesUntilBodyChanges(t *testing.T) {
	p := &auth.SharedSecretProvider{KeyID: "k1", Secret: []byte("shh"), DurationSeconds: 300}

	first, err := p.GetAuthorization(context.Background(), fakeRequest{body: []byte("payload-a")})
	require.NoError(t, err)
	require.NotEmpty(t, first.Bearer)

	second, err := p.GetAuthorization(context.Background(), fakeRequest{body: []byte("payload-a")})
	require.NoError(t, err)
	require.Equal(t, first.Bearer, second.Bearer, "same body within the cache window must reuse the signature")

	third, err := p.GetAuthorization(context.Background(), fakeRequest{body: []byte("payload-b")})
	require.NoError(t, err)
	require.NotEqual(t, first.Bearer, third.Bearer, "a different body must force recomputation")
}

// TestSharedSecretProviderOnAuthErrorInvalidatesCache covers spec §4.9's
// 401 invalidation hint.
func TestSharedSecretProviderOnAuthErrorInvalidatesCache(t *testing.T) {
	p := &auth.SharedSecretProvider{KeyID: "k1", Secret: []byte("shh"), DurationSeconds: 300}
	body := []byte("payload")

	first, err := p.GetAuthorization(context.Background(), fakeRequest{body: body})
	require.NoError(t, err)

	p.OnAuthError(nil)

	second, err := p.GetAuthorization(context.Background(), fakeRequest{body: body})
	require.NoError(t, err)
	require.Equal(t, first.Bearer, second.Bearer, "recomputing the same body yields the same signature even after invalidation")
}
