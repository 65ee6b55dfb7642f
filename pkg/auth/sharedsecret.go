package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// SharedSecretProvider is an illustrative on-prem-style Provider: it
// HMAC-signs the request body with a pre-shared key and caches the
// resulting header for durationSeconds before recomputing (spec §4.9
// "a typical implementation caches the signed authorization header until
// durationSeconds elapses"). Real cloud signature schemes are explicitly
// out of scope (spec §1); this exists only to exercise the Provider
// interface end to end in tests.
type SharedSecretProvider struct {
	KeyID            string
	Secret           []byte
	DurationSeconds  int

	mu        sync.Mutex
	cached    string
	cachedFor []byte
	expiresAt time.Time
}

func (p *SharedSecretProvider) GetAuthorization(_ context.Context, req Request) (Authorization, error) {
	body := req.Body()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != "" && time.Now().Before(p.expiresAt) && sameBytes(p.cachedFor, body) {
		return Authorization{Bearer: p.cached}, nil
	}
	mac := hmac.New(sha256.New, p.Secret)
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))
	dur := p.DurationSeconds
	if dur <= 0 {
		dur = 300
	}
	p.cached = fmt.Sprintf("NoSQL-HMAC-SHA256 Keyid=%q Signature=%q", p.KeyID, sig)
	p.cachedFor = append([]byte(nil), body...)
	p.expiresAt = time.Now().Add(time.Duration(dur) * time.Second)
	return Authorization{Bearer: p.cached}, nil
}

// OnAuthError invalidates the cache on a 401, per spec §4.9.
func (p *SharedSecretProvider) OnAuthError(error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = ""
	p.cachedFor = nil
}

func sameBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
