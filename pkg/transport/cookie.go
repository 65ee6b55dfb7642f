package transport

import (
	"net/http"
	"strings"
	"sync"
)

// CookieJar captures and replays the session cookie across requests on
// one client (spec §4.5 step 4: "capture and reuse it on subsequent
// requests"; spec §5 "Session cookie: last-writer-wins; racing updates
// are benign").
type CookieJar struct {
	mu    sync.Mutex
	value string // the full "session=..." pair, or "" if none captured yet
}

// Observe inspects a response's Set-Cookie headers for a session= prefix
// and stores it if present.
func (j *CookieJar) Observe(headers http.Header) {
	for _, sc := range headers.Values("Set-Cookie") {
		part := strings.TrimSpace(strings.SplitN(sc, ";", 2)[0])
		if strings.HasPrefix(part, "session=") {
			j.mu.Lock()
			j.value = part
			j.mu.Unlock()
			return
		}
	}
}

// Apply adds the captured Cookie header to outgoing headers, if any has
// been captured.
func (j *CookieJar) Apply(headers http.Header) {
	j.mu.Lock()
	v := j.value
	j.mu.Unlock()
	if v != "" {
		headers.Set("Cookie", v)
	}
}
