package logger

import (
	"net/http"
	"strings"
)

// sensitiveHeaders mirrors the teacher's pkg/logging/log.go redaction
// set, extended with the two header names this driver actually sends
// (spec §6): Authorization and Cookie (session cookie).
var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"set-cookie":    {},
}

// SafeHeaders returns a copy of h with sensitive values redacted, for
// logging request/response headers without leaking credentials (AMBIENT
// STACK "Logging": "redacts Authorization and Cookie before any header
// set is logged").
func SafeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		if _, sensitive := sensitiveHeaders[strings.ToLower(k)]; sensitive {
			out[k] = "<redacted>"
			continue
		}
		out[k] = v[0]
	}
	return out
}
