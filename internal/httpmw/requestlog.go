package httpmw

import (
	"net/http"
	"strings"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/log"
)

const redacted = "[REDACTED]"

// sensitiveHeaders are logged by name only. Keys are canonical.
var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Proxy-Authorization": {},
	"Cookie":              {},
	"Set-Cookie":          {},
	"X-Api-Key":           {},
	"X-Auth-Token":        {},
}

// RequestLogging logs one "incoming request" record before the handler runs
// and one "outgoing response" record after it returns. Both go through the
// context logger, so they carry the correlation token when CorrelationToken
// runs further out. Bodies are never read; sizes come from Content-Length on
// the way in and from bytes written on the way out.
//
// A panic in next skips the response record and keeps unwinding.
func RequestLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			L := log.FromContext(ctx)

			var reqBodySize int64
			if r.ContentLength > 0 {
				reqBodySize = r.ContentLength
			}
			L.Info(ctx, "incoming request",
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"http.request.headers", headerFields(r.Header),
				"http.request.body.size", reqBodySize,
			)

			rw := wrapWriter(w)
			next.ServeHTTP(rw, r)

			L.Info(ctx, "outgoing response",
				"http.response.status_code", rw.Status(),
				"http.response.headers", headerFields(rw.Header()),
				"http.response.body.size", rw.BytesWritten(),
			)
		})
	}
}

// headerFields flattens h for logging, joining repeated values with ", ".
func headerFields(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		ck := http.CanonicalHeaderKey(k)
		if _, ok := sensitiveHeaders[ck]; ok {
			out[ck] = redacted
			continue
		}
		out[ck] = strings.Join(vs, ", ")
	}
	return out
}
