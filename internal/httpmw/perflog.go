package httpmw

import (
	"net/http"
	"time"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/health"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/log"
)

// PerformanceLogging times next and logs "request served" with the elapsed
// milliseconds (truncated) and hostName, or this machine's name when empty.
// It does not touch the request or response.
func PerformanceLogging(hostName string) func(http.Handler) http.Handler {
	if hostName == "" {
		hostName = health.MachineName()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			elapsed := time.Since(start)

			ctx := r.Context()
			log.FromContext(ctx).Info(ctx, "request served",
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"elapsed_ms", elapsed.Milliseconds(),
				"host.name", hostName,
			)
		})
	}
}
