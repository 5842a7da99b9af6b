package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/correlation"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/log"
)

// CorrelationToken establishes the request's correlation token and its
// logging scope:
//   - a well-formed inbound Correlation-Token is reused verbatim, anything
//     else is replaced by a fresh UUID
//   - the token is set on the response header before next runs, so it is
//     present even if next panics
//   - the token is stored in the request context and attached to a logger
//     (base, or the ctx logger when base is nil) that downstream code gets
//     through log.FromContext
//
// The scope lives in the derived context and ends with the request.
func CorrelationToken(base log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, _ := correlation.Resolve(r.Header)
			w.Header().Set(correlation.Header, tok.String())

			ctx := correlation.WithToken(r.Context(), tok)

			L := base
			if L == nil {
				L = log.FromContext(ctx)
			}
			ctx = log.WithContext(ctx, L.With("correlation_token", tok.String()))

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(attribute.String("correlation_token", tok.String()))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
