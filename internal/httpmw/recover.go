package httpmw

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/correlation"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/log"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/xerrors"
)

// Recover is the outermost guard: a panic anywhere below is logged with the
// request's method and path and answered with a 500 JSON body. onPanic, when
// set, runs after logging (metrics hook). http.ErrAbortHandler is re-raised
// so net/http can abort the connection as intended.
func Recover(L log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if L == nil {
		L = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				var err error
				switch v := rec.(type) {
				case error:
					err = xerrors.Wrap(v, "handler panic")
				default:
					err = xerrors.Newf("handler panic: %v", v)
				}

				// The context here predates CorrelationToken; the token is
				// already on the response header.
				kv := []any{"http.request.method", r.Method, "url.path", r.URL.Path}
				if tok := w.Header().Get(correlation.Header); tok != "" {
					kv = append(kv, "correlation_token", tok)
				}
				L.With(kv...).Error(r.Context(), err, "httpserver panic recovered")

				if onPanic != nil {
					onPanic()
				}

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("X-Content-Type-Options", "nosniff")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}` + "\n"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
