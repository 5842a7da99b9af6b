package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/log"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/xerrors"
)

const DefaultPort = 8080

// NewHandler builds the public handler: the monitoring chain around a chi
// router carrying the business routes.
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	var recoverMW, monitorMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(L, opts.OnPanic)
	}
	if opts.Monitor != nil {
		monitorMW = opts.Monitor.Middleware
	}

	return httpmw.Chain(newRouter(opts),
		recoverMW,
		serverSpan(opts),
		httpmw.CorrelationToken(L),
		httpmw.TraceResponseHeaders(httpmw.DefaultTraceHeader, httpmw.DefaultSpanHeader),
		opts.MetricsMW,
		monitorMW,
		httpmw.RequestLogging(),
		httpmw.PerformanceLogging(opts.HostName),
	)
}

func newRouter(opts Options) chi.Router {
	r := chi.NewRouter()

	// Compress text responses
	r.Use(middleware.Compress(5,
		"text/html",
		"text/plain",
		"application/json",
	))
	r.Use(httpmw.ClientIPWithOptions(opts.ClientIPOpts))
	r.Use(httpmw.AnnotateHTTPRoute)

	r.Group(func(r chi.Router) {
		if opts.RateLimitMW != nil {
			r.Use(opts.RateLimitMW)
		}
		if opts.Routes != nil {
			opts.Routes(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}` + "\n"))
	})
	return r
}

// serverSpan starts the otel server span. Pings are not traced: a load
// balancer polls them every few seconds and they never touch a dependency.
func serverSpan(opts Options) func(http.Handler) http.Handler {
	shouldTrace := func(p string) bool {
		if opts.Monitor != nil && strings.EqualFold(p, opts.Monitor.PingPath()) {
			return false
		}
		return p != "/favicon.ico" && p != "/robots.txt"
	}
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			"http.server",
			otelhttp.WithFilter(func(r *http.Request) bool {
				return shouldTrace(r.URL.Path)
			}),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				// AnnotateHTTPRoute renames routed spans to their pattern
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
		)
	}
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start serves NewHandler(opts) in the background.
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen %s", addr)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 10*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
