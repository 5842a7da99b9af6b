package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/healthhttp"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// HostName is reported by PerformanceLogging; empty uses health.MachineName.
	HostName string

	// Monitor answers {prefix}/ping and {prefix}/healthCheck ahead of the
	// router. Nil disables the monitoring endpoints.
	Monitor *healthhttp.Monitor

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler

	// RateLimitMW wraps Routes only; monitoring requests never reach it.
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	// Routes registers the business handlers.
	Routes func(chi.Router)
}
