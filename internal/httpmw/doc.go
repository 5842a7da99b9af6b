// Package httpmw holds the request middlewares of the monitoring chain.
//
// httpserver.NewHandler composes them, outermost first: Recover, otel server
// span, CorrelationToken, TraceResponseHeaders, metrics, the healthhttp
// monitor, RequestLogging, PerformanceLogging, then the router.
// CorrelationToken runs inside the server span so it can tag it, and outside
// the two logging middlewares because they log through the logger it places
// in the request context.
//
// Every middleware here is a plain func(http.Handler) http.Handler holding
// only read-only configuration.
package httpmw
