// Package healthhttp answers the monitoring endpoints in front of the host's
// router: {prefix}/ping for liveness and {prefix}/healthCheck for the
// aggregated dependency report.
package healthhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/health"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/log"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/xerrors"
)

const (
	DefaultPrefix = "_monitoring"

	PingPath        = "ping"
	HealthCheckPath = "healthCheck"

	contentTypeJSON = "application/json; charset=utf-8"
)

// ErrNoChecker is returned by New when Options.Checker is nil. A missing
// checker is a wiring mistake, not an empty (healthy) report.
var ErrNoChecker = errors.New("healthhttp: no health checker configured")

// Options configures a Monitor.
type Options struct {
	// Prefix is the path segment both endpoints live under. Surrounding
	// slashes are ignored; empty means DefaultPrefix.
	Prefix string

	Checker health.Checker

	// Logger is used when the request context carries no logger.
	Logger log.Logger

	// OnReport, if set, sees every report the checker produced along with
	// the status it was answered with.
	OnReport func(ctx context.Context, r health.Report, status int)
}

// Monitor intercepts the two monitoring paths and passes everything else
// through. It holds only configuration and is safe for concurrent use.
// The zero value serves the default paths and answers every health check
// with 503, since it has no checker.
type Monitor struct {
	prefix     string
	pingPath   string
	healthPath string
	checker    health.Checker
	logger     log.Logger
	onReport   func(context.Context, health.Report, int)
}

// New builds a Monitor. It returns ErrNoChecker when opts.Checker is nil or a
// nil CheckerFunc.
func New(opts Options) (*Monitor, error) {
	if noChecker(opts.Checker) {
		return nil, ErrNoChecker
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	prefix = strings.Trim(prefix, "/")

	base := "/"
	if prefix != "" {
		base += prefix + "/"
	}

	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	return &Monitor{
		prefix:     prefix,
		pingPath:   base + PingPath,
		healthPath: base + HealthCheckPath,
		checker:    opts.Checker,
		logger:     L,
		onReport:   opts.OnReport,
	}, nil
}

// Prefix is the configured path segment without slashes.
func (m *Monitor) Prefix() string { return m.prefix }

// PingPath and HealthCheckPath return the absolute request paths answered.
func (m *Monitor) PingPath() string        { return m.pingPath }
func (m *Monitor) HealthCheckPath() string { return m.healthPath }

// Matches reports whether path is one of the monitoring endpoints. Matching
// is case-insensitive.
func (m *Monitor) Matches(path string) bool {
	ping, hc := m.paths()
	return strings.EqualFold(path, ping) || strings.EqualFold(path, hc)
}

func (m *Monitor) paths() (ping, hc string) {
	if m.pingPath == "" {
		return "/" + DefaultPrefix + "/" + PingPath, "/" + DefaultPrefix + "/" + HealthCheckPath
	}
	return m.pingPath, m.healthPath
}

func (m *Monitor) Middleware(next http.Handler) http.Handler {
	ping, hc := m.paths()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.EqualFold(r.URL.Path, ping):
			w.WriteHeader(http.StatusNoContent)
		case strings.EqualFold(r.URL.Path, hc):
			m.serveHealthCheck(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (m *Monitor) serveHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	L := log.FromContextOr(ctx, m.logger)

	if noChecker(m.checker) {
		L.Error(ctx, ErrNoChecker, "health check requested without a checker")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "health check not configured"})
		return
	}

	report, err := m.check(ctx)
	if err != nil {
		L.Error(ctx, err, "health check failed", "url.path", r.URL.Path)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "health check failed"})
		return
	}
	if report == nil {
		report = health.Report{}
	}

	status := report.StatusCode()
	if m.onReport != nil {
		m.onReport(ctx, report, status)
	}
	writeJSON(w, status, report)
}

// check calls the checker once, turning a panic into an error.
func (m *Monitor) check(ctx context.Context) (report health.Report, err error) {
	defer func() {
		if p := recover(); p != nil {
			report, err = nil, xerrors.Newf("health checker panic: %v", p)
		}
	}()
	report, err = m.checker.CheckHealth(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "check health")
	}
	return report, nil
}

func noChecker(c health.Checker) bool {
	if c == nil {
		return true
	}
	f, ok := c.(health.CheckerFunc)
	return ok && f == nil
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"error":"encode response"}` + "\n")
	}
	h := w.Header()
	h.Set("Content-Type", contentTypeJSON)
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
