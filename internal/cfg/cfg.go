package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/log"
)

// EnvPrefix is prepended to the upper-cased flag name: -http-port is WEBMON_HTTP_PORT.
const EnvPrefix = "WEBMON_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort         int
	AdminPort        int
	MonitoringPrefix string
	DrainDelay       time.Duration

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	RateLimitRPS   float64
	RateLimitBurst int
	TrustedHops    int

	// Dependency probes. List flags are comma separated; HTTP, gRPC and TCP
	// entries are "name=target" or a bare target named after itself.
	CheckTimeout      time.Duration
	CheckS3Bucket     string
	CheckSSMParam     string
	CheckKMSKey       string
	CheckHTTP         string
	CheckGRPC         string
	CheckTCP          string
	NonCriticalChecks string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.StringVar(&c.MonitoringPrefix, "monitoring-prefix", "_monitoring", "path prefix of the ping and healthCheck endpoints")
	fs.DurationVar(&c.DrainDelay, "drain-delay", 5*time.Second, "how long healthCheck reports the shutdown before the listener closes")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.Float64Var(&c.RateLimitRPS, "ratelimit-rps", 10, "per client IP requests per second on business routes (0 disables)")
	fs.IntVar(&c.RateLimitBurst, "ratelimit-burst", 30, "per client IP burst on business routes")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "proxies in front of the service whose X-Forwarded-For is trusted")

	fs.DurationVar(&c.CheckTimeout, "check-timeout", 2*time.Second, "per dependency probe timeout")
	fs.StringVar(&c.CheckS3Bucket, "check-s3-bucket", "", "s3 bucket that must be reachable")
	fs.StringVar(&c.CheckSSMParam, "check-ssm-param", "", "ssm parameter that must be readable")
	fs.StringVar(&c.CheckKMSKey, "check-kms-key", "", "kms key id or arn that must be enabled")
	fs.StringVar(&c.CheckHTTP, "check-http", "", "http dependencies, name=url,...")
	fs.StringVar(&c.CheckGRPC, "check-grpc", "", "grpc health dependencies, name=host:port,...")
	fs.StringVar(&c.CheckTCP, "check-tcp", "", "tcp dependencies, name=host:port,...")
	fs.StringVar(&c.NonCriticalChecks, "noncritical-checks", "", "dependency names whose outage does not fail healthCheck")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Target is one named dependency endpoint from a list flag.
type Target struct {
	Name string
	Addr string
}

// ParseTargets splits "name=addr,addr2" into targets. A bare entry is named
// after its address. Blank entries are skipped.
func ParseTargets(s string) ([]Target, error) {
	var out []Target
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, addr, ok := strings.Cut(part, "=")
		if !ok {
			name, addr = part, part
		}
		name, addr = strings.TrimSpace(name), strings.TrimSpace(addr)
		if name == "" || addr == "" {
			return nil, fmt.Errorf("malformed dependency %q (want name=target)", part)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate dependency name %q", name)
		}
		seen[name] = true
		out = append(out, Target{Name: name, Addr: addr})
	}
	return out, nil
}

// NonCritical returns the set of names in -noncritical-checks.
func (c App) NonCritical() map[string]bool {
	set := make(map[string]bool)
	for _, n := range strings.Split(c.NonCriticalChecks, ",") {
		if n = strings.TrimSpace(n); n != "" {
			set[n] = true
		}
	}
	return set
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	// Monitoring prefix becomes part of a URL path
	if strings.ContainsAny(c.MonitoringPrefix, " ?#%") {
		errs = append(errs, fmt.Errorf("invalid MONITORING_PREFIX %q (no spaces, ?, # or %%)", c.MonitoringPrefix))
	}
	if c.DrainDelay < 0 {
		errs = append(errs, fmt.Errorf("DRAIN_DELAY must not be negative (got %s)", c.DrainDelay))
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL, scheme and tenant)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Rate limiting
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATELIMIT_RPS must not be negative (got %g)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATELIMIT_BURST must be >= 1 when RATELIMIT_RPS > 0 (got %d)", c.RateLimitBurst))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 10 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be 0..10 (got %d)", c.TrustedHops))
	}

	// Dependency probes
	if c.CheckTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CHECK_TIMEOUT must be positive (got %s)", c.CheckTimeout))
	}
	names := make(map[string]string)
	claim := func(name, flagName string) {
		if prev, ok := names[name]; ok {
			errs = append(errs, fmt.Errorf("dependency name %q used by both %s and %s", name, prev, flagName))
			return
		}
		names[name] = flagName
	}
	for _, single := range []struct{ flag, val, name string }{
		{"CHECK_S3_BUCKET", c.CheckS3Bucket, "s3"},
		{"CHECK_SSM_PARAM", c.CheckSSMParam, "ssm"},
		{"CHECK_KMS_KEY", c.CheckKMSKey, "kms"},
	} {
		if single.val != "" {
			claim(single.name, single.flag)
		}
	}
	for _, list := range []struct{ flag, val string }{
		{"CHECK_HTTP", c.CheckHTTP},
		{"CHECK_GRPC", c.CheckGRPC},
		{"CHECK_TCP", c.CheckTCP},
	} {
		targets, err := ParseTargets(list.val)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", list.flag, err))
			continue
		}
		for _, t := range targets {
			claim(t.Name, list.flag)
			if list.flag == "CHECK_HTTP" {
				if u, err := url.Parse(t.Addr); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
					errs = append(errs, fmt.Errorf("CHECK_HTTP %q must be an http(s) URL (got %q)", t.Name, t.Addr))
				}
			} else if _, _, err := net.SplitHostPort(t.Addr); err != nil {
				errs = append(errs, fmt.Errorf("%s %q must be host:port (got %q)", list.flag, t.Name, t.Addr))
			}
		}
	}
	for n := range c.NonCritical() {
		if _, ok := names[n]; !ok {
			errs = append(errs, fmt.Errorf("NONCRITICAL_CHECKS names unknown dependency %q", n))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
