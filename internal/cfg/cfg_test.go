package cfg

import (
	"flag"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// newTestConfig registers flags on a fresh FlagSet, parses the given args,
// and returns the resulting App. This isolates each test from flag.CommandLine.
func newTestConfig(t *testing.T, args []string) App {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return c
}

func TestRegister_Defaults(t *testing.T) {
	c := newTestConfig(t, nil)

	if !c.LogJSON || c.LogLevel != "info" || c.StacktraceLevel != "error" {
		t.Errorf("log defaults = json %v level %q stack %q", c.LogJSON, c.LogLevel, c.StacktraceLevel)
	}
	if c.HTTPPort != 8080 || c.AdminPort != 9000 {
		t.Errorf("ports = %d/%d, want 8080/9000", c.HTTPPort, c.AdminPort)
	}
	if c.MonitoringPrefix != "_monitoring" {
		t.Errorf("MonitoringPrefix = %q, want _monitoring", c.MonitoringPrefix)
	}
	if c.DrainDelay != 5*time.Second || c.CheckTimeout != 2*time.Second {
		t.Errorf("durations = drain %s check %s", c.DrainDelay, c.CheckTimeout)
	}
	if !c.EnablePprof || c.EnablePyroscope || c.EnableTracing {
		t.Errorf("feature defaults = pprof %v pyro %v tracing %v", c.EnablePprof, c.EnablePyroscope, c.EnableTracing)
	}
	if c.RateLimitRPS != 10 || c.RateLimitBurst != 30 || c.TrustedHops != 0 {
		t.Errorf("ratelimit = %g/%d hops %d", c.RateLimitRPS, c.RateLimitBurst, c.TrustedHops)
	}
	if err := Validate(c); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestRegister_CLIOverrides(t *testing.T) {
	c := newTestConfig(t, []string{
		"-log-json=false",
		"-log-level=debug",
		"-http-port=9090",
		"-admin-port=9100",
		"-monitoring-prefix=ops",
		"-drain-delay=1s",
		"-trace-sample=0.5",
		"-ratelimit-rps=2.5",
		"-ratelimit-burst=4",
		"-trusted-hops=1",
		"-check-timeout=750ms",
		"-check-s3-bucket=assets",
		"-check-http=api=https://api.internal/health",
		"-noncritical-checks=api",
	})

	if c.LogJSON || c.LogLevel != "debug" {
		t.Errorf("log = json %v level %q", c.LogJSON, c.LogLevel)
	}
	if c.HTTPPort != 9090 || c.AdminPort != 9100 {
		t.Errorf("ports = %d/%d", c.HTTPPort, c.AdminPort)
	}
	if c.MonitoringPrefix != "ops" || c.DrainDelay != time.Second {
		t.Errorf("monitoring = %q drain %s", c.MonitoringPrefix, c.DrainDelay)
	}
	if c.TraceSample != 0.5 || c.RateLimitRPS != 2.5 || c.RateLimitBurst != 4 || c.TrustedHops != 1 {
		t.Errorf("numbers = %g %g %d %d", c.TraceSample, c.RateLimitRPS, c.RateLimitBurst, c.TrustedHops)
	}
	if c.CheckTimeout != 750*time.Millisecond || c.CheckS3Bucket != "assets" {
		t.Errorf("checks = %s %q", c.CheckTimeout, c.CheckS3Bucket)
	}
	if err := Validate(c); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestFillFromEnv(t *testing.T) {
	pfx := "TESTCFG_"
	t.Setenv(pfx+"LOG_JSON", "false")
	t.Setenv(pfx+"HTTP_PORT", "8088")
	t.Setenv(pfx+"MONITORING_PREFIX", "health")
	t.Setenv(pfx+"CHECK_TIMEOUT", "3s")
	t.Setenv(pfx+"CHECK_TCP", "db=db:5432")
	t.Setenv(pfx+"TRACE_SAMPLE", "0.25")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	FillFromEnv(fs, pfx, nil)

	if c.LogJSON {
		t.Error("LogJSON: want false from env")
	}
	if c.HTTPPort != 8088 {
		t.Errorf("HTTPPort = %d, want 8088", c.HTTPPort)
	}
	if c.MonitoringPrefix != "health" {
		t.Errorf("MonitoringPrefix = %q, want health", c.MonitoringPrefix)
	}
	if c.CheckTimeout != 3*time.Second {
		t.Errorf("CheckTimeout = %s, want 3s", c.CheckTimeout)
	}
	if c.CheckTCP != "db=db:5432" {
		t.Errorf("CheckTCP = %q", c.CheckTCP)
	}
	if c.TraceSample != 0.25 {
		t.Errorf("TraceSample = %g, want 0.25", c.TraceSample)
	}
}

func TestFillFromEnv_CLITakesPrecedence(t *testing.T) {
	pfx := "TESTCFG2_"
	t.Setenv(pfx+"HTTP_PORT", "7777")
	t.Setenv(pfx+"LOG_LEVEL", "warn")
	t.Setenv(pfx+"ENABLE_PPROF", "false")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse([]string{"-http-port=9090", "-log-level=debug", "-enable-pprof=true"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}

	var overrideMessages []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		overrideMessages = append(overrideMessages, fmt.Sprintf(format, args...))
	})

	if c.HTTPPort != 9090 || c.LogLevel != "debug" || !c.EnablePprof {
		t.Errorf("cli values lost: port %d level %q pprof %v", c.HTTPPort, c.LogLevel, c.EnablePprof)
	}
	if len(overrideMessages) != 3 {
		t.Errorf("expected 3 override messages, got %d: %v", len(overrideMessages), overrideMessages)
	}
	for _, msg := range overrideMessages {
		if !strings.Contains(msg, "overrides env") {
			t.Errorf("unexpected override message format: %s", msg)
		}
	}
}

func TestFillFromEnv_InvalidEnvIgnored(t *testing.T) {
	pfx := "TESTCFG3_"
	t.Setenv(pfx+"HTTP_PORT", "not-a-number")
	t.Setenv(pfx+"DRAIN_DELAY", "soon")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}

	var logMessages []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		logMessages = append(logMessages, fmt.Sprintf(format, args...))
	})

	if c.HTTPPort != 8080 || c.DrainDelay != 5*time.Second {
		t.Errorf("defaults lost: port %d drain %s", c.HTTPPort, c.DrainDelay)
	}
	if len(logMessages) != 2 {
		t.Fatalf("expected 2 log messages, got %d: %v", len(logMessages), logMessages)
	}
	for _, msg := range logMessages {
		if !strings.Contains(msg, "ignoring invalid env") {
			t.Errorf("unexpected log message: %s", msg)
		}
	}
}

func TestParseTargets(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []Target
		wantErr string
	}{
		{"empty", "", nil, ""},
		{"named", "db=db:5432", []Target{{"db", "db:5432"}}, ""},
		{"bare", "cache:6379", []Target{{"cache:6379", "cache:6379"}}, ""},
		{"mixed with blanks", " db = db:5432 ,, cache:6379 ", []Target{{"db", "db:5432"}, {"cache:6379", "cache:6379"}}, ""},
		{"missing addr", "db=", nil, "malformed"},
		{"duplicate", "db=a:1,db=b:2", nil, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTargets(tt.in)
			if tt.wantErr != "" {
				wantErrContains(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("ParseTargets(%q): %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ParseTargets(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNonCritical(t *testing.T) {
	c := App{NonCriticalChecks: "cache, search,,"}
	got := c.NonCritical()
	if len(got) != 2 || !got["cache"] || !got["search"] {
		t.Fatalf("NonCritical() = %v", got)
	}
}

func TestValidate_OK(t *testing.T) {
	c := newTestConfig(t, []string{
		"-enable-pyroscope=true",
		"-pyro-server=https://pyro:4040",
		"-pyro-tenant=test-tenant",
		"-enable-tracing=true",
		"-otlp-endpoint=otel:4317",
		"-trace-sample=0.2",
		"-check-grpc=billing=billing:50051",
		"-check-tcp=db=db:5432",
		"-check-kms-key=alias/app",
		"-noncritical-checks=billing,kms",
	})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_InvalidCombined(t *testing.T) {
	c := newTestConfig(t, []string{
		"-http-port=0",
		"-admin-port=70000",
		"-log-level=nope",
		"-stacktrace-level=alsonope",
		"-trace-sample=2.0",
		"-enable-pyroscope=true",
		"-pyro-server=not-a-url",
		"-enable-tracing=true",
		"-otlp-endpoint=otel",
		"-max-error-links=0",
		"-monitoring-prefix=a b",
		"-ratelimit-rps=-1",
		"-trusted-hops=99",
		"-check-timeout=0s",
		"-check-http=api=ftp://x",
		"-check-tcp=db=nohostport,api=a:1",
		"-noncritical-checks=ghost",
	})

	err := Validate(c)
	if err == nil {
		t.Fatal("Validate() expected errors, got <nil>")
	}

	for _, sub := range []string{
		"invalid HTTP_PORT",
		"invalid ADMIN_PORT",
		"invalid LOG_LEVEL",
		"invalid STACKTRACE_LEVEL",
		"invalid TRACE_SAMPLE",
		"PYRO_SERVER must be a URL",
		"PYRO_TENANT required",
		"OTLP_ENDPOINT must be host:port",
		"MAX_ERROR_LINKS",
		"invalid MONITORING_PREFIX",
		"RATELIMIT_RPS",
		"TRUSTED_HOPS",
		"CHECK_TIMEOUT",
		`CHECK_HTTP "api" must be an http(s) URL`,
		`CHECK_TCP "db" must be host:port`,
		`dependency name "api" used by both`,
		`unknown dependency "ghost"`,
	} {
		wantErrContains(t, err, sub)
	}
}

func TestValidate_PortsMustDiffer(t *testing.T) {
	c := newTestConfig(t, []string{"-http-port=9000", "-admin-port=9000"})
	wantErrContains(t, Validate(c), "must differ")
}
