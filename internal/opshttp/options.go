package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/health"
)

const DefaultPort = 9000

type Options struct {
	// Port to listen on; 0 means DefaultPort.
	Port int

	Metrics     http.Handler
	EnablePprof bool

	// Health backs /-/healthy and Readiness backs /-/ready. nil passes.
	Health    health.Probe
	Readiness health.Probe

	// OnPanic runs after a recovered panic, e.g. to bump a counter.
	OnPanic func()
}
