package health

import (
	"os"
	"sync"
)

// CheckResult is one dependency's probe outcome. It is a plain value: copy it,
// don't share pointers to it.
type CheckResult struct {
	DependencyName           string `json:"dependencyName"`
	IsDown                   bool   `json:"isDown"`
	ResponseTimeMilliseconds int64  `json:"responseTimeMilliseconds"`
	IsCritical               bool   `json:"isCritical"`
	MachineName              string `json:"machineName"`
}

type ResultOption func(*CheckResult)

// NonCritical marks the dependency as one whose outage must not fail the
// aggregate health check.
func NonCritical() ResultOption { return Critical(false) }

func Critical(critical bool) ResultOption {
	return func(r *CheckResult) { r.IsCritical = critical }
}

// OnMachine records which instance ran the probe. Empty keeps the default.
func OnMachine(name string) ResultOption {
	return func(r *CheckResult) {
		if name != "" {
			r.MachineName = name
		}
	}
}

// NewResult builds a result that is critical and attributed to this host
// unless opts say otherwise.
func NewResult(dependency string, isDown bool, responseTimeMs int64, opts ...ResultOption) CheckResult {
	r := CheckResult{
		DependencyName:           dependency,
		IsDown:                   isDown,
		ResponseTimeMilliseconds: responseTimeMs,
		IsCritical:               true,
		MachineName:              MachineName(),
	}
	for _, o := range opts {
		if o != nil {
			o(&r)
		}
	}
	return r
}

// MachineName is the host identity stamped on results and timing logs.
// Resolved once; never empty.
var MachineName = sync.OnceValue(func() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	if h := os.Getenv("HOSTNAME"); h != "" {
		return h
	}
	return "localhost"
})
