// Package health models dependency health for the monitoring endpoints.
//
// A [CheckResult] is one dependency's probe outcome; a [Report] is the ordered
// set of results produced by one [Checker] call. The aggregate is unhealthy
// only when a critical dependency is down.
//
// Hosts usually build a Checker with [Gather], which runs one [Probe] per
// [Dependency] concurrently and times each. Probes compose with [All], [Any]
// and [Fixed]; [ShutdownGate] is a probe that fails while the process drains.
package health
