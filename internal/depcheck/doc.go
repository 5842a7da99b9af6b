// Package depcheck provides health.Probe implementations for the kinds of
// dependencies a host usually has: HTTP services, raw TCP endpoints, gRPC
// services speaking the standard health protocol, and AWS resources (S3
// buckets, SSM parameters, KMS keys).
//
// Probes hold no state between calls and honor the context deadline, so a
// health.Dependency Timeout bounds them.
package depcheck
