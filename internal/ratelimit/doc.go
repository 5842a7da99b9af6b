// Package ratelimit is a per-client-IP token bucket for the host's business
// routes. The monitoring endpoints are answered before routing and are never
// limited, so a flood cannot make the service look unhealthy to its load
// balancer.
//
// State is in memory and per instance. Idle visitors are evicted after a TTL
// and the visitor table is capped, so memory stays bounded under a spray of
// distinct addresses.
package ratelimit
