// Package metrics registers the Prometheus collectors for HTTP traffic, chain
// submissions and rate limiting.
package metrics
