// Package ratelimit throttles the HTTP API with an in-process token bucket or
// a Redis-backed fixed window shared across replicas.
package ratelimit
