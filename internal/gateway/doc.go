// Package gateway orchestrates the coven-reactions server components.
//
// # Overview
//
// The gateway owns the reaction store, the reaction engine, the idempotency
// cache and the HTTP server, and manages their lifecycle:
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil { ... }
//	err = gw.Run(ctx) // blocks until ctx is cancelled, then shuts down
//
// # HTTP API
//
// The gateway exposes HTTP endpoints in api.go. Every /api route requires a
// bearer JWT whose subject is the acting user.
//
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (pings the store)
//   - GET /api/reactables/{type}/{id}/counts - Reactions grouped by kind
//   - GET /api/reactables/{type}/{id}/reactions - Reactors, newest first (kind, limit, skip, fields)
//   - GET /api/reactables/{type}/{id}/reactions/me - The caller's reactions
//   - PUT /api/reactables/{type}/{id}/reactions - React ({"reaction": "like", "meta": {...}})
//   - POST /api/reactables/{type}/{id}/reactions/toggle - Toggle
//   - DELETE /api/reactables/{type}/{id}/reactions?kind= - Unreact
//
// # Errors
//
// Errors are JSON objects of the form {"error": "..."}:
//
//   - 400 for validation failures (unknown kind, missing fields, bad query)
//   - 401 for missing or invalid tokens
//   - 409 for an idempotency key still in flight
//   - 503 with Retry-After for transient store failures
//   - 500 otherwise
//
// # Idempotency
//
// Mutations may carry an Idempotency-Key header. The first response for a
// given user, route and key is cached for idempotency.ttl and replayed with
// an Idempotent-Replayed: true header. 5xx responses are not cached.
package gateway
