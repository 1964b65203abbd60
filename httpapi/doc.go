// Package httpapi exposes the task service over HTTP.
//
// Routes live under /api/v1. Every response uses one envelope:
//
//	{"data": ..., "meta": {"page": 0, "size": 20, ...}, "error": {"code": "...", "message": "...", "details": "..."}}
//
// Requests pass through request logging and tracing, then the per-client
// throttle, then API key authentication. GET /healthz skips the throttle
// and authentication.
//
// GET /api/v1/events/stream upgrades to a websocket and forwards every
// committed task event published on the message bus.
package httpapi
