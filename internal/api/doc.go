// Package api implements the HTTP and WebSocket transports of wtap-core.
//
// This package provides:
//   - POST /api: one JSON command envelope per request, answered when the
//     command completes (synchronously or from the request runner)
//   - GET /ws: a WebSocket carrying envelopes in both directions, plus
//     WiFi events pushed to every connected client
//   - REST endpoints for health, metrics, admin login and connect history
//   - Middleware stack (request ID, logging, recovery, CORS, JWT)
//
// # Status mapping
//
// Command outcomes map onto HTTP status codes: OK is 200, BadRequest,
// UnsupportedCommand and PropertyError are 400, InternalError is 500 and
// Busy is 503. Frames larger than one pipeline buffer are answered with
// 413 before any buffer is taken.
//
// # Security
//
// With security.auth_enabled the command endpoints require a JWT from
// POST /api/v1/auth/login, sent as "Authorization: Bearer <token>" or,
// for browsers opening a WebSocket, as the "token" query parameter.
package api
