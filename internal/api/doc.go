// Package api implements the Mutation API and mounts the push channel for
// Doorwatch Core.
//
// This package provides:
//   - REST endpoints for doors, users, activities and dashboard stats
//   - door control over HTTP, through the same serialized path as push commands
//   - email/password login issuing JWT access tokens
//   - the middleware stack (request ID, logging, recovery, CORS, body limit)
//   - the WebSocket upgrade at /ws, served by the broadcast hub
//
// # Security
//
// When security.require_auth is set, every mutating route needs a bearer
// token and a role holding the route's permission. Reads stay public so
// dashboards can poll without logging in.
package api
