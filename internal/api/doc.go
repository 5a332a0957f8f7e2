// Package api serves the daemon's HTTP surface: order intake with offline
// fallback, queue inspection, conflict resolution, sync triggers, and the
// websocket upgrade endpoint.
package api
