// Package realtime fans sync and storage events out to websocket
// subscribers. Clients join a room (staff by default) and receive every
// event broadcast to it; delivery is at-most-once with no replay.
package realtime
