// Package daemon assembles and supervises the long-running tabsync
// services: the outbox and orders stores, the realtime hub, the change
// notifier, the sync worker, and the HTTP API. It enforces
// single-instance execution with a lock file under the log directory
// and runs preflight checks before starting anything.
package daemon
