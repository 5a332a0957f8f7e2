// Package notifier bridges the storage change feed to the realtime hub.
// It runs a supervised listen loop: subscription failures and feed closures
// are retried with fixed backoff instead of killing the listener, and events
// missed during an outage are simply not replayed.
package notifier
