// Package notifications delivers sync events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set. The
// sync worker and resolver depend only on the Service interface, so
// alternative transports slot in without touching drain logic.
package notifications
