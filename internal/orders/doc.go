// Package orders owns the authoritative tables, sessions, and order rows
// that deferred mutations are eventually applied against. It also publishes
// a change feed of committed writes for the realtime notifier.
package orders
