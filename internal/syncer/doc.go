// Package syncer drains the outbox against authoritative storage. A single
// worker owns the drain loop: entries are claimed one at a time, checked for
// collisions with live orders, then applied or parked for operator review.
// Only one drain cycle runs at a time regardless of trigger source.
package syncer
