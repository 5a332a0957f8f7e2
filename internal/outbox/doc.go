// Package outbox persists deferred POS mutations in SQLite and exposes the
// status transitions the sync worker and conflict resolver drive.
//
// Each entry is keyed by a client-generated idempotency key (local_id) with a
// uniqueness constraint, so a retried submission returns the original entry
// instead of staging a second mutation. Status transitions are single-row
// conditional updates guarded by the expected current status; a transition
// that loses a race affects zero rows and is reported to the caller rather
// than silently overwriting newer state.
//
// Payloads are stored as opaque JSON and decoded on demand into a tagged
// union keyed by (target entity, operation); unrecognized pairs decode to
// Unknown so old daemons survive payloads from newer producers.
//
// Treat this package as the single source of truth for entry lifecycle
// semantics; new statuses or columns go through migrations/ with a new
// versioned SQL file.
package outbox
