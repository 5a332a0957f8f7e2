// Package resolver exposes operator decisions over parked conflict entries.
// A conflict is claimed atomically before any decision is applied, so two
// racing resolutions can never both act on the same entry.
package resolver
