// Package config loads, normalizes, and validates tabsync configuration.
//
// Configuration is TOML with a sample embedded for `tabsync config init`.
// Load applies defaults first, then file values, then normalization (path
// expansion, zero-value repair) and validation. Sync policy knobs such as
// the drain interval, retry budget, and conflict window live here rather
// than as constants so deployments can tune them.
package config
