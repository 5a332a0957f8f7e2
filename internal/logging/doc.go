// Package logging builds slog loggers with console and JSON handlers and
// defines the standardized attribute keys used across tabsync components.
package logging
