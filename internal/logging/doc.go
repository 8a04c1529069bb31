// Package logging builds slog loggers with console and JSON handlers and
// standardized structured field keys.
package logging
