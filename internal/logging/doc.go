// Package logging provides structured, file-based logging for crucible.
// Most components log through an injected *slog.Logger. The watcher's
// Scanner logs through slog's package-level default, which the CLI entry
// point installs.
package logging
