// Package logging configures slog output for the CLI and pipeline engine and
// provides typed attribute helpers plus context-derived structured fields.
package logging
