// Package logging builds the slog loggers used across the daemon and CLI.
//
// Two handler formats are supported: a console handler that renders
// key=value lines with a leading component label, and a JSON handler for
// machine consumption. Helpers mirror the slog attribute constructors so
// call sites stay terse, and WithContext threads job/stage/request
// identifiers from a context into every record.
package logging
