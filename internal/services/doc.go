// Package services holds the error taxonomy shared by every stage and the
// context carriers used to correlate logs across a stage execution.
//
// Errors are classified with sentinel markers (validation, transient,
// resource, fatal) so retry decisions never depend on error message text.
package services
