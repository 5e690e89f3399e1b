// Package queue persists reel jobs and their committed artifacts in SQLite.
//
// The store owns every state transition: claims are compare-and-swap updates
// guarded by lease expiry, status changes are conditional on the current
// status, and artifact rows are only inserted for fully written files. The
// workflow manager and HTTP API both operate through this package so a single
// set of guards protects the job lifecycle.
package queue
