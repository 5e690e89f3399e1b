package stage

import (
	"context"

	"reelforge/internal/queue"
)

// Outcome tells the workflow manager how to proceed after a stage finishes.
type Outcome int

const (
	// Continue advances the job to the next stage.
	Continue Outcome = iota
	// Pause parks the job for user input before the next stage runs.
	Pause
)

// Handler describes the contract the workflow manager needs from each stage.
// Execute must be idempotent with respect to committed artifacts: a stage
// re-run after a crash either finds its artifact already committed (the
// manager skips it) or produces a fresh version.
type Handler interface {
	// Name returns the canonical stage name.
	Name() string
	// Prepare validates inputs and preconditions before Execute.
	Prepare(context.Context, *queue.Job) error
	// Execute runs the stage and commits its artifacts.
	Execute(context.Context, *queue.Job) (Outcome, error)
	// HealthCheck reports whether the stage's external dependencies are usable.
	HealthCheck(context.Context) Health
}
