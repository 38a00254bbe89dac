package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for plate simulation. None of them is transient: each one
// reflects a bad configuration or a violated precondition, so callers should
// fix the input instead of retrying.
var (
	// ErrInvalidGrid indicates bad grid dimensions or physical extents.
	ErrInvalidGrid = errors.New("dynamo: invalid grid (need nx, ny >= 5 and positive extents)")

	// ErrDimensionMismatch indicates fields of inconsistent shape.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between fields")

	// ErrUnsupportedBoundary indicates an unknown boundary kind.
	ErrUnsupportedBoundary = errors.New("dynamo: unsupported boundary kind")

	// ErrNotInitialized indicates a step was requested before the initial state was set.
	ErrNotInitialized = errors.New("dynamo: solver not initialized (seed the initial state first)")

	// ErrAlreadyInitialized indicates a second attempt to seed the initial state.
	ErrAlreadyInitialized = errors.New("dynamo: solver already initialized")

	// ErrSolverExhausted indicates a step was requested after the final step.
	ErrSolverExhausted = errors.New("dynamo: solver exhausted (all steps taken)")

	// ErrUnstableTimestep indicates dt exceeds the stability bound of the scheme.
	ErrUnstableTimestep = errors.New("dynamo: timestep exceeds stability bound")

	// ErrInvalidState indicates a field with NaN or Inf values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrContextCanceled indicates the simulation was interrupted.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")
)

// SimulationError wraps an error with the step at which it happened.
type SimulationError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.6g): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
