package dynamo

import "errors"

// Domain errors for mechanism and simulation operations.
var (
	// ErrInvalidState indicates a state vector with NaN or Inf values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrParameterBounds indicates a gain or parameter outside its valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrDimensionMismatch indicates a vector of the wrong length.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrInvalidTimestep indicates dt <= 0.
	ErrInvalidTimestep = errors.New("dynamo: timestep must be positive")

	// ErrIndexOutOfRange indicates a pool index that does not exist.
	ErrIndexOutOfRange = errors.New("dynamo: mechanism index out of range")

	// ErrModelLoad indicates a trajectory model artifact that could not be read.
	ErrModelLoad = errors.New("dynamo: cannot load trajectory model")

	// ErrContextCanceled indicates the simulation was interrupted.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return e.Wrapped.Error()
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
