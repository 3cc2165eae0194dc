package errs

import (
	"errors"
	"fmt"
)

// Engine errors. Batch-path errors propagate to the caller; ErrMalformedEvent
// is the only class recovered locally by the streaming path.
var (
	// ErrShape is returned for mismatched lengths or window sizes.
	ErrShape = errors.New("shape mismatch")

	// ErrInvalidArgument is returned for out-of-range parameters (k > N, W <= 0).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDegenerateVector is returned when a vector has zero variance.
	ErrDegenerateVector = errors.New("degenerate vector: zero variance")

	// ErrEmptyCluster is returned when a prototype has no support.
	ErrEmptyCluster = errors.New("empty cluster")

	// ErrNonConvergence is returned when the clustering loop hits its iteration cap.
	ErrNonConvergence = errors.New("clustering did not converge")

	// ErrMalformedEvent is returned for unparseable live events.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrModelNotReady is returned when no trained model is available yet.
	ErrModelNotReady = errors.New("model not ready")
)

// EmptyClusterError reports which prototype column summed to zero.
type EmptyClusterError struct {
	Cluster int
}

func (e *EmptyClusterError) Error() string {
	return fmt.Sprintf("%s: prototype %d has zero total weight", ErrEmptyCluster, e.Cluster)
}

func (e *EmptyClusterError) Unwrap() error { return ErrEmptyCluster }

// NonConvergenceError carries the iteration cap that was exceeded.
type NonConvergenceError struct {
	Iterations int
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("%s after %d iterations", ErrNonConvergence, e.Iterations)
}

func (e *NonConvergenceError) Unwrap() error { return ErrNonConvergence }

// MalformedEventError describes why a raw event could not be decoded.
type MalformedEventError struct {
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedEvent, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedEvent, e.Reason)
}

// Is lets errors.Is match both the sentinel and any wrapped cause.
func (e *MalformedEventError) Is(target error) bool { return target == ErrMalformedEvent }

func (e *MalformedEventError) Unwrap() error { return e.Err }

// Shapef wraps ErrShape with context.
func Shapef(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrShape, fmt.Sprintf(format, a...))
}

// InvalidArgumentf wraps ErrInvalidArgument with context.
func InvalidArgumentf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, a...))
}
