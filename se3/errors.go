package se3

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidTransform is returned when a matrix that should be a rigid transform is not one.
	ErrInvalidTransform = errors.New("invalid rigid transform")
	// ErrNonConvergence is matched by NonConvergenceError.
	ErrNonConvergence = errors.New("pose averaging did not converge")
	// ErrEmptyInput is returned when there is nothing to average.
	ErrEmptyInput = errors.New("no transforms given")
)

// NonConvergenceError is a soft failure of Average: the iteration cap was hit
// before the geodesic update fell below the tolerance. The transform returned
// alongside it is the last estimate and has not been validated.
type NonConvergenceError struct {
	Iterations int
	StepNorm   float64
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("%s after %d iterations (last step %g rad)", ErrNonConvergence, e.Iterations, e.StepNorm)
}

// Is lets errors.Is(err, ErrNonConvergence) match.
func (e *NonConvergenceError) Is(target error) bool {
	return target == ErrNonConvergence
}
