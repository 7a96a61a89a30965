package solver

import "github.com/pkg/errors"

var (
	// ErrInsufficientData is returned when the pairs cannot pin down X: too
	// few of them, or rotation axes that are not diverse enough.
	ErrInsufficientData = errors.New("insufficient pose pairs for hand-eye calibration")
	// ErrDegenerateSolution is returned when the solved X is not a rigid
	// transform even after correction, or the translation system is singular.
	ErrDegenerateSolution = errors.New("degenerate hand-eye solution")
)
