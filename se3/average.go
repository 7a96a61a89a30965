package se3

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// AverageOptions configures Average. Zero fields take the defaults.
type AverageOptions struct {
	// Tolerance stops the geodesic iteration once the tangent update is smaller (radians).
	Tolerance float64
	// MaxIterations caps the geodesic iteration.
	MaxIterations int
	// InputTolerance is the rigidity tolerance samples are checked against.
	InputTolerance float64
	// Weights optionally weights each sample. Must match the number of samples.
	Weights []float64
}

// DefaultAverageOptions returns the defaults used for zero fields.
func DefaultAverageOptions() AverageOptions {
	return AverageOptions{
		Tolerance:      1e-8,
		MaxIterations:  100,
		InputTolerance: DefaultTolerance,
	}
}

func (o AverageOptions) withDefaults() AverageOptions {
	def := DefaultAverageOptions()
	if o.Tolerance <= 0 {
		o.Tolerance = def.Tolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = def.MaxIterations
	}
	if o.InputTolerance <= 0 {
		o.InputTolerance = def.InputTolerance
	}
	return o
}

// AverageResult is the mean transform with iteration diagnostics.
type AverageResult struct {
	Transform  Transform
	Iterations int
	Converged  bool
	StepNorm   float64
}

// Average returns the mean of several estimates of the same transform. The
// translation is the arithmetic mean; the rotation is the geodesic (Karcher)
// mean on SO(3). On a *NonConvergenceError the last estimate is still returned.
func Average(ts []Transform, opts AverageOptions) (Transform, error) {
	res, err := AverageWithStats(ts, opts)
	return res.Transform, err
}

// AverageWithStats is Average returning the iteration diagnostics as well.
func AverageWithStats(ts []Transform, opts AverageOptions) (AverageResult, error) {
	opts = opts.withDefaults()
	if len(ts) == 0 {
		return AverageResult{}, ErrEmptyInput
	}
	for i, t := range ts {
		if err := Validate(t, opts.InputTolerance); err != nil {
			return AverageResult{}, errors.Wrapf(err, "sample %d", i)
		}
	}
	weights, err := normalizedWeights(len(ts), opts.Weights)
	if err != nil {
		return AverageResult{}, err
	}
	if len(ts) == 1 {
		return AverageResult{Transform: ts[0], Converged: true}, nil
	}

	var trans r3.Vector
	for i, t := range ts {
		trans = trans.Add(t.Translation().Mul(weights[i]))
	}

	rotations := make([]*mat.Dense, len(ts))
	for i, t := range ts {
		rotations[i] = t.Rotation()
	}

	est := rotations[0]
	res := AverageResult{}
	for res.Iterations < opts.MaxIterations {
		res.Iterations++
		var step r3.Vector
		for i, r := range rotations {
			if weights[i] == 0 {
				continue
			}
			var rel mat.Dense
			rel.Mul(est.T(), r)
			step = step.Add(Log(&rel).Mul(weights[i]))
		}
		var next mat.Dense
		next.Mul(est, Exp(step))
		est = &next
		res.StepNorm = step.Norm()
		if res.StepNorm < opts.Tolerance {
			res.Converged = true
			break
		}
	}

	res.Transform = NearestValid(New(est, trans))
	if !res.Converged {
		return res, &NonConvergenceError{Iterations: res.Iterations, StepNorm: res.StepNorm}
	}
	return res, nil
}

func normalizedWeights(n int, weights []float64) ([]float64, error) {
	if weights == nil {
		out := make([]float64, n)
		for i := range out {
			out[i] = 1 / float64(n)
		}
		return out, nil
	}
	if len(weights) != n {
		return nil, errors.Errorf("got %d weights for %d samples", len(weights), n)
	}
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, errors.Errorf("weight %d is %g, weights must be finite and non-negative", i, w)
		}
	}
	sum := floats.Sum(weights)
	if sum <= 0 {
		return nil, errors.New("weights sum to zero")
	}
	out := make([]float64, n)
	floats.ScaleTo(out, 1/sum, weights)
	return out, nil
}
