package calibration

import (
	"github.com/pkg/errors"

	"handeye/se3"
	"handeye/solver"
)

// StaticFrameEstimates returns the per-observation estimate of the frame that
// does not move during the capture: base to camera (Y = E·X·P⁻¹) for a fixed
// camera, fiducial to base (Z = P·X·E) for a camera in hand.
func StaticFrameEstimates(variant solver.Variant, x se3.Transform, observations []Observation) ([]se3.Transform, error) {
	if err := variant.CheckValid(); err != nil {
		return nil, err
	}
	extrinsics, poses, err := split(observations, solver.DefaultOptions().InputTolerance)
	if err != nil {
		return nil, err
	}
	estimates := make([]se3.Transform, len(observations))
	for i := range observations {
		var err error
		switch variant {
		case solver.FixedCamera:
			estimates[i], err = se3.ComposeAll(extrinsics[i], x, se3.Invert(poses[i]))
		case solver.EyeInHand:
			estimates[i], err = se3.ComposeAll(poses[i], x, extrinsics[i])
		}
		if err != nil {
			return nil, errors.Wrapf(err, "static frame of %s", observations[i].name(i))
		}
	}
	return estimates, nil
}

// StaticFrame averages the per-observation estimates of the static frame. A
// *se3.NonConvergenceError comes back with the best estimate in the result.
func StaticFrame(variant solver.Variant, x se3.Transform, observations []Observation, opts se3.AverageOptions) (se3.AverageResult, error) {
	estimates, err := StaticFrameEstimates(variant, x, observations)
	if err != nil {
		return se3.AverageResult{}, err
	}
	return se3.AverageWithStats(estimates, opts)
}

// PredictExtrinsics returns the fiducial to camera transform each observation
// should have seen given X and the static frame.
func PredictExtrinsics(variant solver.Variant, x, static se3.Transform, observations []Observation) ([]se3.Transform, error) {
	if err := variant.CheckValid(); err != nil {
		return nil, err
	}
	xInv := se3.Invert(x)
	_, poses, err := split(observations, solver.DefaultOptions().InputTolerance)
	if err != nil {
		return nil, err
	}
	predicted := make([]se3.Transform, len(observations))
	for i := range observations {
		var err error
		switch variant {
		case solver.FixedCamera:
			predicted[i], err = se3.ComposeAll(static, poses[i], xInv)
		case solver.EyeInHand:
			predicted[i], err = se3.ComposeAll(xInv, se3.Invert(poses[i]), static)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "predicting %s", observations[i].name(i))
		}
	}
	return predicted, nil
}
