package solver

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"handeye/se3"
)

// Variant selects how observations are assembled into AX = XB pairs.
type Variant string

const (
	// FixedCamera is a static camera watching a fiducial held by the gripper.
	// X maps end-effector coordinates into the fiducial frame.
	FixedCamera = Variant("fixed-camera")
	// EyeInHand is a camera mounted on the end-effector watching a static
	// fiducial. X maps camera coordinates into the end-effector frame.
	EyeInHand = Variant("eye-in-hand")
)

// ParseVariant parses "fixed-camera" or "eye-in-hand".
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if err := v.CheckValid(); err != nil {
		return "", err
	}
	return v, nil
}

// CheckValid returns an error for an unknown variant.
func (v Variant) CheckValid() error {
	switch v {
	case FixedCamera, EyeInHand:
		return nil
	default:
		return errors.Errorf("unknown calibration variant %q, expected %q or %q", string(v), FixedCamera, EyeInHand)
	}
}

// Pair is one relative motion pair built from observations I < J.
type Pair struct {
	A, B se3.Transform
	I, J int
}

// BuildPairs forms the N(N-1)/2 relative pose pairs of N observations. The
// extrinsics map fiducial coordinates into the camera frame; the poses map
// end-effector coordinates into the robot base frame.
//
// FixedCamera: A = E_j⁻¹·E_i, B = P_j⁻¹·P_i.
// EyeInHand:   A = P_j⁻¹·P_i, B = E_j·E_i⁻¹.
func BuildPairs(extrinsics, poses []se3.Transform, variant Variant, opts Options) ([]Pair, error) {
	opts = opts.withDefaults()
	if err := variant.CheckValid(); err != nil {
		return nil, err
	}
	if len(extrinsics) != len(poses) {
		return nil, errors.Errorf("got %d camera extrinsics but %d robot poses", len(extrinsics), len(poses))
	}
	if len(extrinsics) < 2 {
		return nil, errors.Wrapf(ErrInsufficientData, "need at least 2 observations, got %d", len(extrinsics))
	}
	ext, err := snapAll(extrinsics, opts.InputTolerance, "extrinsic")
	if err != nil {
		return nil, err
	}
	pos, err := snapAll(poses, opts.InputTolerance, "pose")
	if err != nil {
		return nil, err
	}

	n := len(ext)
	pairs := make([]Pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var a, b se3.Transform
			switch variant {
			case FixedCamera:
				a, err = se3.Compose(se3.Invert(ext[j]), ext[i])
				if err == nil {
					b, err = se3.Compose(se3.Invert(pos[j]), pos[i])
				}
			case EyeInHand:
				a, err = se3.Compose(se3.Invert(pos[j]), pos[i])
				if err == nil {
					b, err = se3.Compose(ext[j], se3.Invert(ext[i]))
				}
			}
			if err != nil {
				return nil, errors.Wrapf(err, "pair (%d, %d)", i, j)
			}
			pairs = append(pairs, Pair{A: a, B: b, I: i, J: j})
		}
	}
	return pairs, nil
}

// snapAll checks every transform against tol and projects it onto SE(3).
// All failures are reported together.
func snapAll(ts []se3.Transform, tol float64, what string) ([]se3.Transform, error) {
	out := make([]se3.Transform, len(ts))
	var errs error
	for i, t := range ts {
		if err := se3.Validate(t, tol); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s %d", what, i))
			continue
		}
		out[i] = se3.NearestValid(t)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}
