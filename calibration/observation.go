package calibration

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"handeye/se3"
)

// Observation is one capture of the rig: the fiducial as the camera saw it
// and the robot pose at that moment.
type Observation struct {
	Label string
	// Extrinsic maps fiducial coordinates into the camera frame.
	Extrinsic se3.Transform
	// Pose maps end-effector coordinates into the robot base frame.
	Pose se3.Transform
	// ImagePoints are the detected fiducial points, in the order of the
	// fiducial model points. May be empty.
	ImagePoints []r2.Point
}

func (o Observation) name(i int) string {
	if o.Label != "" {
		return fmt.Sprintf("observation %d (%s)", i, o.Label)
	}
	return fmt.Sprintf("observation %d", i)
}

// ValidateObservations checks every observation against the rigidity
// tolerance and returns all the problems found.
func ValidateObservations(observations []Observation, tol float64) error {
	var errs error
	labels := make(map[string]int, len(observations))
	for i, o := range observations {
		if err := se3.Validate(o.Extrinsic, tol); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s extrinsic", o.name(i)))
		}
		if err := se3.Validate(o.Pose, tol); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s pose", o.name(i)))
		}
		if o.Label == "" {
			continue
		}
		if prev, ok := labels[o.Label]; ok {
			errs = multierr.Append(errs, errors.Errorf("observations %d and %d share label %q", prev, i, o.Label))
			continue
		}
		labels[o.Label] = i
	}
	return errs
}

// split checks that every extrinsic and pose is rigid within tol and returns
// them projected onto SE(3).
func split(observations []Observation, tol float64) ([]se3.Transform, []se3.Transform, error) {
	var errs error
	extrinsics := make([]se3.Transform, len(observations))
	poses := make([]se3.Transform, len(observations))
	for i, o := range observations {
		if err := se3.Validate(o.Extrinsic, tol); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s extrinsic", o.name(i)))
		}
		if err := se3.Validate(o.Pose, tol); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s pose", o.name(i)))
		}
		extrinsics[i] = se3.NearestValid(o.Extrinsic)
		poses[i] = se3.NearestValid(o.Pose)
	}
	if errs != nil {
		return nil, nil, errs
	}
	return extrinsics, poses, nil
}

func withImagePoints(observations []Observation) []int {
	var idx []int
	for i, o := range observations {
		if len(o.ImagePoints) > 0 {
			idx = append(idx, i)
		}
	}
	return idx
}
