package imports

import (
	"io/fs"
	"os"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"handeye/calibration"
	"handeye/se3"
	"handeye/solver"
)

// RequireFiles returns an error for every path that does not exist.
func RequireFiles(paths ...string) error {
	var errs error
	for _, path := range paths {
		ok, err := exists(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !ok {
			errs = multierr.Append(errs, errors.Errorf("%s does not exist", path))
		}
	}
	return errs
}

// MatchObservations joins camera extrinsics and robot poses on their label,
// in label order. Labels present on one side only are logged and dropped.
func MatchObservations(extrinsics, poses map[string]se3.Transform, logger *zap.SugaredLogger) ([]calibration.Observation, error) {
	labels := make([]string, 0, len(extrinsics))
	for label := range extrinsics {
		if _, ok := poses[label]; !ok {
			logger.Warnw("no robot pose for camera", "label", label)
			continue
		}
		labels = append(labels, label)
	}
	for label := range poses {
		if _, ok := extrinsics[label]; !ok {
			logger.Warnw("no camera extrinsic for robot pose", "label", label)
		}
	}
	sort.Strings(labels)

	if len(labels) < solver.MinPairs {
		return nil, errors.Wrapf(solver.ErrInsufficientData, "only %d labels have both an extrinsic and a pose", len(labels))
	}
	observations := make([]calibration.Observation, len(labels))
	for i, label := range labels {
		observations[i] = calibration.Observation{
			Label:     label,
			Extrinsic: extrinsics[label],
			Pose:      poses[label],
		}
	}
	logger.Debugw("matched observations", "count", len(observations))
	return observations, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
