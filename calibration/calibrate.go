package calibration

import (
	"github.com/pkg/errors"

	"handeye/se3"
	"handeye/solver"
)

// Report is the outcome of Calibrate.
type Report struct {
	Variant  solver.Variant
	Solution solver.Solution

	StaticFrame          se3.Transform
	StaticFrameStats     se3.AverageResult
	StaticFrameConverged bool

	// Reprojection is nil when no camera model, fiducial or image points were given.
	Reprojection *Reprojection

	TriangulationRMS float64
	Triangulated     bool
}

// Calibrate solves X from the observations and, when the configuration
// describes the camera and the fiducial, scores it by reprojection.
func Calibrate(observations []Observation, cfg Config) (Report, error) {
	cfg = cfg.withDefaults()
	logger := cfg.Logger

	if err := cfg.Variant.CheckValid(); err != nil {
		return Report{}, err
	}
	if err := ValidateObservations(observations, cfg.Solver.InputTolerance); err != nil {
		return Report{}, errors.Wrap(err, "invalid observations")
	}

	logger.Infow("solving hand-eye calibration", "variant", cfg.Variant, "observations", len(observations))
	extrinsics, poses, err := split(observations, cfg.Solver.InputTolerance)
	if err != nil {
		return Report{}, errors.Wrap(err, "invalid observations")
	}
	// downstream steps check rigidity at the default tolerance
	observations = append([]Observation(nil), observations...)
	for i := range observations {
		observations[i].Extrinsic = extrinsics[i]
		observations[i].Pose = poses[i]
	}
	solution, err := solver.SolveObservations(extrinsics, poses, cfg.Variant, cfg.Solver)
	if err != nil {
		return Report{}, err
	}
	logger.Debugw("solved",
		"pairs", solution.Pairs,
		"rotation_residual", solution.RotationResidual,
		"translation_residual", solution.TranslationResidual,
		"rotation_correction", solution.RotationCorrection,
	)

	report := Report{Variant: cfg.Variant, Solution: solution}
	static, err := StaticFrame(cfg.Variant, solution.X, observations, cfg.Average)
	var nonConv *se3.NonConvergenceError
	switch {
	case errors.As(err, &nonConv):
		logger.Warnw("static frame average did not converge, using best estimate",
			"iterations", nonConv.Iterations, "step", nonConv.StepNorm)
	case err != nil:
		return Report{}, err
	}
	report.StaticFrame = static.Transform
	report.StaticFrameStats = static
	report.StaticFrameConverged = static.Converged
	logger.Debugw("static frame", "iterations", static.Iterations, "transform", static.Transform)

	if cfg.Camera == nil || len(cfg.Fiducial) == 0 || len(withImagePoints(observations)) == 0 {
		logger.Debug("no camera model or image points, skipping reprojection")
		return report, nil
	}
	reproj, err := reprojectThrough(cfg.Camera, cfg.Variant, solution.X, static, observations, cfg.Fiducial)
	if err != nil {
		return Report{}, errors.Wrap(err, "reprojection")
	}
	report.Reprojection = &reproj
	report.Solution.ReprojectionRMS = reproj.Mean
	report.Solution.Reprojected = true
	logger.Infow("reprojection", "mean_px", reproj.Mean)

	if cfg.Variant == solver.EyeInHand && len(withImagePoints(observations)) >= 2 {
		rms, err := TriangulationError(cfg.Camera, cfg.Variant, solution.X, static.Transform, observations, cfg.Fiducial)
		if err != nil {
			logger.Warnw("triangulation failed", "error", err)
		} else {
			report.TriangulationRMS = rms
			report.Triangulated = true
			logger.Infow("triangulation", "rms", rms)
		}
	}
	return report, nil
}
