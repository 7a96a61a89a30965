package calibration

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"handeye/photogrammetry"
	"handeye/se3"
	"handeye/solver"
)

// Reprojection is the reprojection score of a solution.
type Reprojection struct {
	StaticFrame se3.AverageResult
	// Labels and PerObservation list the observations that had image points.
	Labels         []string
	PerObservation []float64
	Mean           float64
}

// Reproject scores a solved X: it recovers the static frame, predicts every
// extrinsic from it and the robot poses, and measures how far the fiducial
// points land from their detections. Observations without image points only
// contribute to the static frame. Failure to converge while averaging the
// static frame is reported in the result, not as an error.
func Reproject(
	model photogrammetry.IntrinsicsModel,
	solution solver.Solution,
	variant solver.Variant,
	observations []Observation,
	points []r3.Vector,
	opts se3.AverageOptions,
) (Reprojection, error) {
	if !solution.Valid {
		return Reprojection{}, errors.New("cannot reproject an invalid solution")
	}
	static, err := StaticFrame(variant, solution.X, observations, opts)
	if err != nil && !errors.Is(err, se3.ErrNonConvergence) {
		return Reprojection{}, err
	}
	return reprojectThrough(model, variant, solution.X, static, observations, points)
}

func reprojectThrough(
	model photogrammetry.IntrinsicsModel,
	variant solver.Variant,
	x se3.Transform,
	static se3.AverageResult,
	observations []Observation,
	points []r3.Vector,
) (Reprojection, error) {
	idx := withImagePoints(observations)
	if len(idx) == 0 {
		return Reprojection{}, errors.New("no observation has image points")
	}
	predicted, err := PredictExtrinsics(variant, x, static.Transform, observations)
	if err != nil {
		return Reprojection{}, err
	}
	res := Reprojection{StaticFrame: static}
	extrinsics := make([]se3.Transform, 0, len(idx))
	observed := make([][]r2.Point, 0, len(idx))
	for _, i := range idx {
		res.Labels = append(res.Labels, observations[i].Label)
		extrinsics = append(extrinsics, predicted[i])
		observed = append(observed, observations[i].ImagePoints)
	}
	res.PerObservation, res.Mean, err = photogrammetry.ReprojectionError(model, extrinsics, observed, points)
	if err != nil {
		return Reprojection{}, err
	}
	return res, nil
}

// TriangulationError triangulates every fiducial point from all the views of a
// camera in hand, placed in the base frame through X and the robot poses, and
// returns the RMS distance to where the static frame Z puts the point.
func TriangulationError(
	model photogrammetry.IntrinsicsModel,
	variant solver.Variant,
	x, z se3.Transform,
	observations []Observation,
	points []r3.Vector,
) (float64, error) {
	if variant != solver.EyeInHand {
		return 0, errors.Errorf("triangulation needs a moving camera, not %q", variant)
	}
	if model == nil {
		return 0, photogrammetry.NewNoIntrinsicsError("no camera model")
	}
	idx := withImagePoints(observations)
	if len(idx) < 2 {
		return 0, errors.Wrapf(solver.ErrInsufficientData, "triangulation needs 2 observations with image points, got %d", len(idx))
	}

	_, poses, err := split(observations, solver.DefaultOptions().InputTolerance)
	if err != nil {
		return 0, err
	}

	k := model.CameraMatrix()
	xInv := se3.Invert(x)
	projections := make([]*mat.Dense, len(idx))
	for n, i := range idx {
		if len(observations[i].ImagePoints) != len(points) {
			return 0, errors.Errorf("%s has %d image points for %d fiducial points",
				observations[i].name(i), len(observations[i].ImagePoints), len(points))
		}
		// base to camera
		view, err := se3.Compose(xInv, se3.Invert(poses[i]))
		if err != nil {
			return 0, err
		}
		projections[n] = photogrammetry.ProjectionMatrix(k, view)
	}

	sq := make([]float64, len(points))
	for j, p := range points {
		views := make([]photogrammetry.ProjPoint, len(idx))
		for n, i := range idx {
			px := model.Undistort(observations[i].ImagePoints[j])
			views[n] = photogrammetry.ProjPoint{
				Mat:   projections[n],
				Point: mat.NewVecDense(2, []float64{px.X, px.Y}),
			}
		}
		got, err := photogrammetry.TriangulatePoint(views)
		if err != nil {
			return 0, errors.Wrapf(err, "fiducial point %d", j)
		}
		d := got.Sub(z.Apply(p)).Norm()
		sq[j] = d * d
	}
	return math.Sqrt(stat.Mean(sq, nil)), nil
}
