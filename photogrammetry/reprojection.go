package photogrammetry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"handeye/se3"
)

// CheckerboardPoints returns the inner corners of a checkerboard with rows x
// cols squares of the given size, in the board frame (z = 0). Corners are
// ordered down each column, the first corner at the origin.
func CheckerboardPoints(rows, cols int, square float64) ([]r3.Vector, error) {
	if rows < 2 || cols < 2 {
		return nil, errors.Errorf("checkerboard needs at least 2x2 squares, got %dx%d", rows, cols)
	}
	if square <= 0 {
		return nil, errors.Errorf("checkerboard square size must be positive, got %g", square)
	}
	points := make([]r3.Vector, 0, (rows-1)*(cols-1))
	for c := 0; c < cols-1; c++ {
		for r := 0; r < rows-1; r++ {
			points = append(points, r3.Vector{X: float64(c) * square, Y: float64(r) * square})
		}
	}
	return points, nil
}

// RMSPixelError is the root mean square distance between matching pixels.
// Any unmatched (invisible) point makes the error infinite. visible may be nil.
func RMSPixelError(projected, observed []r2.Point, visible []bool) (float64, error) {
	if len(observed) != len(projected) {
		return 0, errors.Errorf("got %d projected but %d observed pixels", len(projected), len(observed))
	}
	if visible != nil && len(visible) != len(projected) {
		return 0, errors.Errorf("got %d visibility flags for %d pixels", len(visible), len(projected))
	}
	if len(projected) == 0 {
		return 0, nil
	}
	sq := make([]float64, len(projected))
	for i := range projected {
		if visible != nil && !visible[i] {
			return math.Inf(1), nil
		}
		d := projected[i].Sub(observed[i])
		sq[i] = d.Dot(d)
	}
	return math.Sqrt(stat.Mean(sq, nil)), nil
}

// ReprojectionError projects the model points through each predicted
// extrinsic and compares them with the observed pixels. It returns the RMS
// error of every observation and their mean. Poor quality is never an error;
// only malformed input is.
func ReprojectionError(model IntrinsicsModel, extrinsics []se3.Transform, observed [][]r2.Point, points []r3.Vector) ([]float64, float64, error) {
	if model == nil {
		return nil, 0, NewNoIntrinsicsError("no camera model")
	}
	if err := model.CheckValid(); err != nil {
		return nil, 0, err
	}
	if len(extrinsics) != len(observed) {
		return nil, 0, errors.Errorf("got %d extrinsics but %d observed point sets", len(extrinsics), len(observed))
	}
	if len(extrinsics) == 0 {
		return nil, 0, errors.New("no observations to reproject")
	}
	if len(points) == 0 {
		return nil, 0, errors.New("no fiducial points")
	}
	perObs := make([]float64, len(extrinsics))
	for i, ext := range extrinsics {
		if len(observed[i]) != len(points) {
			return nil, 0, errors.Errorf("observation %d has %d image points for %d fiducial points", i, len(observed[i]), len(points))
		}
		projected, visible := ProjectPoints(model, ext, points)
		rms, err := RMSPixelError(projected, observed[i], visible)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "observation %d", i)
		}
		perObs[i] = rms
	}
	return perObs, stat.Mean(perObs, nil), nil
}
