package photogrammetry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"handeye/se3"
)

func scaleHomogeonousPoint(point mat.Vector) mat.Vector {
	var vector mat.VecDense
	vector.ScaleVec((1 / point.AtVec(point.Len()-1)), point)
	return &vector
}

// distortNormalized applies the OpenCV rational + tangential model to
// normalized image coordinates.
func distortNormalized(x_u, y_u float64, coeffs [OPENCV_DISTORT_VALUES]float64) (float64, float64) {
	k1, k2, p1, p2, k3, k4, k5, k6 := coeffs[0], coeffs[1], coeffs[2], coeffs[3], coeffs[4], coeffs[5], coeffs[6], coeffs[7]

	rsq := math.Pow(x_u, 2) + math.Pow(y_u, 2)
	radial := (1 + k1*rsq + k2*math.Pow(rsq, 2) + k3*math.Pow(rsq, 3)) / (1 + k4*rsq + k5*math.Pow(rsq, 2) + k6*math.Pow(rsq, 3))
	x := x_u*radial + 2*p1*x_u*y_u + p2*(rsq+2*math.Pow(x_u, 2))
	y := y_u*radial + 2*p2*x_u*y_u + p1*(rsq+2*math.Pow(y_u, 2))
	return x, y
}

// undistortNormalized inverts distortNormalized by fixed point iteration.
func undistortNormalized(x0, y0 float64, coeffs [OPENCV_DISTORT_VALUES]float64) (float64, float64) {
	k1, k2, p1, p2, k3, k4, k5, k6 := coeffs[0], coeffs[1], coeffs[2], coeffs[3], coeffs[4], coeffs[5], coeffs[6], coeffs[7]

	x, y := x0, y0
	for range MAX_ITER {
		rsq := math.Pow(x, 2) + math.Pow(y, 2)
		k_inv := (1 + k4*rsq + k5*math.Pow(rsq, 2) + k6*math.Pow(rsq, 3)) / (1 + k1*rsq + k2*math.Pow(rsq, 2) + k3*math.Pow(rsq, 3))
		delta_x := 2*p1*x*y + p2*(rsq+2*math.Pow(x, 2))
		delta_y := p1*(rsq+2*math.Pow(y, 2)) + 2*p2*x*y
		xant := x
		yant := y
		x = (x0 - delta_x) * k_inv
		y = (y0 - delta_y) * k_inv
		e := math.Pow((xant-x), 2) + math.Pow((yant-y), 2)
		if e == 0 {
			break
		}
	}
	return x, y
}

// ProjectionMatrix returns the 3x4 matrix K·[R|t].
func ProjectionMatrix(intrinsics mat.Matrix, extrinsic se3.Transform) *mat.Dense {
	var projMat mat.Dense
	projMat.Mul(intrinsics, extrinsic.Matrix().Slice(0, 3, 0, 4))
	return &projMat
}

// ProjectPoints maps model points through the extrinsic and the camera model.
// visible[i] is false for points behind the camera.
func ProjectPoints(model IntrinsicsModel, extrinsic se3.Transform, points []r3.Vector) (pixels []r2.Point, visible []bool) {
	pixels = make([]r2.Point, len(points))
	visible = make([]bool, len(points))
	for i, p := range points {
		pixels[i], visible[i] = model.Project(extrinsic.Apply(p))
	}
	return pixels, visible
}

// TriangulatePoint recovers a 3D point from two or more views by the direct
// linear transform: the right singular vector of the smallest singular value.
func TriangulatePoint(projPoints []ProjPoint) (r3.Vector, error) {
	if len(projPoints) < 2 {
		return r3.Vector{}, errors.Errorf("need at least 2 views to triangulate, got %d", len(projPoints))
	}

	var A mat.Dense
	for _, projPoint := range projPoints {
		projMat := mat.DenseCopyOf(projPoint.Mat)
		point := projPoint.Point
		cols := projMat.RawMatrix().Cols
		var view mat.Dense
		var row1 mat.Dense
		var row2 mat.Dense

		row1.Scale(point.AtVec(1), projMat.Slice(2, 3, 0, cols))
		row1.Sub(&row1, projMat.Slice(1, 2, 0, cols))

		row2.Scale(point.AtVec(0), projMat.Slice(2, 3, 0, cols))
		row2.Sub(projMat.Slice(0, 1, 0, cols), &row2)

		view.Stack(&row1, &row2)

		if A.IsEmpty() {
			A = view
		} else {
			var copyA mat.Dense
			copyA.CloneFrom(&A)
			A.Reset()
			A.Stack(&copyA, &view)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(&A, mat.SVDThin); !ok {
		return r3.Vector{}, errors.New("failed to factorize triangulation system")
	}
	var V mat.Dense
	svd.VTo(&V)
	X := V.ColView(V.RawMatrix().Cols - 1)
	if X.AtVec(3) == 0 {
		return r3.Vector{}, errors.New("triangulated point is at infinity")
	}
	scaledX := scaleHomogeonousPoint(X)
	return r3.Vector{X: scaledX.AtVec(0), Y: scaledX.AtVec(1), Z: scaledX.AtVec(2)}, nil
}
