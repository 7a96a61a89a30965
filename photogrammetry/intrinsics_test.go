package photogrammetry

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func testCameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		800, 0, 320,
		0, 810, 240,
		0, 0, 1,
	})
}

func testIntrinsics(model ModelKind, distortion []float64) Intrinsics {
	in := Intrinsics{
		Model:        model,
		Width:        640,
		Height:       480,
		CameraMatrix: NewMatrixInfo(testCameraMatrix()),
	}
	if len(distortion) > 0 {
		in.DistortionMatrix = NewMatrixInfo(mat.NewDense(1, len(distortion), distortion))
	}
	return in
}

func TestMatrixInfoDense(t *testing.T) {
	info := MatrixInfo{Shape: Shape{Row: 2, Col: 3}, Data: []float64{1, 2, 3, 4, 5, 6}}
	m, err := info.Dense()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.At(1, 0), test.ShouldEqual, 4.0)
	test.That(t, NewMatrixInfo(m), test.ShouldResemble, info)

	_, err = MatrixInfo{Shape: Shape{Row: 2, Col: 2}, Data: []float64{1, 2, 3}}.Dense()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "needs 4 values")

	_, err = MatrixInfo{}.Dense()
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewIntrinsicsModel(t *testing.T) {
	model, err := NewIntrinsicsModel(testIntrinsics("", []float64{-0.1, 0.01, 0, 0, 0}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Kind(), test.ShouldEqual, PinholeModel)
	pinhole, ok := model.(*Pinhole)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pinhole.Distortion(), test.ShouldResemble, []float64{-0.1, 0.01, 0, 0, 0, 0, 0, 0})
	test.That(t, mat.Equal(model.CameraMatrix(), testCameraMatrix()), test.ShouldBeTrue)

	model, err = NewIntrinsicsModel(testIntrinsics(FisheyeModel, []float64{0.05, -0.01, 0.002, 0}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Kind(), test.ShouldEqual, FisheyeModel)

	// no distortion at all is a plain pinhole
	_, err = NewIntrinsicsModel(testIntrinsics(PinholeModel, nil))
	test.That(t, err, test.ShouldBeNil)

	_, err = NewIntrinsicsModel(testIntrinsics("orthographic", nil))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "orthographic")

	_, err = NewIntrinsicsModel(testIntrinsics(FisheyeModel, []float64{1, 2, 3, 4, 5}))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewIntrinsicsModel(testIntrinsics(PinholeModel, make([]float64, 9)))
	test.That(t, err, test.ShouldNotBeNil)

	bad := testIntrinsics(PinholeModel, nil)
	bad.CameraMatrix = NewMatrixInfo(mat.NewDense(3, 3, []float64{0, 0, 320, 0, 810, 240, 0, 0, 1}))
	_, err = NewIntrinsicsModel(bad)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	bad.CameraMatrix = NewMatrixInfo(mat.NewDense(2, 2, []float64{1, 0, 0, 1}))
	_, err = NewIntrinsicsModel(bad)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	bad.CameraMatrix = MatrixInfo{Shape: Shape{Row: 3, Col: 3}, Data: []float64{1}}
	_, err = NewIntrinsicsModel(bad)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
}

func TestPinholeProjection(t *testing.T) {
	p, err := NewPinhole(testCameraMatrix(), nil)
	test.That(t, err, test.ShouldBeNil)

	px, ok := p.Project(r3.Vector{X: 0.1, Y: -0.2, Z: 2})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, px.X, test.ShouldAlmostEqual, 800*0.05+320, 1e-9)
	test.That(t, px.Y, test.ShouldAlmostEqual, 810*-0.1+240, 1e-9)

	_, ok = p.Project(r3.Vector{X: 0.1, Y: 0.1, Z: -1})
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = p.Project(r3.Vector{X: 0.1, Y: 0.1})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestPinholeUndistort(t *testing.T) {
	p, err := NewPinhole(testCameraMatrix(), []float64{-0.1, 0.01, 0.001, -0.0005, 0.001})
	test.That(t, err, test.ShouldBeNil)
	ideal, err := NewPinhole(testCameraMatrix(), nil)
	test.That(t, err, test.ShouldBeNil)

	for _, pt := range []r3.Vector{
		{X: 0.1, Y: -0.05, Z: 1},
		{X: -0.3, Y: 0.2, Z: 1.5},
		{X: 0, Y: 0, Z: 1},
	} {
		distorted, ok := p.Project(pt)
		test.That(t, ok, test.ShouldBeTrue)
		want, _ := ideal.Project(pt)
		got := p.Undistort(distorted)
		test.That(t, got.X, test.ShouldAlmostEqual, want.X, 1e-6)
		test.That(t, got.Y, test.ShouldAlmostEqual, want.Y, 1e-6)
	}
}

func TestFisheye(t *testing.T) {
	f, err := NewFisheye(testCameraMatrix(), []float64{0.05, -0.01, 0.002, 0})
	test.That(t, err, test.ShouldBeNil)
	ideal, err := NewPinhole(testCameraMatrix(), nil)
	test.That(t, err, test.ShouldBeNil)

	center, ok := f.Project(r3.Vector{Z: 3})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, center, test.ShouldResemble, r2.Point{X: 320, Y: 240})
	test.That(t, f.Undistort(center), test.ShouldResemble, center)

	pt := r3.Vector{X: 0.4, Y: -0.3, Z: 1}
	distorted, ok := f.Project(pt)
	test.That(t, ok, test.ShouldBeTrue)

	// theta = atan(0.5), the distorted radius follows the odd polynomial
	theta := math.Atan(0.5)
	t2 := theta * theta
	thetaD := theta * (1 + 0.05*t2 - 0.01*t2*t2 + 0.002*t2*t2*t2)
	test.That(t, distorted.X, test.ShouldAlmostEqual, 800*0.4*thetaD/0.5+320, 1e-9)

	want, _ := ideal.Project(pt)
	got := f.Undistort(distorted)
	test.That(t, got.X, test.ShouldAlmostEqual, want.X, 1e-6)
	test.That(t, got.Y, test.ShouldAlmostEqual, want.Y, 1e-6)

	_, ok = f.Project(r3.Vector{X: 1, Z: -1})
	test.That(t, ok, test.ShouldBeFalse)
}
