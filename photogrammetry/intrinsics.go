package photogrammetry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have usable intrinsic parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined or malformed.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// ModelKind names a camera model.
type ModelKind string

const (
	// PinholeModel is a pinhole camera with OpenCV (Brown-Conrady, rational) distortion.
	PinholeModel = ModelKind("pinhole")
	// FisheyeModel is a Kannala-Brandt fisheye camera.
	FisheyeModel = ModelKind("fisheye")
)

const (
	OPENCV_DISTORT_VALUES  = 8
	FISHEYE_DISTORT_VALUES = 4
	MAX_ITER               = 100
)

// IntrinsicsModel projects camera-frame points to pixels.
type IntrinsicsModel interface {
	Kind() ModelKind
	CheckValid() error
	// CameraMatrix returns the 3x3 calibration matrix.
	CameraMatrix() *mat.Dense
	// Project maps a camera-frame point to a pixel. The bool is false for
	// points that are not in front of the camera.
	Project(p r3.Vector) (r2.Point, bool)
	// Undistort maps a distorted pixel to the pixel an ideal pinhole camera
	// with the same camera matrix would see.
	Undistort(px r2.Point) r2.Point
}

// NewIntrinsicsModel builds the model described by the serialised intrinsics.
func NewIntrinsicsModel(in Intrinsics) (IntrinsicsModel, error) {
	k, err := in.CameraMatrix.Dense()
	if err != nil {
		return nil, NewNoIntrinsicsError(fmt.Sprintf("camera matrix: %v", err))
	}
	var coeffs []float64
	if len(in.DistortionMatrix.Data) > 0 {
		d, err := in.DistortionMatrix.Dense()
		if err != nil {
			return nil, NewNoIntrinsicsError(fmt.Sprintf("distortion: %v", err))
		}
		coeffs = d.RawMatrix().Data
	}
	var model IntrinsicsModel
	switch in.Model {
	case PinholeModel, "":
		model, err = NewPinhole(k, coeffs)
	case FisheyeModel:
		model, err = NewFisheye(k, coeffs)
	default:
		return nil, errors.Errorf("do not know how to parse %q camera model", in.Model)
	}
	if err != nil {
		return nil, err
	}
	return model, model.CheckValid()
}

type cameraMatrix struct {
	Fx, Fy, Cx, Cy, Skew float64
}

func newCameraMatrix(k mat.Matrix) (cameraMatrix, error) {
	if r, c := k.Dims(); r != 3 || c != 3 {
		return cameraMatrix{}, NewNoIntrinsicsError(fmt.Sprintf("camera matrix must be 3x3, got %dx%d", r, c))
	}
	return cameraMatrix{Fx: k.At(0, 0), Fy: k.At(1, 1), Cx: k.At(0, 2), Cy: k.At(1, 2), Skew: k.At(0, 1)}, nil
}

func (c cameraMatrix) checkValid() error {
	if c.Fx <= 0 || c.Fy <= 0 || math.IsNaN(c.Fx) || math.IsNaN(c.Fy) {
		return NewNoIntrinsicsError(fmt.Sprintf("invalid focal lengths (%g, %g)", c.Fx, c.Fy))
	}
	if c.Cx < 0 || c.Cy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("negative principal point (%g, %g)", c.Cx, c.Cy))
	}
	return nil
}

func (c cameraMatrix) dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{c.Fx, c.Skew, c.Cx, 0, c.Fy, c.Cy, 0, 0, 1})
}

func (c cameraMatrix) toPixel(x, y float64) r2.Point {
	return r2.Point{X: c.Fx*x + c.Skew*y + c.Cx, Y: c.Fy*y + c.Cy}
}

func (c cameraMatrix) toNormalized(px r2.Point) (float64, float64) {
	y := (px.Y - c.Cy) / c.Fy
	x := (px.X - c.Cx - c.Skew*y) / c.Fx
	return x, y
}

// Pinhole is a pinhole camera with up to 8 OpenCV distortion coefficients
// k1 k2 p1 p2 k3 k4 k5 k6. Missing coefficients are zero.
type Pinhole struct {
	k      cameraMatrix
	coeffs [OPENCV_DISTORT_VALUES]float64
}

// NewPinhole builds a pinhole model from a 3x3 camera matrix.
func NewPinhole(k mat.Matrix, distortion []float64) (*Pinhole, error) {
	cm, err := newCameraMatrix(k)
	if err != nil {
		return nil, err
	}
	if len(distortion) > OPENCV_DISTORT_VALUES {
		return nil, errors.Errorf("pinhole model takes at most %d distortion coefficients, got %d", OPENCV_DISTORT_VALUES, len(distortion))
	}
	p := &Pinhole{k: cm}
	copy(p.coeffs[:], distortion)
	return p, nil
}

func (p *Pinhole) Kind() ModelKind { return PinholeModel }

func (p *Pinhole) CheckValid() error { return p.k.checkValid() }

func (p *Pinhole) CameraMatrix() *mat.Dense { return p.k.dense() }

// Distortion returns the 8 distortion coefficients.
func (p *Pinhole) Distortion() []float64 { return append([]float64(nil), p.coeffs[:]...) }

func (p *Pinhole) Project(pt r3.Vector) (r2.Point, bool) {
	if pt.Z <= 0 {
		return r2.Point{}, false
	}
	x, y := distortNormalized(pt.X/pt.Z, pt.Y/pt.Z, p.coeffs)
	return p.k.toPixel(x, y), true
}

func (p *Pinhole) Undistort(px r2.Point) r2.Point {
	x, y := p.k.toNormalized(px)
	x, y = undistortNormalized(x, y, p.coeffs)
	return p.k.toPixel(x, y)
}

// Fisheye is a Kannala-Brandt fisheye camera with coefficients k1..k4.
type Fisheye struct {
	k      cameraMatrix
	coeffs [FISHEYE_DISTORT_VALUES]float64
}

// NewFisheye builds a fisheye model from a 3x3 camera matrix.
func NewFisheye(k mat.Matrix, distortion []float64) (*Fisheye, error) {
	cm, err := newCameraMatrix(k)
	if err != nil {
		return nil, err
	}
	if len(distortion) > FISHEYE_DISTORT_VALUES {
		return nil, errors.Errorf("fisheye model takes at most %d distortion coefficients, got %d", FISHEYE_DISTORT_VALUES, len(distortion))
	}
	f := &Fisheye{k: cm}
	copy(f.coeffs[:], distortion)
	return f, nil
}

func (f *Fisheye) Kind() ModelKind { return FisheyeModel }

func (f *Fisheye) CheckValid() error { return f.k.checkValid() }

func (f *Fisheye) CameraMatrix() *mat.Dense { return f.k.dense() }

func (f *Fisheye) thetaD(theta float64) float64 {
	t2 := theta * theta
	k1, k2, k3, k4 := f.coeffs[0], f.coeffs[1], f.coeffs[2], f.coeffs[3]
	return theta * (1 + t2*(k1+t2*(k2+t2*(k3+t2*k4))))
}

func (f *Fisheye) Project(pt r3.Vector) (r2.Point, bool) {
	if pt.Z <= 0 {
		return r2.Point{}, false
	}
	a, b := pt.X/pt.Z, pt.Y/pt.Z
	r := math.Hypot(a, b)
	if r == 0 {
		return f.k.toPixel(0, 0), true
	}
	scale := f.thetaD(math.Atan(r)) / r
	return f.k.toPixel(a*scale, b*scale), true
}

func (f *Fisheye) Undistort(px r2.Point) r2.Point {
	x, y := f.k.toNormalized(px)
	thetaD := math.Hypot(x, y)
	if thetaD == 0 {
		return px
	}
	// Newton iterations on thetaD(theta) = thetaD.
	k1, k2, k3, k4 := f.coeffs[0], f.coeffs[1], f.coeffs[2], f.coeffs[3]
	theta := thetaD
	for range MAX_ITER {
		t2 := theta * theta
		fx := f.thetaD(theta) - thetaD
		df := 1 + t2*(3*k1+t2*(5*k2+t2*(7*k3+t2*9*k4)))
		step := fx / df
		theta -= step
		if math.Abs(step) < 1e-14 {
			break
		}
	}
	scale := math.Tan(theta) / thetaD
	return f.k.toPixel(x*scale, y*scale)
}
