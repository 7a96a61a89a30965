// Package se3 implements rigid body transforms, rotation logarithms and
// geodesic pose averaging.
package se3

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DefaultTolerance is the orthonormality tolerance used by Compose.
const DefaultTolerance = 1e-8

// Transform is a rigid body transformation held as a row-major 4x4
// homogeneous matrix. It is a value: accessors return copies.
type Transform struct {
	m [16]float64
}

// Identity returns the identity transform.
func Identity() Transform {
	var t Transform
	t.m[0], t.m[5], t.m[10], t.m[15] = 1, 1, 1, 1
	return t
}

// New builds a transform from a 3x3 rotation and a translation. The rotation
// is taken as is; use Validate or NearestValid to check or repair it.
func New(rotation mat.Matrix, translation r3.Vector) Transform {
	if r, c := rotation.Dims(); r != 3 || c != 3 {
		panic(mat.ErrShape)
	}
	t := Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t.m[4*i+j] = rotation.At(i, j)
		}
	}
	t.m[3], t.m[7], t.m[11] = translation.X, translation.Y, translation.Z
	return t
}

// FromMatrix converts a 4x4 homogeneous matrix or a 3x4 [R|t] matrix.
func FromMatrix(m mat.Matrix) (Transform, error) {
	r, c := m.Dims()
	if c != 4 || (r != 3 && r != 4) {
		return Transform{}, errors.Errorf("expected a 4x4 or 3x4 matrix, got %dx%d", r, c)
	}
	t := Identity()
	for i := 0; i < r; i++ {
		for j := 0; j < 4; j++ {
			t.m[4*i+j] = m.At(i, j)
		}
	}
	return t, nil
}

// FromSlice converts 16 (4x4) or 12 (3x4) row-major values.
func FromSlice(data []float64) (Transform, error) {
	switch len(data) {
	case 16, 12:
		return FromMatrix(mat.NewDense(len(data)/4, 4, append([]float64(nil), data...)))
	default:
		return Transform{}, errors.Errorf("expected 12 or 16 values, got %d", len(data))
	}
}

// Translation returns a pure translation.
func Translation(x, y, z float64) Transform {
	t := Identity()
	t.m[3], t.m[7], t.m[11] = x, y, z
	return t
}

// RotX returns a rotation of theta radians about the x axis.
func RotX(theta float64) Transform {
	return FromAxisAngle(r3.Vector{X: 1}, theta)
}

// RotY returns a rotation of theta radians about the y axis.
func RotY(theta float64) Transform {
	return FromAxisAngle(r3.Vector{Y: 1}, theta)
}

// RotZ returns a rotation of theta radians about the z axis.
func RotZ(theta float64) Transform {
	return FromAxisAngle(r3.Vector{Z: 1}, theta)
}

// FromAxisAngle returns a rotation of theta radians about axis. A zero axis
// gives the identity.
func FromAxisAngle(axis r3.Vector, theta float64) Transform {
	n := axis.Norm()
	if n == 0 {
		return Identity()
	}
	return FromRotationVector(axis.Mul(theta / n))
}

// FromRotationVector returns the rotation exp([w]x) with no translation.
func FromRotationVector(w r3.Vector) Transform {
	return New(Exp(w), r3.Vector{})
}

// At returns the (i, j) element of the homogeneous matrix.
func (t Transform) At(i, j int) float64 {
	return t.m[4*i+j]
}

// Data returns the 16 row-major values.
func (t Transform) Data() []float64 {
	out := make([]float64, 16)
	copy(out, t.m[:])
	return out
}

// Matrix returns the 4x4 homogeneous matrix.
func (t Transform) Matrix() *mat.Dense {
	return mat.NewDense(4, 4, t.Data())
}

// Rotation returns the 3x3 rotation block.
func (t Transform) Rotation() *mat.Dense {
	r := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r.Set(i, j, t.m[4*i+j])
		}
	}
	return r
}

// Translation returns the translation column.
func (t Transform) Translation() r3.Vector {
	return r3.Vector{X: t.m[3], Y: t.m[7], Z: t.m[11]}
}

// Apply maps a point through the transform.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: t.m[0]*p.X + t.m[1]*p.Y + t.m[2]*p.Z + t.m[3],
		Y: t.m[4]*p.X + t.m[5]*p.Y + t.m[6]*p.Z + t.m[7],
		Z: t.m[8]*p.X + t.m[9]*p.Y + t.m[10]*p.Z + t.m[11],
	}
}

func (t Transform) String() string {
	return fmt.Sprintf("%v", mat.Formatted(t.Matrix(), mat.Prefix(""), mat.Squeeze()))
}

// mul is the unchecked 4x4 product a·b.
func mul(a, b Transform) Transform {
	var out Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += a.m[4*i+k] * b.m[4*k+j]
			}
			out.m[4*i+j] = s
		}
	}
	return out
}

// Compose returns t1·t2. Both operands must be rigid within DefaultTolerance.
func Compose(t1, t2 Transform) (Transform, error) {
	if err := Validate(t1, DefaultTolerance); err != nil {
		return Transform{}, errors.Wrap(err, "left operand")
	}
	if err := Validate(t2, DefaultTolerance); err != nil {
		return Transform{}, errors.Wrap(err, "right operand")
	}
	return mul(t1, t2), nil
}

// ComposeAll chains the transforms left to right. No arguments gives the identity.
func ComposeAll(ts ...Transform) (Transform, error) {
	out := Identity()
	for i, t := range ts {
		var err error
		if out, err = Compose(out, t); err != nil {
			return Transform{}, errors.Wrapf(err, "operand %d", i)
		}
	}
	return out, nil
}

// Invert returns [Rᵀ, −Rᵀt], the inverse of a rigid transform.
func Invert(t Transform) Transform {
	out := Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.m[4*i+j] = t.m[4*j+i]
		}
	}
	tr := t.Translation()
	for i := 0; i < 3; i++ {
		out.m[4*i+3] = -(out.m[4*i]*tr.X + out.m[4*i+1]*tr.Y + out.m[4*i+2]*tr.Z)
	}
	return out
}

// Validate reports why t is not a rigid transform within eps, or nil.
func Validate(t Transform, eps float64) error {
	for _, v := range t.m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrap(ErrInvalidTransform, "non-finite entry")
		}
	}
	var dev float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += t.m[4*k+i] * t.m[4*k+j]
			}
			if i == j {
				s--
			}
			dev += s * s
		}
	}
	if dev = math.Sqrt(dev); dev > eps {
		return errors.Wrapf(ErrInvalidTransform, "rotation is not orthonormal (|RᵀR-I| = %g)", dev)
	}
	if det := mat.Det(t.Rotation()); math.Abs(det-1) > eps {
		return errors.Wrapf(ErrInvalidTransform, "rotation determinant is %g", det)
	}
	if math.Abs(t.m[12]) > eps || math.Abs(t.m[13]) > eps || math.Abs(t.m[14]) > eps || math.Abs(t.m[15]-1) > eps {
		return errors.Wrapf(ErrInvalidTransform, "bottom row is %v", t.m[12:])
	}
	return nil
}

// IsValid reports whether t is a rigid transform within eps.
func IsValid(t Transform, eps float64) bool {
	return Validate(t, eps) == nil
}

// NearestValid projects t onto SE(3). The rotation block is replaced by the
// closest rotation in the Frobenius norm, U·diag(1, 1, det(UVᵀ))·Vᵀ, and the
// bottom row is reset. Non-finite input is returned unchanged.
func NearestValid(t Transform) Transform {
	for _, v := range t.m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return t
		}
	}
	r, ok := nearestRotation(t.Rotation())
	if !ok {
		return t
	}
	return New(r, t.Translation())
}

func nearestRotation(m mat.Matrix) (*mat.Dense, bool) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var uvt mat.Dense
	uvt.Mul(&u, v.T())
	d := mat.NewDiagDense(3, []float64{1, 1, 1})
	if mat.Det(&uvt) < 0 {
		d.SetDiag(2, -1)
	}
	var r mat.Dense
	r.Mul(&u, d)
	r.Mul(&r, v.T())
	return &r, true
}
