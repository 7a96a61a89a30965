package se3

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// nearPi is how close to π an angle must be before Log reads the axis from
// the symmetric part of the rotation.
const nearPi = 1e-6

// Hat returns the skew-symmetric matrix [w]x.
func Hat(w r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -w.Z, w.Y,
		w.Z, 0, -w.X,
		-w.Y, w.X, 0,
	})
}

// Exp maps a rotation vector to its rotation matrix (Rodrigues' formula).
func Exp(w r3.Vector) *mat.Dense {
	theta := w.Norm()
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if theta == 0 {
		return r
	}
	a := w.Mul(1 / theta)
	s, c := math.Sincos(theta)
	axis := [3]float64{a.X, a.Y, a.Z}
	k := Hat(a)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := (1-c)*axis[i]*axis[j] + s*k.At(i, j)
			if i == j {
				v += c
			}
			r.Set(i, j, v)
		}
	}
	return r
}

// Log maps a rotation matrix to its rotation vector, with angle in [0, π].
func Log(r mat.Matrix) r3.Vector {
	v := r3.Vector{
		X: r.At(2, 1) - r.At(1, 2),
		Y: r.At(0, 2) - r.At(2, 0),
		Z: r.At(1, 0) - r.At(0, 1),
	}
	s := v.Norm() / 2
	c := (r.At(0, 0) + r.At(1, 1) + r.At(2, 2) - 1) / 2
	theta := math.Atan2(s, c)

	switch {
	case theta == 0:
		return r3.Vector{}
	case math.Pi-theta < nearPi:
		// aaᵀ = (sym(R) - cos·I) / (1 - cos); take the column with the largest diagonal.
		var aat [3][3]float64
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				sym := (r.At(i, j) + r.At(j, i)) / 2
				if i == j {
					sym -= c
				}
				aat[i][j] = sym / (1 - c)
			}
		}
		k := 0
		for i := 1; i < 3; i++ {
			if aat[i][i] > aat[k][k] {
				k = i
			}
		}
		n := math.Sqrt(aat[k][k])
		a := r3.Vector{X: aat[0][k] / n, Y: aat[1][k] / n, Z: aat[2][k] / n}
		if a.Dot(v) < 0 {
			a = a.Mul(-1)
		}
		return a.Normalize().Mul(theta)
	case s < 1e-12:
		return v.Mul(0.5)
	default:
		return v.Mul(theta / (2 * s))
	}
}

// RotationAngle returns the rotation angle of t in radians.
func RotationAngle(t Transform) float64 {
	return Log(t.Rotation()).Norm()
}

// AngleBetween returns the angle of the relative rotation R1ᵀ·R2.
func AngleBetween(t1, t2 Transform) float64 {
	var rel mat.Dense
	rel.Mul(t1.Rotation().T(), t2.Rotation())
	return Log(&rel).Norm()
}

// TranslationDistance returns the Euclidean distance between the translations.
func TranslationDistance(t1, t2 Transform) float64 {
	return t1.Translation().Sub(t2.Translation()).Norm()
}

// AlmostEqual reports whether every element of the two matrices is within eps.
func AlmostEqual(t1, t2 Transform, eps float64) bool {
	for i := range t1.m {
		if math.Abs(t1.m[i]-t2.m[i]) > eps {
			return false
		}
	}
	return true
}

// Quaternion returns the unit quaternion of the rotation block.
func Quaternion(t Transform) quat.Number {
	w := Log(t.Rotation())
	theta := w.Norm()
	if theta == 0 {
		return quat.Number{Real: 1}
	}
	a := w.Mul(math.Sin(theta/2) / theta)
	return quat.Number{Real: math.Cos(theta / 2), Imag: a.X, Jmag: a.Y, Kmag: a.Z}
}
