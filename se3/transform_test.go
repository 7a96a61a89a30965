package se3

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func randomTransform(rng *rand.Rand) Transform {
	axis := r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
	angle := 0.2 + rng.Float64()*2.6
	rot := FromAxisAngle(axis, angle)
	return New(rot.Rotation(), r3.Vector{X: rng.Float64()*1000 - 500, Y: rng.Float64()*1000 - 500, Z: rng.Float64()*1000 - 500})
}

func TestIdentityAndGenerators(t *testing.T) {
	test.That(t, IsValid(Identity(), DefaultTolerance), test.ShouldBeTrue)

	tr := Translation(1, 2, 3)
	test.That(t, tr.Translation(), test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, RotationAngle(tr), test.ShouldEqual, 0.0)

	rz := RotZ(math.Pi / 2)
	test.That(t, IsValid(rz, DefaultTolerance), test.ShouldBeTrue)
	p := rz.Apply(r3.Vector{X: 1})
	test.That(t, p.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, p.Y, test.ShouldAlmostEqual, 1, 1e-12)

	rx := RotX(math.Pi / 2)
	p = rx.Apply(r3.Vector{Y: 1})
	test.That(t, p.Z, test.ShouldAlmostEqual, 1, 1e-12)

	ry := RotY(math.Pi / 2)
	p = ry.Apply(r3.Vector{Z: 1})
	test.That(t, p.X, test.ShouldAlmostEqual, 1, 1e-12)

	test.That(t, FromAxisAngle(r3.Vector{}, 1), test.ShouldResemble, Identity())
}

func TestFromMatrix(t *testing.T) {
	_, err := FromMatrix(mat.NewDense(3, 3, nil))
	test.That(t, err, test.ShouldNotBeNil)

	tf, err := FromMatrix(mat.NewDense(3, 4, []float64{
		1, 0, 0, 10,
		0, 1, 0, 20,
		0, 0, 1, 30,
	}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tf.At(3, 3), test.ShouldEqual, 1.0)
	test.That(t, tf.Translation(), test.ShouldResemble, r3.Vector{X: 10, Y: 20, Z: 30})

	tf2, err := FromSlice(tf.Data())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tf2, test.ShouldResemble, tf)

	_, err = FromSlice([]float64{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestInvertRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		tf := randomTransform(rng)
		test.That(t, AlmostEqual(Invert(Invert(tf)), tf, 1e-9), test.ShouldBeTrue)

		id, err := Compose(tf, Invert(tf))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, AlmostEqual(id, Identity(), 1e-9), test.ShouldBeTrue)

		id, err = Compose(Invert(tf), tf)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, AlmostEqual(id, Identity(), 1e-9), test.ShouldBeTrue)
	}
}

func TestComposeMatchesMatrixProduct(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	a, b := randomTransform(rng), randomTransform(rng)
	ab, err := Compose(a, b)
	test.That(t, err, test.ShouldBeNil)

	var want mat.Dense
	want.Mul(a.Matrix(), b.Matrix())
	test.That(t, mat.EqualApprox(ab.Matrix(), &want, 1e-9), test.ShouldBeTrue)

	abc, err := ComposeAll(a, b, Invert(b))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, AlmostEqual(abc, a, 1e-9), test.ShouldBeTrue)
}

func TestComposeRejectsInvalid(t *testing.T) {
	bad := New(mat.NewDense(3, 3, []float64{1.1, 0, 0, 0, 1, 0, 0, 0, 1}), r3.Vector{})
	_, err := Compose(bad, Identity())
	test.That(t, errors.Is(err, ErrInvalidTransform), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "left operand")

	_, err = Compose(Identity(), bad)
	test.That(t, errors.Is(err, ErrInvalidTransform), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "right operand")

	_, err = ComposeAll(Identity(), Identity(), bad)
	test.That(t, err.Error(), test.ShouldContainSubstring, "operand 2")
}

func TestValidate(t *testing.T) {
	reflection := New(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, -1}), r3.Vector{})
	err := Validate(reflection, DefaultTolerance)
	test.That(t, errors.Is(err, ErrInvalidTransform), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "determinant")

	data := Identity().Data()
	data[12] = 0.5
	tf, err := FromSlice(data)
	test.That(t, err, test.ShouldBeNil)
	err = Validate(tf, DefaultTolerance)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bottom row")

	data = Identity().Data()
	data[3] = math.NaN()
	tf, err = FromSlice(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, IsValid(tf, DefaultTolerance), test.ShouldBeFalse)
	test.That(t, math.IsNaN(NearestValid(tf).At(0, 3)), test.ShouldBeTrue)
}

func TestNearestValid(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 10; i++ {
		tf := randomTransform(rng)
		data := tf.Data()
		for k := 0; k < 12; k++ {
			if k%4 == 3 {
				continue
			}
			data[k] += 1e-4 * rng.NormFloat64()
		}
		data[12], data[15] = 1e-5, 1.00001
		noisy, err := FromSlice(data)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, IsValid(noisy, DefaultTolerance), test.ShouldBeFalse)

		fixed := NearestValid(noisy)
		test.That(t, IsValid(fixed, 1e-12), test.ShouldBeTrue)
		test.That(t, fixed.Translation(), test.ShouldResemble, noisy.Translation())

		// Closer to the noisy block than the rotation it was derived from.
		var dFixed, dOrig mat.Dense
		dFixed.Sub(fixed.Rotation(), noisy.Rotation())
		dOrig.Sub(tf.Rotation(), noisy.Rotation())
		test.That(t, mat.Norm(&dFixed, 2), test.ShouldBeLessThanOrEqualTo, mat.Norm(&dOrig, 2)+1e-12)
		test.That(t, AngleBetween(fixed, tf), test.ShouldBeLessThan, 1e-3)
	}

	// A reflection is mapped back to a proper rotation.
	reflection := New(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, -1}), r3.Vector{})
	test.That(t, IsValid(NearestValid(reflection), 1e-12), test.ShouldBeTrue)
}
