// Package solver solves the hand-eye equation AX = XB for a rigid transform X.
package solver

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"handeye/se3"
)

// MinPairs is the smallest number of pairs Solve accepts. Two pairs with
// distinct rotation axes determine X.
const MinPairs = 2

// Options tunes pair construction and solving. Zero fields take the defaults.
type Options struct {
	// Tolerance is the rigidity tolerance the solution must meet.
	Tolerance float64
	// InputTolerance is the rigidity tolerance inputs are checked against
	// before being projected onto SE(3).
	InputTolerance float64
	// DegeneracyTolerance is the smallest accepted ratio between the second
	// smallest and the largest singular value of the rotation system.
	DegeneracyTolerance float64
	// RankTolerance is the relative singular value cutoff of the translation system.
	RankTolerance float64
}

// DefaultOptions returns the defaults used for zero fields.
func DefaultOptions() Options {
	return Options{
		Tolerance:           se3.DefaultTolerance,
		InputTolerance:      1e-6,
		DegeneracyTolerance: 1e-6,
		RankTolerance:       1e-10,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Tolerance <= 0 {
		o.Tolerance = def.Tolerance
	}
	if o.InputTolerance <= 0 {
		o.InputTolerance = def.InputTolerance
	}
	if o.DegeneracyTolerance <= 0 {
		o.DegeneracyTolerance = def.DegeneracyTolerance
	}
	if o.RankTolerance <= 0 {
		o.RankTolerance = def.RankTolerance
	}
	return o
}

// Solution is the solved X with its diagnostics.
type Solution struct {
	X     se3.Transform
	Valid bool
	Pairs int
	// RotationCorrection is the Frobenius distance between the least squares
	// rotation and its projection onto SO(3).
	RotationCorrection float64
	// RotationResidual is the RMS angle (rad) between A·X and X·B.
	RotationResidual float64
	// TranslationResidual is the RMS distance between the translations of A·X and X·B.
	TranslationResidual float64
	// ReprojectionRMS is the mean reprojection error in pixels, when Reprojected.
	ReprojectionRMS float64
	Reprojected     bool
}

// SolveObservations builds the pairs of the given variant and solves them.
func SolveObservations(extrinsics, poses []se3.Transform, variant Variant, opts Options) (Solution, error) {
	pairs, err := BuildPairs(extrinsics, poses, variant, opts)
	if err != nil {
		return Solution{}, err
	}
	return Solve(pairs, opts)
}

// Solve returns the X minimising A_i·X − X·B_i over all pairs in the least
// squares sense. The rotation is the null vector of the stacked Kronecker
// system projected onto SO(3); the translation then solves the stacked linear
// system (R_A − I)·t = R_X·t_B − t_A.
func Solve(pairs []Pair, opts Options) (Solution, error) {
	opts = opts.withDefaults()
	if len(pairs) < MinPairs {
		return Solution{}, errors.Wrapf(ErrInsufficientData, "need at least %d pairs, got %d", MinPairs, len(pairs))
	}
	snapped := make([]Pair, len(pairs))
	for i, p := range pairs {
		if err := se3.Validate(p.A, opts.InputTolerance); err != nil {
			return Solution{}, errors.Wrapf(err, "pair %d A", i)
		}
		if err := se3.Validate(p.B, opts.InputTolerance); err != nil {
			return Solution{}, errors.Wrapf(err, "pair %d B", i)
		}
		snapped[i] = Pair{A: se3.NearestValid(p.A), B: se3.NearestValid(p.B), I: p.I, J: p.J}
	}

	rx, correction, err := solveRotation(snapped, opts.DegeneracyTolerance)
	if err != nil {
		return Solution{}, err
	}
	tx, err := solveTranslation(snapped, rx, opts.RankTolerance)
	if err != nil {
		return Solution{}, err
	}

	x := se3.NearestValid(se3.New(rx, tx))
	if err := se3.Validate(x, opts.Tolerance); err != nil {
		return Solution{}, errors.Wrap(ErrDegenerateSolution, err.Error())
	}
	rotRes, transRes := Residuals(snapped, x)
	return Solution{
		X:                   x,
		Valid:               true,
		Pairs:               len(snapped),
		RotationCorrection:  correction,
		RotationResidual:    rotRes,
		TranslationResidual: transRes,
	}, nil
}

func solveRotation(pairs []Pair, degeneracyTol float64) (*mat.Dense, float64, error) {
	eye := mat.NewDiagDense(3, []float64{1, 1, 1})
	system := mat.NewDense(9*len(pairs), 9, nil)
	for i, p := range pairs {
		var left, right mat.Dense
		left.Kronecker(eye, p.A.Rotation())
		right.Kronecker(p.B.Rotation().T(), eye)
		block := system.Slice(9*i, 9*i+9, 0, 9).(*mat.Dense)
		block.Sub(&left, &right)
	}

	var svd mat.SVD
	if ok := svd.Factorize(system, mat.SVDThin); !ok {
		return nil, 0, errors.Wrap(ErrDegenerateSolution, "failed to factorize the rotation system")
	}
	values := svd.Values(nil)
	if values[0] == 0 {
		return nil, 0, errors.Wrap(ErrInsufficientData, "no pair contains a rotation")
	}
	if values[7] < degeneracyTol*values[0] {
		return nil, 0, errors.Wrapf(ErrInsufficientData,
			"rotation axes are not diverse enough (singular value ratio %g)", values[7]/values[0])
	}

	var v mat.Dense
	svd.VTo(&v)
	// The null vector is vec(R_X), stacked column by column.
	raw := mat.NewDense(3, 3, nil)
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			raw.Set(r, c, v.At(3*c+r, 8))
		}
	}
	det := mat.Det(raw)
	if math.Abs(det) < 1e-12 || math.IsNaN(det) {
		return nil, 0, errors.Wrap(ErrDegenerateSolution, "rotation null vector is singular")
	}
	raw.Scale(math.Copysign(1/math.Cbrt(math.Abs(det)), det), raw)

	proj := se3.NearestValid(se3.New(raw, r3.Vector{})).Rotation()
	var diff mat.Dense
	diff.Sub(proj, raw)
	return proj, mat.Norm(&diff, 2), nil
}

func solveTranslation(pairs []Pair, rx mat.Matrix, rankTol float64) (r3.Vector, error) {
	coeffs := mat.NewDense(3*len(pairs), 3, nil)
	rhs := mat.NewVecDense(3*len(pairs), nil)
	for i, p := range pairs {
		ra := p.A.Rotation()
		tb := p.B.Translation()
		ta := p.A.Translation()
		var rtb mat.VecDense
		rtb.MulVec(rx, mat.NewVecDense(3, []float64{tb.X, tb.Y, tb.Z}))
		taSlice := []float64{ta.X, ta.Y, ta.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				v := ra.At(r, c)
				if r == c {
					v--
				}
				coeffs.Set(3*i+r, c, v)
			}
			rhs.SetVec(3*i+r, rtb.AtVec(r)-taSlice[r])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(coeffs, mat.SVDThin); !ok {
		return r3.Vector{}, errors.Wrap(ErrDegenerateSolution, "failed to factorize the translation system")
	}
	if rank := svd.Rank(rankTol); rank < 3 {
		return r3.Vector{}, errors.Wrapf(ErrDegenerateSolution, "translation system has rank %d", rank)
	}
	var t mat.VecDense
	svd.SolveVecTo(&t, rhs, 3)
	out := r3.Vector{X: t.AtVec(0), Y: t.AtVec(1), Z: t.AtVec(2)}
	for _, v := range []float64{out.X, out.Y, out.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return r3.Vector{}, errors.Wrap(ErrDegenerateSolution, "translation is not finite")
		}
	}
	return out, nil
}

// Residuals returns the RMS rotation (rad) and translation residuals of
// A_i·X against X·B_i.
func Residuals(pairs []Pair, x se3.Transform) (float64, float64) {
	if len(pairs) == 0 {
		return 0, 0
	}
	rot := make([]float64, len(pairs))
	trans := make([]float64, len(pairs))
	for i, p := range pairs {
		ax, err1 := se3.Compose(p.A, x)
		xb, err2 := se3.Compose(x, p.B)
		if err1 != nil || err2 != nil {
			rot[i], trans[i] = math.Inf(1), math.Inf(1)
			continue
		}
		a := se3.AngleBetween(ax, xb)
		d := se3.TranslationDistance(ax, xb)
		rot[i], trans[i] = a*a, d*d
	}
	return math.Sqrt(stat.Mean(rot, nil)), math.Sqrt(stat.Mean(trans, nil))
}
