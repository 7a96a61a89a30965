package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"handeye/calibration"
	"handeye/imports"
	sph "handeye/photogrammetry"
	"handeye/se3"
	"handeye/solver"
)

// App struct
type App struct {
	logger *zap.SugaredLogger
}

// NewApp creates a new App application struct
func NewApp(logger *zap.SugaredLogger) *App {
	return &App{logger: logger}
}

// Close flushes buffered log entries. Terminals refuse fsync, which is not an
// error worth reporting.
func (a *App) Close() error {
	err := a.logger.Sync()
	if err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		return err
	}
	return nil
}

func readJSON(file string, v interface{}) error {
	jsonFile, err := os.Open(file)
	if err != nil {
		return err
	}
	defer jsonFile.Close()

	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(byteValue, v); err != nil {
		return errors.Wrapf(err, "parsing %s", file)
	}
	return nil
}

func loadProject(projectFile string) (*project, error) {
	var calibFile project
	if err := readJSON(projectFile, &calibFile); err != nil {
		return nil, err
	}
	return &calibFile, nil
}

func matrixTransform(m sph.MatrixInfo) (se3.Transform, error) {
	dense, err := m.Dense()
	if err != nil {
		return se3.Transform{}, err
	}
	return se3.FromMatrix(dense)
}

func (p *project) observations() ([]calibration.Observation, error) {
	var errs error
	observations := make([]calibration.Observation, 0, len(p.Observations))
	for i, o := range p.Observations {
		ext, err := matrixTransform(o.Extrinsics)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "observation %d (%s) extrinsics", i, o.Label))
		}
		pose, err := matrixTransform(o.Pose)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "observation %d (%s) pose", i, o.Label))
		}
		var points []r2.Point
		for _, pos := range o.ImagePoints {
			points = append(points, r2.Point{X: pos.X, Y: pos.Y})
		}
		observations = append(observations, calibration.Observation{
			Label:       o.Label,
			Extrinsic:   ext,
			Pose:        pose,
			ImagePoints: points,
		})
	}
	if errs != nil {
		return nil, errs
	}
	return observations, nil
}

// camera returns the camera model and fiducial points of the project, or nils
// when the project does not describe them.
func (p *project) camera() (sph.IntrinsicsModel, []r3.Vector, error) {
	if p.Intrinsics == nil {
		return nil, nil, nil
	}
	model, err := sph.NewIntrinsicsModel(*p.Intrinsics)
	if err != nil {
		return nil, nil, err
	}
	if p.Checkerboard == nil {
		return model, nil, nil
	}
	points, err := sph.CheckerboardPoints(p.Checkerboard.Rows, p.Checkerboard.Cols, p.Checkerboard.Square)
	if err != nil {
		return nil, nil, err
	}
	return model, points, nil
}

func (p *project) variant(override string) (solver.Variant, error) {
	if override != "" {
		return solver.ParseVariant(override)
	}
	if p.Variant == "" {
		return solver.FixedCamera, nil
	}
	return solver.ParseVariant(p.Variant)
}

// SolveOptions are the inputs of the solve command.
type SolveOptions struct {
	Project       string
	IntrinsicsXML string
	Extrinsics    string
	Metashape     bool
	Poses         string
	Variant       string
	MaxError      float64
}

// buildProject loads the project file, or assembles one from the separate
// intrinsics, extrinsics and pose files.
func (a *App) buildProject(opts SolveOptions) (*project, []calibration.Observation, error) {
	var p *project
	var observations []calibration.Observation
	switch {
	case opts.Project != "":
		if err := imports.RequireFiles(opts.Project); err != nil {
			return nil, nil, err
		}
		var err error
		if p, err = loadProject(opts.Project); err != nil {
			return nil, nil, err
		}
		if observations, err = p.observations(); err != nil {
			return nil, nil, err
		}
	case opts.Extrinsics != "" && opts.Poses != "":
		if err := imports.RequireFiles(opts.Extrinsics, opts.Poses); err != nil {
			return nil, nil, err
		}
		var extrinsics map[string]se3.Transform
		var err error
		if opts.Metashape {
			extrinsics, err = imports.ReadExtrinsicMetashape(opts.Extrinsics, a.logger)
		} else {
			extrinsics, err = imports.ReadPoseTable(opts.Extrinsics)
		}
		if err != nil {
			return nil, nil, err
		}
		poses, err := imports.ReadPoseTable(opts.Poses)
		if err != nil {
			return nil, nil, err
		}
		if observations, err = imports.MatchObservations(extrinsics, poses, a.logger); err != nil {
			return nil, nil, err
		}
		p = &project{}
	default:
		return nil, nil, errors.New("need a project file, or both an extrinsics and a poses file")
	}

	if opts.IntrinsicsXML != "" {
		intrinsics, err := imports.ReadIntrinsicsXML(opts.IntrinsicsXML)
		if err != nil {
			return nil, nil, err
		}
		p.Intrinsics = &intrinsics
	}
	return p, observations, nil
}

// Calibrate solves X for a project and reports its quality.
func (a *App) Calibrate(opts SolveOptions) (*ReportJSON, error) {
	p, observations, err := a.buildProject(opts)
	if err != nil {
		return nil, err
	}
	variant, err := p.variant(opts.Variant)
	if err != nil {
		return nil, err
	}
	model, points, err := p.camera()
	if err != nil {
		return nil, err
	}

	cfg := calibration.DefaultConfig()
	cfg.Variant = variant
	cfg.Camera = model
	cfg.Fiducial = points
	cfg.Logger = a.logger
	report, err := calibration.Calibrate(observations, cfg)
	if err != nil {
		return nil, err
	}
	a.logger.Debugf("X =\n%v", sph.FormatMatrixPrint(report.Solution.X.Matrix()))
	a.logger.Infow("calibration result",
		"pairs", report.Solution.Pairs,
		"rotation_residual_deg", sph.Rad2Degrees(report.Solution.RotationResidual),
		"translation_residual", report.Solution.TranslationResidual,
	)

	out := &ReportJSON{
		Variant:               string(report.Variant),
		X:                     newTransformJSON(report.Solution.X),
		StaticFrame:           newTransformJSON(report.StaticFrame),
		StaticFrameConverged:  report.StaticFrameConverged,
		StaticFrameIterations: report.StaticFrameStats.Iterations,
		Pairs:                 report.Solution.Pairs,
		RotationResidual:      report.Solution.RotationResidual,
		TranslationResidual:   report.Solution.TranslationResidual,
	}
	if report.Reprojection != nil {
		out.Reprojection = newReprojectionJSON(*report.Reprojection, opts.MaxError)
	}
	if report.Triangulated {
		out.TriangulationRMS = finite(report.TriangulationRMS)
	}
	return out, nil
}

func newReprojectionJSON(r calibration.Reprojection, maxError float64) *ReprojectionJSON {
	out := &ReprojectionJSON{Mean: finite(r.Mean)}
	for i, rms := range r.PerObservation {
		label := r.Labels[i]
		if label == "" {
			label = fmt.Sprint(i)
		}
		out.PerObservation = append(out.PerObservation, ObservationErrorJSON{Label: label, RMS: finite(rms)})
	}
	if maxError > 0 {
		accepted := out.Mean != nil && *out.Mean <= maxError
		out.MaxError = maxError
		out.Accepted = &accepted
	}
	return out
}

// Average returns the geodesic mean of a JSON list of matrices.
func (a *App) Average(transformsFile string) (*AverageJSON, error) {
	var matrices []sph.MatrixInfo
	if err := readJSON(transformsFile, &matrices); err != nil {
		return nil, err
	}
	var errs error
	transforms := make([]se3.Transform, 0, len(matrices))
	for i, m := range matrices {
		t, err := matrixTransform(m)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "matrix %d", i))
			continue
		}
		if err := se3.Validate(t, solver.DefaultOptions().InputTolerance); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "matrix %d", i))
			continue
		}
		transforms = append(transforms, se3.NearestValid(t))
	}
	if errs != nil {
		return nil, errs
	}

	res, err := se3.AverageWithStats(transforms, se3.DefaultAverageOptions())
	if err != nil {
		var nonConv *se3.NonConvergenceError
		if !errors.As(err, &nonConv) {
			return nil, err
		}
		a.logger.Warnw("average did not converge, using best estimate", "iterations", nonConv.Iterations, "step", nonConv.StepNorm)
	}
	a.logger.Debugw("averaged transforms", "samples", len(transforms), "iterations", res.Iterations)
	return &AverageJSON{
		Transform:  newTransformJSON(res.Transform),
		Samples:    len(transforms),
		Iterations: res.Iterations,
		Converged:  res.Converged,
	}, nil
}

// Reproject scores an existing X, read as a JSON matrix, against a project.
func (a *App) Reproject(projectFile, xFile, variantOverride string, maxError float64) (*ReprojectionJSON, error) {
	p, err := loadProject(projectFile)
	if err != nil {
		return nil, err
	}
	var xInfo sph.MatrixInfo
	if err := readJSON(xFile, &xInfo); err != nil {
		return nil, err
	}
	x, err := matrixTransform(xInfo)
	if err != nil {
		return nil, errors.Wrap(err, "x")
	}
	if err := se3.Validate(x, solver.DefaultOptions().InputTolerance); err != nil {
		return nil, errors.Wrap(err, "x")
	}
	variant, err := p.variant(variantOverride)
	if err != nil {
		return nil, err
	}
	observations, err := p.observations()
	if err != nil {
		return nil, err
	}
	model, points, err := p.camera()
	if err != nil {
		return nil, err
	}
	if model == nil || len(points) == 0 {
		return nil, errors.New("project needs intrinsics and a checkerboard to reproject")
	}

	solution := solver.Solution{X: se3.NearestValid(x), Valid: true}
	res, err := calibration.Reproject(model, solution, variant, observations, points, se3.DefaultAverageOptions())
	if err != nil {
		return nil, err
	}
	if !res.StaticFrame.Converged {
		a.logger.Warnw("static frame average did not converge, using best estimate", "iterations", res.StaticFrame.Iterations)
	}
	a.logger.Infow("reprojection", "mean_px", res.Mean)
	return newReprojectionJSON(res, maxError), nil
}
