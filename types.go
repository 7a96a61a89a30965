package main

import (
	"math"

	sph "handeye/photogrammetry"
	"handeye/se3"
)

type project struct {
	Variant      string            `json:"variant"`
	Intrinsics   *sph.Intrinsics   `json:"intrinsics,omitempty"`
	Checkerboard *Checkerboard     `json:"checkerboard,omitempty"`
	Observations []ObservationJSON `json:"observations"`
}

// Checkerboard is the fiducial geometry: the number of squares along each
// side and the square size, in the unit of the robot poses.
type Checkerboard struct {
	Rows   int     `json:"rows"`
	Cols   int     `json:"cols"`
	Square float64 `json:"square"`
}

type Pos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ObservationJSON is one capture. Extrinsics maps the fiducial into the
// camera frame, Pose maps the end effector into the robot base frame. Both
// are 4x4 or 3x4 row-major matrices.
type ObservationJSON struct {
	Label       string         `json:"label"`
	Extrinsics  sph.MatrixInfo `json:"extrinsics"`
	Pose        sph.MatrixInfo `json:"pose"`
	ImagePoints []Pos          `json:"image_points,omitempty"`
}

// Output structs

type TransformJSON struct {
	Matrix sph.MatrixInfo `json:"matrix"`
	// Quaternion is w, x, y, z.
	Quaternion  [4]float64 `json:"quaternion"`
	Translation [3]float64 `json:"translation"`
}

func newTransformJSON(t se3.Transform) TransformJSON {
	q := se3.Quaternion(t)
	tr := t.Translation()
	return TransformJSON{
		Matrix:      sph.NewMatrixInfo(t.Matrix()),
		Quaternion:  [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
		Translation: [3]float64{tr.X, tr.Y, tr.Z},
	}
}

type AverageJSON struct {
	Transform  TransformJSON `json:"transform"`
	Samples    int           `json:"samples"`
	Iterations int           `json:"iterations"`
	Converged  bool          `json:"converged"`
}

// ObservationErrorJSON is the RMS pixel error of one observation. RMS is null
// when the fiducial falls behind the camera.
type ObservationErrorJSON struct {
	Label string   `json:"label"`
	RMS   *float64 `json:"rms"`
}

type ReprojectionJSON struct {
	Mean           *float64               `json:"mean"`
	PerObservation []ObservationErrorJSON `json:"per_observation"`
	MaxError       float64                `json:"max_error,omitempty"`
	Accepted       *bool                  `json:"accepted,omitempty"`
}

type ReportJSON struct {
	Variant               string            `json:"variant"`
	X                     TransformJSON     `json:"x"`
	StaticFrame           TransformJSON     `json:"static_frame"`
	StaticFrameConverged  bool              `json:"static_frame_converged"`
	StaticFrameIterations int               `json:"static_frame_iterations"`
	Pairs                 int               `json:"pairs"`
	RotationResidual      float64           `json:"rotation_residual"`
	TranslationResidual   float64           `json:"translation_residual"`
	Reprojection          *ReprojectionJSON `json:"reprojection,omitempty"`
	TriangulationRMS      *float64          `json:"triangulation_rms,omitempty"`
}

// finite returns nil for values JSON cannot hold.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
