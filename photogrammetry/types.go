package photogrammetry

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type Shape struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// MatrixInfo is a row-major matrix as stored in project files.
type MatrixInfo struct {
	Shape Shape     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Dense converts the stored matrix, checking that the data fills the shape.
func (m MatrixInfo) Dense() (*mat.Dense, error) {
	if m.Shape.Row <= 0 || m.Shape.Col <= 0 {
		return nil, errors.Errorf("invalid matrix shape %dx%d", m.Shape.Row, m.Shape.Col)
	}
	if len(m.Data) != m.Shape.Row*m.Shape.Col {
		return nil, errors.Errorf("matrix shape %dx%d needs %d values, got %d",
			m.Shape.Row, m.Shape.Col, m.Shape.Row*m.Shape.Col, len(m.Data))
	}
	return mat.NewDense(m.Shape.Row, m.Shape.Col, append([]float64(nil), m.Data...)), nil
}

// NewMatrixInfo stores a matrix row-major.
func NewMatrixInfo(m mat.Matrix) MatrixInfo {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, m.At(i, j))
		}
	}
	return MatrixInfo{Shape: Shape{Row: r, Col: c}, Data: data}
}

type Extrinsics struct {
	Matrix MatrixInfo `json:"matrix"`
}

// Intrinsics is the serialised form of an IntrinsicsModel. Model is
// "pinhole" (default) or "fisheye".
type Intrinsics struct {
	Model            ModelKind  `json:"model,omitempty"`
	Height           int        `json:"height"`
	Width            int        `json:"width"`
	CameraMatrix     MatrixInfo `json:"camera_matrix"`
	DistortionMatrix MatrixInfo `json:"distortion_matrix"`
}

// OpenCVMatrixXML is an opencv-matrix node of an OpenCV FileStorage document.
type OpenCVMatrixXML struct {
	Rows int    `xml:"rows"`
	Cols int    `xml:"cols"`
	Dt   string `xml:"dt"`
	Data string `xml:"data"`
}

// IntrinsicsXML is the OpenCV FileStorage layout written by calibration tools.
type IntrinsicsXML struct {
	ImageWidth             int             `xml:"image_Width"`
	ImageHeight            int             `xml:"image_Height"`
	Model                  string          `xml:"camera_Model"`
	CameraMatrix           OpenCVMatrixXML `xml:"Camera_Matrix"`
	DistortionCoefficients OpenCVMatrixXML `xml:"Distortion_Coefficients"`
}

// ProjPoint is an undistorted image point with the projection matrix of the view it was seen in.
type ProjPoint struct {
	Mat   mat.Matrix
	Point mat.Vector
}
