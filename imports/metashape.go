package imports

import (
	"encoding/csv"
	"encoding/xml"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"handeye/photogrammetry"
	"handeye/se3"
)

// ReadIntrinsicsXML reads an OpenCV FileStorage document holding the camera
// matrix and distortion coefficients, as written by Metashape or OpenCV.
func ReadIntrinsicsXML(file string) (photogrammetry.Intrinsics, error) {
	xmlFile, err := os.Open(file)
	if err != nil {
		return photogrammetry.Intrinsics{}, err
	}
	defer xmlFile.Close()

	byteValue, err := io.ReadAll(xmlFile)
	if err != nil {
		return photogrammetry.Intrinsics{}, err
	}
	var intrinsicFile photogrammetry.IntrinsicsXML
	if err := xml.Unmarshal(byteValue, &intrinsicFile); err != nil {
		return photogrammetry.Intrinsics{}, errors.Wrapf(err, "parsing %s", file)
	}

	cameraMatrix, err := parseOpenCVMatrix(intrinsicFile.CameraMatrix)
	if err != nil {
		return photogrammetry.Intrinsics{}, errors.Wrap(err, "Camera_Matrix")
	}
	if cameraMatrix.Shape.Row != 3 || cameraMatrix.Shape.Col != 3 {
		return photogrammetry.Intrinsics{}, photogrammetry.NewNoIntrinsicsError("Camera_Matrix is not 3x3")
	}
	var distortion photogrammetry.MatrixInfo
	if strings.TrimSpace(intrinsicFile.DistortionCoefficients.Data) != "" {
		distortion, err = parseOpenCVMatrix(intrinsicFile.DistortionCoefficients)
		if err != nil {
			return photogrammetry.Intrinsics{}, errors.Wrap(err, "Distortion_Coefficients")
		}
	}

	model := photogrammetry.ModelKind(strings.ToLower(strings.TrimSpace(intrinsicFile.Model)))
	if model == "" {
		model = photogrammetry.PinholeModel
	}
	return photogrammetry.Intrinsics{
		Model:            model,
		Height:           intrinsicFile.ImageHeight,
		Width:            intrinsicFile.ImageWidth,
		CameraMatrix:     cameraMatrix,
		DistortionMatrix: distortion,
	}, nil
}

func parseOpenCVMatrix(m photogrammetry.OpenCVMatrixXML) (photogrammetry.MatrixInfo, error) {
	fields := strings.Fields(m.Data)
	data := make([]float64, len(fields))
	for index := range fields {
		val, err := strconv.ParseFloat(fields[index], 64)
		if err != nil {
			return photogrammetry.MatrixInfo{}, errors.Wrapf(err, "value %d", index)
		}
		data[index] = val
	}
	info := photogrammetry.MatrixInfo{
		Shape: photogrammetry.Shape{Row: m.Rows, Col: m.Cols},
		Data:  data,
	}
	if _, err := info.Dense(); err != nil {
		return photogrammetry.MatrixInfo{}, err
	}
	return info, nil
}

// ReadExtrinsicMetashape reads a Metashape camera export (tab separated:
// label, camera center X Y Z, omega phi kappa, then the 9 rotation entries)
// and returns the fiducial to camera transform of each label. Metashape
// cameras look down -z, so the rotation is flipped about x. Malformed rows are
// logged and skipped.
func ReadExtrinsicMetashape(file string, logger *zap.SugaredLogger) (map[string]se3.Transform, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	csvReader := csv.NewReader(f)
	csvReader.Comma = '\t'
	csvReader.Comment = '#'
	csvReader.FieldsPerRecord = -1

	extMap := make(map[string]se3.Transform)

	// header = {"Label", "X", "Y", "Z", "Omega", "Phi", "Kappa", "r11", "r12", "r13", "r21", "r22", "r23", "r31", "r32", "r33"}
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warnw("skipping unreadable row", "file", file, "error", err)
			continue
		}
		if len(record) < 16 {
			logger.Warnw("skipping short row", "file", file, "label", record[0], "fields", len(record))
			continue
		}
		values, err := parseFloats(record[1:16])
		if err != nil {
			logger.Warnw("skipping malformed row", "file", file, "label", record[0], "error", err)
			continue
		}
		center := r3.Vector{X: values[0], Y: values[1], Z: values[2]}

		rotMat := mat.NewDense(3, 3, values[6:15])
		rotMat.Mul(photogrammetry.RotateXAxis(math.Pi), rotMat)

		// t = -R·C
		var transMat mat.Dense
		transMat.Mul(rotMat, mat.NewDense(3, 1, []float64{center.X, center.Y, center.Z}))
		transMat.Scale(-1, &transMat)

		ext := se3.New(rotMat, r3.Vector{X: transMat.At(0, 0), Y: transMat.At(1, 0), Z: transMat.At(2, 0)})
		if err := se3.Validate(ext, 1e-6); err != nil {
			logger.Warnw("skipping camera with invalid rotation", "file", file, "label", record[0], "error", err)
			continue
		}
		extMap[record[0]] = se3.NearestValid(ext)
		logger.Debugw("camera", "label", record[0], "center", photogrammetry.CameraCenter(extMap[record[0]]))
	}
	return extMap, nil
}

func parseFloats(fields []string) ([]float64, error) {
	values := make([]float64, len(fields))
	for i, field := range fields {
		val, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "field %d", i+1)
		}
		values[i] = val
	}
	return values, nil
}
