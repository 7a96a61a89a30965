package photogrammetry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"handeye/se3"
)

func FormatMatrixPrint(matrix mat.Matrix) fmt.Formatter {
	return mat.Formatted(matrix, mat.Prefix("    "), mat.Squeeze())
}

func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

func Rad2Degrees(rad float64) float64 {
	res := rad * 180 / math.Pi
	return roundFloat(res, 10)
}

// RotateXAxis returns the 3x3 rotation of theta radians about x.
func RotateXAxis(theta float64) *mat.Dense {
	return se3.RotX(theta).Rotation()
}

// CameraCenter returns the camera position -Rᵀt in the frame the extrinsic maps from.
func CameraCenter(extrinsic se3.Transform) r3.Vector {
	return se3.Invert(extrinsic).Translation()
}
