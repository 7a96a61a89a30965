package imports

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"

	"handeye/photogrammetry"
	"handeye/se3"
	"handeye/solver"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
	return path
}

const intrinsicsXML = `<?xml version="1.0"?>
<opencv_storage>
<calibration_Time>"Mon Oct 19 10:00:00 2026"</calibration_Time>
<image_Width>1280</image_Width>
<image_Height>720</image_Height>
<Camera_Matrix type_id="opencv-matrix">
  <rows>3</rows>
  <cols>3</cols>
  <dt>d</dt>
  <data>
    9.0e+02 0. 640.5 0. 9.1e+02 360.25 0. 0. 1.</data></Camera_Matrix>
<Distortion_Coefficients type_id="opencv-matrix">
  <rows>5</rows>
  <cols>1</cols>
  <dt>d</dt>
  <data>
    -0.1 0.01 0.001 -0.002 0.</data></Distortion_Coefficients>
</opencv_storage>
`

func TestReadIntrinsicsXML(t *testing.T) {
	in, err := ReadIntrinsicsXML(writeFile(t, "camera.xml", intrinsicsXML))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, in.Width, test.ShouldEqual, 1280)
	test.That(t, in.Height, test.ShouldEqual, 720)
	test.That(t, in.Model, test.ShouldEqual, photogrammetry.PinholeModel)
	test.That(t, in.CameraMatrix.Data, test.ShouldResemble, []float64{900, 0, 640.5, 0, 910, 360.25, 0, 0, 1})
	test.That(t, in.DistortionMatrix.Shape, test.ShouldResemble, photogrammetry.Shape{Row: 5, Col: 1})

	model, err := photogrammetry.NewIntrinsicsModel(in)
	test.That(t, err, test.ShouldBeNil)
	pinhole, ok := model.(*photogrammetry.Pinhole)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pinhole.Distortion()[3], test.ShouldEqual, -0.002)
}

func TestReadIntrinsicsXMLErrors(t *testing.T) {
	_, err := ReadIntrinsicsXML(filepath.Join(t.TempDir(), "missing.xml"))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ReadIntrinsicsXML(writeFile(t, "broken.xml", "<opencv_storage><image_Width>"))
	test.That(t, err, test.ShouldNotBeNil)

	badValue := `<opencv_storage><Camera_Matrix><rows>3</rows><cols>3</cols><data>1 0 x 0 1 0 0 0 1</data></Camera_Matrix></opencv_storage>`
	_, err = ReadIntrinsicsXML(writeFile(t, "value.xml", badValue))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "Camera_Matrix")

	wrongShape := `<opencv_storage><Camera_Matrix><rows>2</rows><cols>2</cols><data>1 0 0 1</data></Camera_Matrix></opencv_storage>`
	_, err = ReadIntrinsicsXML(writeFile(t, "shape.xml", wrongShape))
	test.That(t, errors.Is(err, photogrammetry.ErrNoIntrinsics), test.ShouldBeTrue)

	fisheye := `<opencv_storage><camera_Model>Fisheye</camera_Model><Camera_Matrix><rows>3</rows><cols>3</cols><data>500 0 320 0 500 240 0 0 1</data></Camera_Matrix></opencv_storage>`
	in, err := ReadIntrinsicsXML(writeFile(t, "fisheye.xml", fisheye))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, in.Model, test.ShouldEqual, photogrammetry.FisheyeModel)
	test.That(t, len(in.DistortionMatrix.Data), test.ShouldEqual, 0)
}

func TestReadExtrinsicMetashape(t *testing.T) {
	content := "# Cameras (3)\n" +
		"# PhotoID\tX\tY\tZ\tOmega\tPhi\tKappa\tr11\tr12\tr13\tr21\tr22\tr23\tr31\tr32\tr33\n" +
		"IMG_0001\t10\t20\t30\t0\t0\t0\t1\t0\t0\t0\t1\t0\t0\t0\t1\n" +
		"IMG_0002\t1\t2\n" +
		"IMG_0003\t1\t2\t3\t0\t0\t0\tone\t0\t0\t0\t1\t0\t0\t0\t1\n"
	core, logs := observer.New(zap.DebugLevel)
	extrinsics, err := ReadExtrinsicMetashape(writeFile(t, "cameras.txt", content), zap.New(core).Sugar())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(extrinsics), test.ShouldEqual, 1)
	test.That(t, len(logs.FilterMessageSnippet("skipping").All()), test.ShouldEqual, 2)

	ext := extrinsics["IMG_0001"]
	test.That(t, ext.At(1, 1), test.ShouldAlmostEqual, -1, 1e-12)
	test.That(t, ext.At(2, 2), test.ShouldAlmostEqual, -1, 1e-12)
	center := photogrammetry.CameraCenter(ext)
	test.That(t, center.X, test.ShouldAlmostEqual, 10, 1e-9)
	test.That(t, center.Y, test.ShouldAlmostEqual, 20, 1e-9)
	test.That(t, center.Z, test.ShouldAlmostEqual, 30, 1e-9)

	_, err = ReadExtrinsicMetashape(filepath.Join(t.TempDir(), "missing.txt"), zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadPoseTable(t *testing.T) {
	content := "# label\tr11 r12 r13 tx r21 r22 r23 ty r31 r32 r33 tz\n" +
		"a\t1\t0\t0\t100\t0\t1\t0\t0\t0\t0\t1\t50\n" +
		"b\t0\t-1\t0\t1\t1\t0\t0\t2\t0\t0\t1\t3\t0\t0\t0\t1\n"
	poses, err := ReadPoseTable(writeFile(t, "poses.tsv", content))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(poses), test.ShouldEqual, 2)
	test.That(t, poses["a"].Translation(), test.ShouldResemble, r3.Vector{X: 100, Z: 50})
	test.That(t, se3.AlmostEqual(poses["b"], se3.NearestValid(poses["b"]), 1e-12), test.ShouldBeTrue)
	test.That(t, se3.RotationAngle(poses["b"]), test.ShouldAlmostEqual, 1.5707963267948966, 1e-12)

	for name, bad := range map[string]string{
		"duplicate": "a\t1\t0\t0\t0\t0\t1\t0\t0\t0\t0\t1\t0\na\t1\t0\t0\t0\t0\t1\t0\t0\t0\t0\t1\t0\n",
		"count":     "a\t1\t0\t0\n",
		"value":     "a\t1\t0\t0\t0\t0\tx\t0\t0\t0\t0\t1\t0\n",
		"label":     "\t1\t0\t0\t0\t0\t1\t0\t0\t0\t0\t1\t0\n",
		"empty":     "# nothing\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadPoseTable(writeFile(t, name+".tsv", bad))
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}

func TestMatchObservations(t *testing.T) {
	extrinsics := map[string]se3.Transform{
		"c": se3.Translation(0, 0, 3),
		"a": se3.Translation(0, 0, 1),
		"b": se3.Translation(0, 0, 2),
	}
	poses := map[string]se3.Transform{
		"b": se3.RotX(0.2),
		"c": se3.RotX(0.3),
		"d": se3.RotX(0.4),
	}
	core, logs := observer.New(zap.DebugLevel)
	observations, err := MatchObservations(extrinsics, poses, zap.New(core).Sugar())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(observations), test.ShouldEqual, 2)
	test.That(t, observations[0].Label, test.ShouldEqual, "b")
	test.That(t, observations[1].Label, test.ShouldEqual, "c")
	test.That(t, observations[1].Extrinsic, test.ShouldResemble, extrinsics["c"])
	test.That(t, observations[1].Pose, test.ShouldResemble, poses["c"])
	test.That(t, len(logs.FilterLevelExact(zap.WarnLevel).All()), test.ShouldEqual, 2)

	delete(poses, "c")
	_, err = MatchObservations(extrinsics, poses, zaptest.NewLogger(t).Sugar())
	test.That(t, errors.Is(err, solver.ErrInsufficientData), test.ShouldBeTrue)
}

func TestRequireFiles(t *testing.T) {
	present := writeFile(t, "present.txt", "x")
	test.That(t, RequireFiles(present), test.ShouldBeNil)

	missing := filepath.Join(t.TempDir(), "missing.txt")
	err := RequireFiles(present, missing)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, missing)
}
