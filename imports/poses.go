package imports

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"

	"handeye/se3"
)

// ReadPoseTable reads a tab separated table of labelled transforms. Each row
// is a label followed by 12 (3x4) or 16 (4x4) row-major values. Lines
// starting with # are comments. Any malformed row fails the whole read.
func ReadPoseTable(file string) (map[string]se3.Transform, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	csvReader := csv.NewReader(f)
	csvReader.Comma = '\t'
	csvReader.Comment = '#'
	csvReader.FieldsPerRecord = -1

	poses := make(map[string]se3.Transform)
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", file)
		}
		line, _ := csvReader.FieldPos(0)
		label := record[0]
		if label == "" {
			return nil, errors.Errorf("%s:%d: empty label", file, line)
		}
		if _, ok := poses[label]; ok {
			return nil, errors.Errorf("%s:%d: duplicate label %q", file, line, label)
		}
		values, err := parseFloats(record[1:])
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", file, line)
		}
		t, err := se3.FromSlice(values)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", file, line)
		}
		poses[label] = t
	}
	if len(poses) == 0 {
		return nil, errors.Errorf("%s holds no poses", file)
	}
	return poses, nil
}
