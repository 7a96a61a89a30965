// Package calibration runs a complete hand-eye calibration: it solves AX = XB
// from robot poses and camera extrinsics, recovers the frame that stays
// static during the capture and scores the result by reprojection.
package calibration

import (
	"github.com/golang/geo/r3"
	"go.uber.org/zap"

	"handeye/photogrammetry"
	"handeye/se3"
	"handeye/solver"
)

// Config describes the rig and how to solve it. Zero fields take defaults.
type Config struct {
	Variant solver.Variant
	Solver  solver.Options
	Average se3.AverageOptions

	// Camera and Fiducial are optional. Without them no reprojection or
	// triangulation diagnostics are computed.
	Camera   photogrammetry.IntrinsicsModel
	Fiducial []r3.Vector

	Logger *zap.SugaredLogger
}

// DefaultConfig returns a fixed camera configuration with a no-op logger.
func DefaultConfig() Config {
	return Config{
		Variant: solver.FixedCamera,
		Solver:  solver.DefaultOptions(),
		Average: se3.DefaultAverageOptions(),
		Logger:  zap.NewNop().Sugar(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Variant == "" {
		c.Variant = def.Variant
	}
	if c.Solver.InputTolerance <= 0 {
		c.Solver.InputTolerance = def.Solver.InputTolerance
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	return c
}
