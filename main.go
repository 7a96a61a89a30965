// Package main is the handeye command: it solves hand-eye calibrations and
// scores them by reprojection.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"handeye/solver"
)

const (
	// Flags.
	flagProject       = "project"
	flagIntrinsicsXML = "intrinsics-xml"
	flagExtrinsics    = "extrinsics"
	flagMetashape     = "metashape"
	flagPoses         = "poses"
	flagVariant       = "variant"
	flagMaxError      = "max-error"
	flagVerbose       = "verbose"
	flagTransforms    = "transforms"
	flagX             = "x"
)

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.DisableStacktrace = true
		logger, err = cfg.Build()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func printJSON(c *cli.Context, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

func variantFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  flagVariant,
		Usage: fmt.Sprintf("calibration variant, %q or %q (overrides the project)", solver.FixedCamera, solver.EyeInHand),
	}
}

func maxErrorFlag() cli.Flag {
	return &cli.Float64Flag{
		Name:  flagMaxError,
		Usage: "accept the calibration when the mean reprojection error is at most `PX` pixels",
	}
}

// checkAccepted fails when a --max-error was given and the mean error exceeds it.
func checkAccepted(r *ReprojectionJSON) error {
	if r.Accepted == nil || *r.Accepted {
		return nil
	}
	if r.Mean == nil {
		return errors.New("fiducial is behind the camera in some observations")
	}
	return errors.Errorf("mean reprojection error %.3g px is above the accepted %g px", *r.Mean, r.MaxError)
}

func newCLI() *cli.App {
	var app *App

	return &cli.App{
		Name:  "handeye",
		Usage: "solve and validate hand-eye calibrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagVerbose,
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			logger, err := newLogger(c.Bool(flagVerbose))
			if err != nil {
				return err
			}
			app = NewApp(logger)
			return nil
		},
		After: func(c *cli.Context) error {
			if app == nil {
				return nil
			}
			return app.Close()
		},
		Commands: []*cli.Command{
			{
				Name:  "solve",
				Usage: "solve AX = XB from a project, or from separate extrinsics and poses files",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagProject,
						Aliases: []string{"p"},
						Usage:   "load the JSON project from `FILE`",
					},
					&cli.StringFlag{
						Name:  flagIntrinsicsXML,
						Usage: "read the camera intrinsics from an OpenCV XML `FILE` (overrides the project)",
					},
					&cli.StringFlag{
						Name:  flagExtrinsics,
						Usage: "read the camera extrinsics from a tab separated `FILE`",
					},
					&cli.BoolFlag{
						Name:  flagMetashape,
						Usage: "the extrinsics file is a Metashape camera export",
					},
					&cli.StringFlag{
						Name:  flagPoses,
						Usage: "read the robot poses from a tab separated `FILE`",
					},
					variantFlag(),
					maxErrorFlag(),
				},
				Action: func(c *cli.Context) error {
					report, err := app.Calibrate(SolveOptions{
						Project:       c.String(flagProject),
						IntrinsicsXML: c.String(flagIntrinsicsXML),
						Extrinsics:    c.String(flagExtrinsics),
						Metashape:     c.Bool(flagMetashape),
						Poses:         c.String(flagPoses),
						Variant:       c.String(flagVariant),
						MaxError:      c.Float64(flagMaxError),
					})
					if err != nil {
						if errors.Is(err, solver.ErrInsufficientData) {
							return errors.Wrap(err, "collect more observations with rotations about different axes")
						}
						return err
					}
					if err := printJSON(c, report); err != nil {
						return err
					}
					if report.Reprojection != nil {
						return checkAccepted(report.Reprojection)
					}
					return nil
				},
			},
			{
				Name:  "average",
				Usage: "print the geodesic mean of a JSON list of matrices",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagTransforms,
						Usage:    "read the matrices from `FILE`",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					avg, err := app.Average(c.String(flagTransforms))
					if err != nil {
						return err
					}
					return printJSON(c, avg)
				},
			},
			{
				Name:  "reproject",
				Usage: "score an existing X against a project",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagProject,
						Aliases:  []string{"p"},
						Usage:    "load the JSON project from `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:     flagX,
						Usage:    "read X as a JSON matrix from `FILE`",
						Required: true,
					},
					variantFlag(),
					maxErrorFlag(),
				},
				Action: func(c *cli.Context) error {
					res, err := app.Reproject(c.String(flagProject), c.String(flagX), c.String(flagVariant), c.Float64(flagMaxError))
					if err != nil {
						return err
					}
					if err := printJSON(c, res); err != nil {
						return err
					}
					return checkAccepted(res)
				},
			},
		},
	}
}

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
