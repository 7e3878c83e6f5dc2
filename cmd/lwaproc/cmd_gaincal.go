package main

import (
	"time"

	"github.com/spf13/cobra"

	"lwaproc/internal/parset"
	"lwaproc/internal/pipeline"
	"lwaproc/internal/stage"
)

var gaincalFlags struct {
	image     string
	output    string
	solution  string
	solint    int
	caltype   string
	uvlambda  float64
	maxiter   int
	tolerance float64
	logDir    string
	timeout   time.Duration
}

var gaincalCmd = &cobra.Command{
	Use:   "gaincal <ms>",
	Short: "Solve per-antenna gains against the MODEL_DATA column",
	Long: `Gaincal runs DP3 gain calibration on an MS whose MODEL_DATA column
has been filled, typically by a preceding imaging run. The solved table
lands next to the MS as solution.h5 unless overridden.`,
	Args: cobra.ExactArgs(1),
	RunE: runGaincal,
}

func init() {
	f := gaincalCmd.Flags()
	f.StringVar(&gaincalFlags.image, "image", pipeline.DefaultLincImage, "LINC image")
	f.StringVar(&gaincalFlags.output, "output", "", "Calibrated MS (empty = <ms>_cal.ms)")
	f.StringVar(&gaincalFlags.solution, "solution", "", "Solution table path (empty = solution.h5 next to the MS)")
	f.IntVar(&gaincalFlags.solint, "solint", 0, "Solution interval in timesteps (0 = per scan)")
	f.StringVar(&gaincalFlags.caltype, "caltype", "gain", "Calibration type (gain, diagonal, phase, bandpass)")
	f.Float64Var(&gaincalFlags.uvlambda, "uvlambdamin", 10, "Minimum uv distance in lambda")
	f.IntVar(&gaincalFlags.maxiter, "maxiter", 100, "Solver iteration cap")
	f.Float64Var(&gaincalFlags.tolerance, "tolerance", 1e-4, "Solver convergence tolerance")
	f.StringVar(&gaincalFlags.logDir, "log-dir", "logs", "Directory for per-artifact logs")
	f.DurationVar(&gaincalFlags.timeout, "timeout", 0, "Timeout (0 = none)")
}

func runGaincal(cmd *cobra.Command, args []string) error {
	return runSingleStage(cmd, gaincalFlags.logDir, gaincalFlags.timeout, args[0],
		func(env stage.Env) stage.Stage {
			return &stage.GainCal{
				Env:      env,
				MS:       args[0],
				OutputMS: gaincalFlags.output,
				Solution: gaincalFlags.solution,
				Params: parset.GainCalParams{
					SolInt:    gaincalFlags.solint,
					CalType:   gaincalFlags.caltype,
					UVLambda:  gaincalFlags.uvlambda,
					MaxIter:   gaincalFlags.maxiter,
					Tolerance: gaincalFlags.tolerance,
				},
			}
		}, gaincalFlags.image)
}
