package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lwaproc/internal/ms"
	"lwaproc/internal/pipeline"
	"lwaproc/internal/stage"
)

var flagavgFlags struct {
	image    string
	output   string
	strategy string
	freqStep int
	logDir   string
	timeout  time.Duration
}

var flagavgCmd = &cobra.Command{
	Use:   "flagavg <ms>",
	Short: "Flag RFI with aoflagger and average in frequency",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlagavg,
}

func init() {
	f := flagavgCmd.Flags()
	f.StringVar(&flagavgFlags.image, "image", pipeline.DefaultLincImage, "LINC image")
	f.StringVar(&flagavgFlags.output, "output", "", "Output MS (empty = <base>_flagged_avg.ms)")
	f.StringVar(&flagavgFlags.strategy, "strategy", stage.DefaultStrategy, "aoflagger strategy inside the image")
	f.IntVar(&flagavgFlags.freqStep, "freqstep", stage.DefaultFreqStep, "Channels averaged per output channel")
	f.StringVar(&flagavgFlags.logDir, "log-dir", "logs", "Directory for per-artifact logs")
	f.DurationVar(&flagavgFlags.timeout, "timeout", 0, "Timeout (0 = none)")
}

func runFlagavg(cmd *cobra.Command, args []string) error {
	input := args[0]
	output := flagavgFlags.output
	if output == "" {
		output = strings.TrimSuffix(input, ".ms") + "_flagged_avg.ms"
	}

	return runSingleStage(cmd, flagavgFlags.logDir, flagavgFlags.timeout, input,
		func(env stage.Env) stage.Stage {
			return &stage.FlagAvg{
				Env:      env,
				Input:    input,
				Output:   output,
				Strategy: flagavgFlags.strategy,
				FreqStep: flagavgFlags.freqStep,
			}
		}, flagavgFlags.image)
}

// runSingleStage wires one stage into a pipeline of its own so the
// preflight, banner, and log footer behave exactly as in a full run.
func runSingleStage(cmd *cobra.Command, logDir string, timeout time.Duration, msPath string, build func(stage.Env) stage.Stage, image string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	scratch, err := os.MkdirTemp("", "lwaproc-stage-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	env := stage.Env{Runtime: rt, Image: image, Scratch: scratch}
	runner := stage.NewRunner(logDir, timeout)
	pl := pipeline.New(ms.New(msPath).Base(), runner, rt, build(env))
	pl.Banner = cmd.OutOrStdout()

	ctx, cancel := signalContext()
	defer cancel()
	_, err = pl.Execute(ctx)
	return err
}
