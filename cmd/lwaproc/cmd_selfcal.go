package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lwaproc/internal/selfcal"
	"lwaproc/internal/stage"
)

var selfcalFlags struct {
	config     string
	outputDir  string
	iterations int
	timeout    time.Duration
}

var selfcalCmd = &cobra.Command{
	Use:   "selfcal <ms>",
	Short: "Run the self-calibration loop over one measurement set",
	Long: `Selfcal images the MS, then alternates DP3 gaincal against the
model column with re-imaging for the configured number of iterations.
Products and the JSON report land in the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runSelfcal,
}

func init() {
	f := selfcalCmd.Flags()
	f.StringVar(&selfcalFlags.config, "config", "", "Selfcal YAML config (empty = built-in defaults)")
	f.StringVar(&selfcalFlags.outputDir, "output-dir", "selfcal", "Directory for products and the report")
	f.IntVar(&selfcalFlags.iterations, "iterations", 0, "Override the configured iteration count")
	f.DurationVar(&selfcalFlags.timeout, "timeout", 0, "Per-round timeout (0 = none)")
}

func runSelfcal(cmd *cobra.Command, args []string) error {
	cfg := selfcal.DefaultConfig()
	if selfcalFlags.config != "" {
		var err error
		if cfg, err = selfcal.LoadConfig(selfcalFlags.config); err != nil {
			return err
		}
	}
	if selfcalFlags.iterations > 0 {
		cfg.SelfCal.Iterations = selfcalFlags.iterations
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}

	runner := stage.NewRunner(selfcalFlags.outputDir, selfcalFlags.timeout)
	loop := selfcal.NewLoop(cfg, args[0], selfcalFlags.outputDir, runner, rt)

	ctx, cancel := signalContext()
	defer cancel()

	report, err := loop.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Self-calibration complete: %d rounds, report in %s\n",
		len(report.Iterations), selfcalFlags.outputDir)
	return nil
}
