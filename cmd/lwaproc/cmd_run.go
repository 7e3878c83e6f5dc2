package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lwaproc/internal/pipeline"
	"lwaproc/internal/stage"
)

var runFlags struct {
	image     string
	casaImage string
	prefix    string
	logDir    string
	timeout   time.Duration
	plot      bool
}

var runCmd = &cobra.Command{
	Use:   "run <raw_ms> <gaintable>",
	Short: "Run the quick processing pipeline over one measurement set",
	Long: `Run executes the full quick-proc sequence for a single raw MS:
CASA applycal, DP3 flag/average, WSClean imaging, DP3 gaincal against
the model column, and DP3 applycal. Stage output is appended to
<log-dir>/<base>.log.`,
	Args: cobra.ExactArgs(2),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.image, "image", pipeline.DefaultLincImage, "LINC image (DP3, aoflagger, wsclean)")
	f.StringVar(&runFlags.casaImage, "casa-image", pipeline.DefaultCasaImage, "CASA-capable image")
	f.StringVar(&runFlags.prefix, "prefix", "proc", "Output name prefix")
	f.StringVar(&runFlags.logDir, "log-dir", "logs", "Directory for per-artifact logs")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "Per-stage timeout (0 = none)")
	f.BoolVar(&runFlags.plot, "plot", false, "Render FITS plots after imaging")
}

func runRun(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	scratch, err := os.MkdirTemp("", "lwaproc-run-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	runner := stage.NewRunner(runFlags.logDir, runFlags.timeout)
	pl := pipeline.QuickProc(pipeline.QuickProcConfig{
		RawMS:     args[0],
		GainTable: args[1],
		Prefix:    runFlags.prefix,
		LincImage: runFlags.image,
		CasaImage: runFlags.casaImage,
		Scratch:   scratch,
		Plot:      runFlags.plot,
	}, runner, rt)
	pl.Banner = cmd.OutOrStdout()

	ctx, cancel := signalContext()
	defer cancel()

	if _, err := pl.Execute(ctx); err != nil {
		return err
	}

	prod := pipeline.QuickProcProducts(args[0], runFlags.prefix)
	fmt.Fprintf(cmd.OutOrStdout(), "\nFinal MS: %s\nImages:   %s-*.fits\nLog:      %s\n",
		prod.FinalMS, prod.ImagePrefix, runner.LogPath(pl.Base))
	return nil
}
