package main

import (
	"time"

	"github.com/spf13/cobra"

	"lwaproc/internal/batch"
	"lwaproc/internal/pipeline"
)

var batchFlags struct {
	image     string
	casaImage string
	prefix    string
	logDir    string
	parallel  int
	timeout   time.Duration
	plot      bool
}

var batchCmd = &cobra.Command{
	Use:   "batch <source_dir> <caltable_dir>",
	Short: "Run the quick pipeline over every MS in a directory",
	Long: `Batch discovers every .ms under the source directory, pairs each
with the newest caltable for its band, and runs the quick pipeline per
artifact with a bounded number in flight. One artifact's failure never
stops the others; the summary covers every job.`,
	Args: cobra.ExactArgs(2),
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.StringVar(&batchFlags.image, "image", pipeline.DefaultLincImage, "LINC image (DP3, aoflagger, wsclean)")
	f.StringVar(&batchFlags.casaImage, "casa-image", pipeline.DefaultCasaImage, "CASA-capable image")
	f.StringVar(&batchFlags.prefix, "prefix", "proc", "Output name prefix")
	f.StringVar(&batchFlags.logDir, "log-dir", "logs", "Directory for per-artifact logs")
	f.IntVar(&batchFlags.parallel, "parallel", batch.DefaultParallel, "Max pipelines in flight")
	f.DurationVar(&batchFlags.timeout, "timeout", 0, "Per-stage timeout (0 = none)")
	f.BoolVar(&batchFlags.plot, "plot", false, "Render FITS plots after imaging")
}

func runBatch(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	o := batch.New(batch.Config{
		SourceDir:   args[0],
		CaltableDir: args[1],
		Prefix:      batchFlags.prefix,
		LincImage:   batchFlags.image,
		CasaImage:   batchFlags.casaImage,
		LogDir:      batchFlags.logDir,
		Parallel:    batchFlags.parallel,
		Timeout:     batchFlags.timeout,
		Plot:        batchFlags.plot,
	}, rt)

	ctx, cancel := signalContext()
	defer cancel()

	sum, err := o.Run(ctx)
	sum.Print(cmd.OutOrStdout())
	return err
}
