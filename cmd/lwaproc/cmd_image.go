package main

import (
	"time"

	"github.com/spf13/cobra"

	"lwaproc/internal/pipeline"
	"lwaproc/internal/stage"
)

var imageFlags struct {
	image   string
	prefix  string
	size    int
	scale   string
	niter   int
	mgain   float64
	logDir  string
	timeout time.Duration
}

var imageCmd = &cobra.Command{
	Use:   "image <ms>",
	Short: "Deconvolve an MS into FITS images with WSClean",
	Args:  cobra.ExactArgs(1),
	RunE:  runImage,
}

func init() {
	f := imageCmd.Flags()
	f.StringVar(&imageFlags.image, "image", pipeline.DefaultLincImage, "LINC image")
	f.StringVar(&imageFlags.prefix, "prefix", "image", "Output image name prefix")
	f.IntVar(&imageFlags.size, "size", 4096, "Image width and height in pixels")
	f.StringVar(&imageFlags.scale, "scale", "2arcmin", "Pixel scale")
	f.IntVar(&imageFlags.niter, "niter", 1000, "CLEAN iterations")
	f.Float64Var(&imageFlags.mgain, "mgain", 0.9, "Major-cycle gain")
	f.StringVar(&imageFlags.logDir, "log-dir", "logs", "Directory for per-artifact logs")
	f.DurationVar(&imageFlags.timeout, "timeout", 0, "Timeout (0 = none)")
}

func runImage(cmd *cobra.Command, args []string) error {
	return runSingleStage(cmd, imageFlags.logDir, imageFlags.timeout, args[0],
		func(env stage.Env) stage.Stage {
			return &stage.WSCleanImage{
				Env:    env,
				MS:     args[0],
				Prefix: imageFlags.prefix,
				Params: stage.WSCleanParams{
					Size:  imageFlags.size,
					Scale: imageFlags.scale,
					Niter: imageFlags.niter,
					MGain: imageFlags.mgain,
				},
			}
		}, imageFlags.image)
}
