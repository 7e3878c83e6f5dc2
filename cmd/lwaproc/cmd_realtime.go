package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lwaproc/internal/config"
	"lwaproc/internal/pipeline"
	"lwaproc/internal/realtime"
)

var realtimeFlags struct {
	config    string
	image     string
	casaImage string
	timeout   time.Duration
	plot      bool
}

var realtimeCmd = &cobra.Command{
	Use:   "realtime",
	Short: "Process the newest recorded observation",
	Long: `Realtime locates the most recent observation under the site's data
root, stages it with its band's caltable into a fresh proc directory,
and runs the quick pipeline there. Stage output goes to proc.log inside
that directory.`,
	Args: cobra.NoArgs,
	RunE: runRealtime,
}

func init() {
	f := realtimeCmd.Flags()
	f.StringVar(&realtimeFlags.config, "config", "site.yaml", "Site config (data/caltable/proc roots, band)")
	f.StringVar(&realtimeFlags.image, "image", pipeline.DefaultLincImage, "LINC image (DP3, aoflagger, wsclean)")
	f.StringVar(&realtimeFlags.casaImage, "casa-image", pipeline.DefaultCasaImage, "CASA-capable image")
	f.DurationVar(&realtimeFlags.timeout, "timeout", 0, "Per-stage timeout (0 = none)")
	f.BoolVar(&realtimeFlags.plot, "plot", false, "Render FITS plots after imaging")
}

func runRealtime(cmd *cobra.Command, _ []string) error {
	site, err := config.Load(realtimeFlags.config)
	if err != nil {
		return err
	}
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	p := realtime.New(site, rt)
	p.LincImage = realtimeFlags.image
	p.CasaImage = realtimeFlags.casaImage
	p.Timeout = realtimeFlags.timeout
	p.Plot = realtimeFlags.plot

	ctx, cancel := signalContext()
	defer cancel()

	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Processed %s\nProducts: %s\nLog:      %s\n",
		res.Observation, res.ProcDir, res.LogFile)
	return nil
}
