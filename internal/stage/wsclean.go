package stage

import "strconv"

// WSCleanParams are the imaging knobs exposed on the CLI. Everything else
// is pinned by wscleanFixedArgs to the values tuned for LWA solar data.
type WSCleanParams struct {
	Size  int     // image is Size x Size pixels; 0 = 4096
	Scale string  // pixel scale; empty = 2arcmin
	Niter int     // CLEAN iterations; 0 = 1000
	MGain float64 // major-cycle gain; 0 = 0.9
}

// wscleanFixedArgs are passed on every imaging run, in stable order.
var wscleanFixedArgs = []string{
	"-j", "8",
	"-mem", "2",
	"-weight", "uniform",
	"-no-dirty",
	"-no-update-model-required",
	"-no-negative",
	"-auto-threshold", "3",
	"-auto-mask", "8",
	"-pol", "I",
	"-minuv-l", "10",
	"-intervals-out", "1",
	"-no-reorder",
	"-beam-fitting-size", "2",
	"-horizon-mask", "2deg",
	"-quiet",
}

// Args renders the wsclean argument list (without the leading "wsclean"
// and without the trailing MS path).
func (p WSCleanParams) Args(prefix string) []string {
	size := p.Size
	if size == 0 {
		size = 4096
	}
	scale := p.Scale
	if scale == "" {
		scale = "2arcmin"
	}
	niter := p.Niter
	if niter == 0 {
		niter = 1000
	}
	mgain := p.MGain
	if mgain == 0 {
		mgain = 0.9
	}

	args := []string{
		"-size", strconv.Itoa(size), strconv.Itoa(size),
		"-scale", scale,
		"-name", prefix,
		"-niter", strconv.Itoa(niter),
		"-mgain", strconv.FormatFloat(mgain, 'g', -1, 64),
	}
	return append(args, wscleanFixedArgs...)
}
