package pipeline

import (
	"path/filepath"
	"strings"

	"lwaproc/internal/container"
	"lwaproc/internal/stage"
)

// DefaultLincImage carries DP3, aoflagger, and wsclean.
const DefaultLincImage = "astronrd/linc:latest"

// DefaultCasaImage carries CASA plus the plotting helpers.
const DefaultCasaImage = "peijin/lwa-solar-pipehost:v202510"

// QuickProcConfig parameterizes the quick processing pipeline for one raw
// measurement set.
type QuickProcConfig struct {
	RawMS     string
	GainTable string
	Prefix    string // output prefix; empty = "proc"
	LincImage string
	CasaImage string
	Scratch   string
	Plot      bool
}

// Products names the host-side outputs of a quick-proc run.
type Products struct {
	FlaggedMS   string
	Solution    string
	FinalMS     string
	ImagePrefix string
}

// QuickProcProducts derives the intermediate and final artifact paths for
// a raw MS and prefix.
func QuickProcProducts(rawMS, prefix string) Products {
	if prefix == "" {
		prefix = "proc"
	}
	dir := filepath.Dir(rawMS)
	stem := strings.TrimSuffix(filepath.Base(rawMS), filepath.Ext(rawMS))
	return Products{
		FlaggedMS:   filepath.Join(dir, stem+"_flagged_avg.ms"),
		Solution:    filepath.Join(dir, "solution.h5"),
		FinalMS:     filepath.Join(dir, stem+"_"+prefix+"_final.ms"),
		ImagePrefix: prefix + "_image",
	}
}

// QuickProc composes the full quick processing sequence:
// CASA applycal → DP3 flag/avg → WSClean (fills MODEL_DATA) →
// DP3 gaincal → DP3 applycal, optionally followed by FITS plotting.
func QuickProc(cfg QuickProcConfig, runner *stage.Runner, rt container.Runtime) *Pipeline {
	lincImage := cfg.LincImage
	if lincImage == "" {
		lincImage = DefaultLincImage
	}
	casaImage := cfg.CasaImage
	if casaImage == "" {
		casaImage = DefaultCasaImage
	}

	linc := stage.Env{Runtime: rt, Image: lincImage, Scratch: cfg.Scratch}
	casa := stage.Env{Runtime: rt, Image: casaImage, Scratch: cfg.Scratch}

	prod := QuickProcProducts(cfg.RawMS, cfg.Prefix)
	base := strings.TrimSuffix(filepath.Base(cfg.RawMS), filepath.Ext(cfg.RawMS))

	stages := []stage.Stage{
		&stage.CASAApplyCal{Env: casa, MS: cfg.RawMS, GainTable: cfg.GainTable},
		&stage.FlagAvg{Env: linc, Input: cfg.RawMS, Output: prod.FlaggedMS},
		&stage.WSCleanImage{Env: linc, MS: prod.FlaggedMS, Prefix: prod.ImagePrefix},
		&stage.GainCal{Env: linc, MS: prod.FlaggedMS, Solution: prod.Solution,
			Params: stage.DefaultGainCalParams()},
		&stage.ApplyCal{Env: linc, Input: prod.FlaggedMS, Output: prod.FinalMS,
			Solution: prod.Solution},
	}
	if cfg.Plot {
		stages = append(stages, &stage.PlotFITS{Env: casa,
			Prefix: filepath.Join(filepath.Dir(cfg.RawMS), prod.ImagePrefix)})
	}

	return New(base, runner, rt, stages...)
}
