package stage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"lwaproc/internal/container"
	"lwaproc/internal/logging"
	"lwaproc/internal/ms"
	"lwaproc/internal/parset"
)

// DefaultStrategy is the aoflagger strategy shipped in the LINC image.
const DefaultStrategy = "/usr/local/share/linc/rfistrategies/lofar-default.lua"

// DefaultFreqStep averages every 3 channels.
const DefaultFreqStep = 3

// containerPath maps a host path under root to its /data-relative
// container path.
func containerPath(root, host string) (string, error) {
	rel, err := filepath.Rel(root, host)
	if err != nil {
		return "", fmt.Errorf("relativize %s against %s: %w", host, root, err)
	}
	return dataMount + "/" + filepath.ToSlash(rel), nil
}

// --- CASA applycal -------------------------------------------------------

// CASAApplyCal applies a bandpass calibration table with CASA's applycal
// task. The task runs as a generated python script inside the CASA-capable
// image; the script is transient like a parset.
type CASAApplyCal struct {
	Env       Env
	MS        string
	GainTable string
}

func (s *CASAApplyCal) Name() string { return "CASA applycal" }

func (s *CASAApplyCal) Check(ctx context.Context) error {
	if err := requireExists(s.MS, "input MS"); err != nil {
		return err
	}
	return requireExists(s.GainTable, "gaintable")
}

func (s *CASAApplyCal) Run(ctx context.Context, log io.Writer) error {
	root := ms.CommonParent(filepath.Dir(s.MS), filepath.Dir(s.GainTable))
	vis, err := containerPath(root, s.MS)
	if err != nil {
		return err
	}
	table, err := containerPath(root, s.GainTable)
	if err != nil {
		return err
	}

	script := fmt.Sprintf(`import casatools, casatasks

casatasks.applycal(
    vis='%s',
    gaintable='%s',
    applymode='calflag'
)
`, vis, table)

	path, cleanup, err := parset.WriteTemp(s.Env.Scratch, "casa_applycal.py", script)
	if err != nil {
		return err
	}
	defer cleanup()

	return s.Env.Runtime.Run(ctx, container.RunSpec{
		Image:   s.Env.Image,
		Command: []string{"python3", configMount + "/" + filepath.Base(path)},
		Mounts: []container.Mount{
			{Host: root, Container: dataMount},
			{Host: s.Env.Scratch, Container: configMount, ReadOnly: true},
		},
		WorkDir: configMount,
	}, log)
}

// --- DP3 flag + average --------------------------------------------------

// FlagAvg runs DP3 with aoflagger RFI flagging followed by frequency
// averaging.
type FlagAvg struct {
	Env      Env
	Input    string
	Output   string
	Strategy string // empty = DefaultStrategy
	FreqStep int    // 0 = DefaultFreqStep
}

func (s *FlagAvg) Name() string { return "DP3 flag/avg" }

func (s *FlagAvg) Check(ctx context.Context) error {
	return requireExists(s.Input, "input MS")
}

func (s *FlagAvg) Run(ctx context.Context, log io.Writer) error {
	strategy := s.Strategy
	if strategy == "" {
		strategy = DefaultStrategy
	}
	freqStep := s.FreqStep
	if freqStep == 0 {
		freqStep = DefaultFreqStep
	}

	root := ms.CommonParent(filepath.Dir(s.Input), filepath.Dir(s.Output))
	in, err := containerPath(root, s.Input)
	if err != nil {
		return err
	}
	out, err := containerPath(root, s.Output)
	if err != nil {
		return err
	}

	return runDP3(ctx, s.Env, "dp3_flag_avg.parset",
		parset.FlagAvg(in, out, strategy, freqStep), root, log)
}

// --- DP3 gaincal ---------------------------------------------------------

// GainCal solves per-antenna gains against the MODEL_DATA column that a
// preceding imaging stage filled.
type GainCal struct {
	Env      Env
	MS       string
	OutputMS string // empty = <ms>_cal.ms next to the input
	Solution string // empty = solution.h5 next to the input
	Params   parset.GainCalParams
}

// DefaultGainCalParams are the solver settings of the quick-proc pipeline.
func DefaultGainCalParams() parset.GainCalParams {
	return parset.GainCalParams{
		SolInt:    0,
		CalType:   "diagonal",
		UVLambda:  10,
		MaxIter:   100,
		Tolerance: 1e-4,
	}
}

func (s *GainCal) Name() string { return "DP3 gaincal" }

// SolutionPath returns the host path of the solved gain table.
func (s *GainCal) SolutionPath() string {
	if s.Solution != "" {
		return s.Solution
	}
	return filepath.Join(filepath.Dir(s.MS), "solution.h5")
}

func (s *GainCal) outputMS() string {
	if s.OutputMS != "" {
		return s.OutputMS
	}
	return s.MS + "_cal.ms"
}

// Check passes: the input MS is produced by an upstream stage, so it
// cannot be demanded at pre-flight time.
func (s *GainCal) Check(ctx context.Context) error { return nil }

func (s *GainCal) Run(ctx context.Context, log io.Writer) error {
	root := ms.CommonParent(filepath.Dir(s.MS), filepath.Dir(s.outputMS()))
	root = ms.CommonParent(root, filepath.Dir(s.SolutionPath()))
	in, err := containerPath(root, s.MS)
	if err != nil {
		return err
	}
	out, err := containerPath(root, s.outputMS())
	if err != nil {
		return err
	}
	parmdb, err := containerPath(root, s.SolutionPath())
	if err != nil {
		return err
	}

	if err := runDP3(ctx, s.Env, "gaincal.parset",
		parset.GainCal(in, out, parmdb, s.Params), root, log); err != nil {
		return err
	}

	// DP3 can exit zero without producing the parmdb when no solutions
	// converge. Surface it as a warning and keep going.
	if _, err := os.Stat(s.SolutionPath()); err != nil {
		fmt.Fprintf(log, "WARNING: solution table missing after gaincal: %s\n", s.SolutionPath())
		logging.New("stage").Warn("solution table missing after gaincal",
			"path", s.SolutionPath())
	}
	return nil
}

// --- DP3 applycal --------------------------------------------------------

// ApplyCal applies a DP3 solution table to an MS, writing the calibrated
// copy.
type ApplyCal struct {
	Env        Env
	Input      string
	Output     string
	Solution   string
	Correction string // empty = phase000
}

func (s *ApplyCal) Name() string { return "DP3 applycal" }

func (s *ApplyCal) Check(ctx context.Context) error { return nil }

func (s *ApplyCal) Run(ctx context.Context, log io.Writer) error {
	correction := s.Correction
	if correction == "" {
		correction = "phase000"
	}

	root := ms.CommonParent(filepath.Dir(s.Input), filepath.Dir(s.Output))
	in, err := containerPath(root, s.Input)
	if err != nil {
		return err
	}
	out, err := containerPath(root, s.Output)
	if err != nil {
		return err
	}
	parmdb, err := containerPath(root, s.Solution)
	if err != nil {
		return err
	}

	return runDP3(ctx, s.Env, "applycal.parset",
		parset.ApplyCal(in, out, parmdb, correction), root, log)
}

// --- WSClean imaging -----------------------------------------------------

// WSCleanImage deconvolves the MS into FITS images. With mgain < 1 the
// major cycles fill MODEL_DATA, which the gaincal stage depends on.
type WSCleanImage struct {
	Env    Env
	MS     string
	Prefix string // image name prefix, outputs land next to the MS
	Params WSCleanParams
}

func (s *WSCleanImage) Name() string { return "WSClean imaging" }

func (s *WSCleanImage) Check(ctx context.Context) error { return nil }

func (s *WSCleanImage) Run(ctx context.Context, log io.Writer) error {
	root := filepath.Dir(s.MS)
	in, err := containerPath(root, s.MS)
	if err != nil {
		return err
	}

	cmd := append([]string{"wsclean"}, s.Params.Args(s.Prefix)...)
	cmd = append(cmd, in)

	return s.Env.Runtime.Run(ctx, container.RunSpec{
		Image:   s.Env.Image,
		Command: cmd,
		Mounts:  []container.Mount{{Host: root, Container: dataMount}},
		WorkDir: dataMount,
	}, log)
}

// --- FITS plotting -------------------------------------------------------

// PlotFITS delegates image rendering to the plotting helper shipped in
// the pipehost image.
type PlotFITS struct {
	Env    Env
	Prefix string // host path prefix of the FITS products
}

func (s *PlotFITS) Name() string { return "FITS plot" }

func (s *PlotFITS) Check(ctx context.Context) error { return nil }

func (s *PlotFITS) Run(ctx context.Context, log io.Writer) error {
	root := filepath.Dir(s.Prefix)
	prefix, err := containerPath(root, s.Prefix)
	if err != nil {
		return err
	}
	return s.Env.Runtime.Run(ctx, container.RunSpec{
		Image:   s.Env.Image,
		Command: []string{"python3", "/lwasoft/plot_fits.py", prefix},
		Mounts:  []container.Mount{{Host: root, Container: dataMount}},
		WorkDir: dataMount,
	}, log)
}

// runDP3 writes a transient parset into scratch and invokes DP3 on it
// with the data root mounted. The parset is removed on every exit path.
func runDP3(ctx context.Context, env Env, name, content, dataRoot string, log io.Writer) error {
	path, cleanup, err := parset.WriteTemp(env.Scratch, name, content)
	if err != nil {
		return err
	}
	defer cleanup()

	return env.Runtime.Run(ctx, container.RunSpec{
		Image:   env.Image,
		Command: []string{"DP3", configMount + "/" + filepath.Base(path)},
		Mounts: []container.Mount{
			{Host: dataRoot, Container: dataMount},
			{Host: env.Scratch, Container: configMount, ReadOnly: true},
		},
		WorkDir: configMount,
	}, log)
}
