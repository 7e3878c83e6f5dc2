package selfcal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"lwaproc/internal/container"
	"lwaproc/internal/logging"
	"lwaproc/internal/ms"
	"lwaproc/internal/parset"
	"lwaproc/internal/stage"
)

// Loop drives the self-calibration iterations for one MS. OutputDir
// receives parsets, images, the calibrated copies, and the JSON report.
type Loop struct {
	Config    Config
	MS        string
	OutputDir string
	Runner    *stage.Runner
	Runtime   container.Runtime

	log *slog.Logger
}

// NewLoop creates a loop over the given runtime. Relative paths are
// resolved against the working directory here, so the mount root never
// mixes absolute and relative forms.
func NewLoop(cfg Config, msPath, outputDir string, runner *stage.Runner, rt container.Runtime) *Loop {
	if abs, err := filepath.Abs(msPath); err == nil {
		msPath = abs
	}
	if abs, err := filepath.Abs(outputDir); err == nil {
		outputDir = abs
	}
	return &Loop{
		Config:    cfg,
		MS:        msPath,
		OutputDir: outputDir,
		Runner:    runner,
		Runtime:   rt,
		log:       logging.New("selfcal"),
	}
}

// IterationReport records one loop round.
type IterationReport struct {
	Iteration int    `json:"iteration"`
	InputMS   string `json:"input_ms"`
	OutputMS  string `json:"output_ms,omitempty"`
	Image     string `json:"image_prefix"`
	Elapsed   int    `json:"elapsed_seconds"`
	Error     string `json:"error,omitempty"`
}

// Report is the JSON summary written next to the loop products.
type Report struct {
	MS         string            `json:"ms"`
	Image      string            `json:"container_image"`
	Started    time.Time         `json:"started"`
	Finished   time.Time         `json:"finished"`
	Iterations []IterationReport `json:"iterations"`
	Succeeded  bool              `json:"succeeded"`
}

// CheckPrerequisites verifies everything the loop will need before any
// data is touched: the runtime answers, the image is pullable, and both
// DP3 and wsclean respond inside it.
func (l *Loop) CheckPrerequisites(ctx context.Context) error {
	if err := l.Runtime.Available(ctx); err != nil {
		return fmt.Errorf("selfcal prerequisites: %w", err)
	}
	image := l.Config.ContainerImages.Linc
	if err := l.Runtime.Pull(ctx, image); err != nil {
		return fmt.Errorf("selfcal prerequisites: pull %s: %w", image, err)
	}
	for _, tool := range []string{"DP3", "wsclean"} {
		err := l.Runtime.Run(ctx, container.RunSpec{
			Image:   image,
			Command: []string{tool, "--version"},
		}, io.Discard)
		if err != nil {
			return fmt.Errorf("selfcal prerequisites: %s probe: %w", tool, err)
		}
	}
	return nil
}

// Run executes the loop: prerequisites, initial image, then the
// configured number of gaincal+image rounds. The report is written even
// when an iteration fails.
func (l *Loop) Run(ctx context.Context) (Report, error) {
	report := Report{
		MS:      l.MS,
		Image:   l.Config.ContainerImages.Linc,
		Started: time.Now().UTC(),
	}

	if err := l.CheckPrerequisites(ctx); err != nil {
		return report, err
	}
	if err := os.MkdirAll(l.OutputDir, 0o755); err != nil {
		return report, fmt.Errorf("selfcal: %w", err)
	}

	runErr := l.iterate(ctx, &report)

	report.Finished = time.Now().UTC()
	report.Succeeded = runErr == nil
	if err := l.writeReport(report); err != nil {
		l.log.Error("report not written", "err", err)
	}
	return report, runErr
}

func (l *Loop) iterate(ctx context.Context, report *Report) error {
	base := ms.New(l.MS).Base()

	// Iteration 0 is the initial image; it fills MODEL_DATA for the
	// first calibration round.
	current := l.MS
	if err := l.imageRound(ctx, base, current, 0, report); err != nil {
		return err
	}

	for i := 1; i <= l.Config.SelfCal.Iterations; i++ {
		next := filepath.Join(l.OutputDir, fmt.Sprintf("cal_iter_%d.ms", i))
		if err := l.calRound(ctx, base, current, next, i, report); err != nil {
			return err
		}
		current = next
		if err := l.imageRound(ctx, base, current, i, report); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) calRound(ctx context.Context, base, in, out string, iter int, report *Report) error {
	st := &calStage{loop: l, iter: iter, input: in, output: out}
	res := l.Runner.Run(ctx, st, base)

	rec := IterationReport{
		Iteration: iter,
		InputMS:   in,
		OutputMS:  out,
		Elapsed:   int(res.Duration.Seconds()),
	}
	if !res.OK() {
		rec.Error = res.Err.Error()
		report.Iterations = append(report.Iterations, rec)
		return fmt.Errorf("selfcal iteration %d: %w", iter, res.Err)
	}
	report.Iterations = append(report.Iterations, rec)
	return nil
}

func (l *Loop) imageRound(ctx context.Context, base, in string, iter int, report *Report) error {
	prefix := fmt.Sprintf("image_iter_%d", iter)
	st := &imageStage{loop: l, iter: iter, input: in, prefix: prefix}
	res := l.Runner.Run(ctx, st, base)

	rec := IterationReport{
		Iteration: iter,
		InputMS:   in,
		Image:     prefix,
		Elapsed:   int(res.Duration.Seconds()),
	}
	if !res.OK() {
		rec.Error = res.Err.Error()
		report.Iterations = append(report.Iterations, rec)
		return fmt.Errorf("selfcal imaging %d: %w", iter, res.Err)
	}
	report.Iterations = append(report.Iterations, rec)
	return nil
}

func (l *Loop) writeReport(report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(l.OutputDir, "selfcal_report.json")
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// dataRoot is the mount root covering both the MS and the output dir.
func (l *Loop) dataRoot() string {
	return ms.CommonParent(filepath.Dir(l.MS), l.OutputDir)
}

func (l *Loop) containerPath(host string) (string, error) {
	rel, err := filepath.Rel(l.dataRoot(), host)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", host, err)
	}
	return "/data/" + filepath.ToSlash(rel), nil
}

// calStage is one DP3 gaincal round of the loop.
type calStage struct {
	loop   *Loop
	iter   int
	input  string
	output string
}

func (s *calStage) Name() string                { return fmt.Sprintf("selfcal gaincal %d", s.iter) }
func (s *calStage) Check(context.Context) error { return nil }

func (s *calStage) Run(ctx context.Context, log io.Writer) error {
	l := s.loop
	in, err := l.containerPath(s.input)
	if err != nil {
		return err
	}
	out, err := l.containerPath(s.output)
	if err != nil {
		return err
	}

	p := parset.SelfCalParams{
		NTime:                l.Config.DP3.NTime,
		WriteFullResFlag:     l.Config.DP3.WriteFullResFlag,
		SolInt:               l.Config.DP3.SolutionInterval,
		CalType:              l.Config.DP3.CalibrationType,
		ApplySmooth:          l.Config.DP3.ApplySmooth,
		SmoothnessConstraint: l.Config.SelfCal.SmoothnessConstraint,
		SolverType:           l.Config.SelfCal.SolverType,
		MaxIter:              l.Config.SelfCal.MaxIterations,
		Tolerance:            l.Config.SelfCal.Tolerance,
		ModelColumn:          l.Config.DP3.ModelColumn,
	}

	name := fmt.Sprintf("cal_iter_%d.parset", s.iter)
	path, cleanup, err := parset.WriteTemp(l.OutputDir, name, parset.SelfCalIteration(in, out, p))
	if err != nil {
		return err
	}
	defer cleanup()

	return l.Runtime.Run(ctx, container.RunSpec{
		Image:   l.Config.ContainerImages.Linc,
		Command: []string{"DP3", "/config/" + filepath.Base(path)},
		Mounts: []container.Mount{
			{Host: l.dataRoot(), Container: "/data"},
			{Host: l.OutputDir, Container: "/config", ReadOnly: true},
		},
		WorkDir: "/config",
	}, log)
}

// imageStage is one wsclean round of the loop.
type imageStage struct {
	loop   *Loop
	iter   int
	input  string
	prefix string
}

func (s *imageStage) Name() string                { return fmt.Sprintf("selfcal imaging %d", s.iter) }
func (s *imageStage) Check(context.Context) error { return nil }

func (s *imageStage) Run(ctx context.Context, log io.Writer) error {
	l := s.loop
	in, err := l.containerPath(s.input)
	if err != nil {
		return err
	}
	outPrefix, err := l.containerPath(filepath.Join(l.OutputDir, s.prefix))
	if err != nil {
		return err
	}

	cmd := append([]string{"wsclean"}, l.imagingArgs(outPrefix)...)
	cmd = append(cmd, in)

	return l.Runtime.Run(ctx, container.RunSpec{
		Image:   l.Config.ContainerImages.Linc,
		Command: cmd,
		Mounts:  []container.Mount{{Host: l.dataRoot(), Container: "/data"}},
		WorkDir: "/data",
	}, log)
}

// imagingArgs renders the wsclean arguments from the imaging config. A
// briggs weighting carries its robust parameter.
func (l *Loop) imagingArgs(prefix string) []string {
	img := l.Config.Imaging
	args := []string{
		"-size", strconv.Itoa(img.ImageSize), strconv.Itoa(img.ImageSize),
		"-scale", img.PixelScale,
		"-name", prefix,
		"-niter", strconv.Itoa(img.CleanIterations),
		"-mgain", strconv.FormatFloat(img.MGain, 'g', -1, 64),
	}
	if img.Weighting == "briggs" {
		args = append(args, "-weight", "briggs",
			strconv.FormatFloat(img.BriggsRobust, 'g', -1, 64))
	} else {
		args = append(args, "-weight", img.Weighting)
	}
	args = append(args,
		"-auto-threshold", strconv.FormatFloat(img.AutoThreshold, 'g', -1, 64),
		"-auto-mask", strconv.FormatFloat(img.AutoMask, 'g', -1, 64),
		"-mem", strconv.Itoa(img.MemPercentage),
		"-pol", "I",
		"-quiet",
	)
	return args
}
