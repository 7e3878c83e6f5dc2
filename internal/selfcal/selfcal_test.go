package selfcal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lwaproc/internal/container"
	"lwaproc/internal/stage"
)

type fakeRuntime struct {
	specs   []container.RunSpec
	pullErr error
	runErr  func(spec container.RunSpec) error
}

func (f *fakeRuntime) Name() string                    { return "fake" }
func (f *fakeRuntime) Available(context.Context) error { return nil }
func (f *fakeRuntime) Pull(_ context.Context, image string) error {
	return f.pullErr
}
func (f *fakeRuntime) Run(_ context.Context, spec container.RunSpec, _ io.Writer) error {
	f.specs = append(f.specs, spec)
	if f.runErr != nil {
		return f.runErr(spec)
	}
	return nil
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selfcal.yaml")
	content := `
container_images:
  linc: astronrd/linc:v4.0
selfcal_params:
  iterations: 2
  smoothness_constraint: 1.5e6
  solver_type: scalarphase
dp3_params:
  ntime: 4
  calibration_type: phase
imaging_params:
  image_size: 2048
  weighting: uniform
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ContainerImages.Linc != "astronrd/linc:v4.0" {
		t.Errorf("image = %s", cfg.ContainerImages.Linc)
	}
	if cfg.SelfCal.Iterations != 2 || cfg.SelfCal.SolverType != "scalarphase" {
		t.Errorf("selfcal params = %+v", cfg.SelfCal)
	}
	if cfg.DP3.NTime != 4 || cfg.DP3.CalibrationType != "phase" {
		t.Errorf("dp3 params = %+v", cfg.DP3)
	}
	// Unset keys keep their defaults.
	if cfg.Imaging.PixelScale != "2arcmin" || cfg.Imaging.MGain != 0.9 {
		t.Errorf("imaging defaults lost: %+v", cfg.Imaging)
	}
	if cfg.DP3.ModelColumn != "MODEL_DATA" {
		t.Errorf("model column default lost: %s", cfg.DP3.ModelColumn)
	}
}

func TestLoadConfig_RejectsZeroIterations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selfcal.yaml")
	if err := os.WriteFile(path, []byte("selfcal_params:\n  iterations: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for iterations: 0")
	}
}

func newTestLoop(t *testing.T, rt container.Runtime, iterations int) *Loop {
	t.Helper()
	root := t.TempDir()
	msPath := filepath.Join(root, "obs_55MHz.ms")
	if err := os.MkdirAll(msPath, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.SelfCal.Iterations = iterations
	runner := stage.NewRunner(t.TempDir(), 0)
	return NewLoop(cfg, msPath, filepath.Join(root, "selfcal"), runner, rt)
}

func TestRun_InvocationSequence(t *testing.T) {
	rt := &fakeRuntime{}
	l := newTestLoop(t, rt, 2)

	report, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 2 probes, then image 0, cal 1, image 1, cal 2, image 2.
	var tools []string
	for _, spec := range rt.specs {
		tools = append(tools, spec.Command[0])
	}
	want := "DP3,wsclean,wsclean,DP3,wsclean,DP3,wsclean"
	if got := strings.Join(tools, ","); got != want {
		t.Errorf("invocations = %s, want %s", got, want)
	}

	if !report.Succeeded {
		t.Error("report should mark success")
	}
	// image 0 + 2 x (cal + image).
	if len(report.Iterations) != 5 {
		t.Errorf("report has %d rounds, want 5", len(report.Iterations))
	}
}

func TestRun_ImagingArgsCarryBriggsRobust(t *testing.T) {
	rt := &fakeRuntime{}
	l := newTestLoop(t, rt, 1)

	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var imaging []string
	for _, spec := range rt.specs {
		if spec.Command[0] == "wsclean" && len(spec.Command) > 2 {
			imaging = spec.Command
			break
		}
	}
	joined := strings.Join(imaging, " ")
	for _, want := range []string{"-weight briggs -0.5", "-size 4096 4096", "-name /data/selfcal/image_iter_0"} {
		if !strings.Contains(joined, want) {
			t.Errorf("imaging command missing %q: %s", want, joined)
		}
	}
}

func TestRun_FailedIterationStillWritesReport(t *testing.T) {
	rt := &fakeRuntime{}
	rt.runErr = func(spec container.RunSpec) error {
		// Fail the first gaincal round; probes and imaging succeed.
		if spec.Command[0] == "DP3" && len(spec.Command) > 1 && spec.Command[1] != "--version" {
			return &container.ExitError{Code: 1}
		}
		return nil
	}
	l := newTestLoop(t, rt, 2)

	report, err := l.Run(context.Background())
	if err == nil {
		t.Fatal("expected failure")
	}
	var exitErr *container.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if report.Succeeded {
		t.Error("report must not mark success")
	}

	data, readErr := os.ReadFile(filepath.Join(l.OutputDir, "selfcal_report.json"))
	if readErr != nil {
		t.Fatalf("report missing: %v", readErr)
	}
	var onDisk Report
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("report not valid JSON: %v", err)
	}
	last := onDisk.Iterations[len(onDisk.Iterations)-1]
	if last.Error == "" {
		t.Errorf("failed round should record its error: %+v", last)
	}
}

func TestNewLoop_RelativeOutputDir(t *testing.T) {
	root := t.TempDir()
	msPath := filepath.Join(root, "obs_55MHz.ms")
	if err := os.MkdirAll(msPath, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(root)

	rt := &fakeRuntime{}
	cfg := DefaultConfig()
	cfg.SelfCal.Iterations = 1
	l := NewLoop(cfg, msPath, "selfcal", stage.NewRunner(t.TempDir(), 0), rt)

	if !filepath.IsAbs(l.OutputDir) {
		t.Fatalf("output dir not absolutized: %s", l.OutputDir)
	}
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run with relative output dir: %v", err)
	}

	for _, spec := range rt.specs {
		for _, arg := range spec.Command {
			if strings.Contains(arg, "..") {
				t.Errorf("container path escapes the mount: %v", spec.Command)
			}
		}
	}
	var name string
	for _, spec := range rt.specs {
		for i, arg := range spec.Command {
			if arg == "-name" {
				name = spec.Command[i+1]
			}
		}
	}
	if !strings.HasPrefix(name, "/data/") {
		t.Errorf("image prefix not under the data mount: %s", name)
	}
}

func TestCheckPrerequisites_PullFailure(t *testing.T) {
	rt := &fakeRuntime{pullErr: errors.New("manifest unknown")}
	l := newTestLoop(t, rt, 1)

	err := l.CheckPrerequisites(context.Background())
	if err == nil || !strings.Contains(err.Error(), "pull") {
		t.Fatalf("expected pull failure, got %v", err)
	}
}
