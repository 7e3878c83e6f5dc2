package batch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lwaproc/internal/container"
	"lwaproc/internal/ms"
	"lwaproc/internal/pipeline"
	"lwaproc/internal/stage"
)

type fakeRuntime struct {
	err   error
	onRun func(spec container.RunSpec)
}

func (f *fakeRuntime) Name() string                       { return "fake" }
func (f *fakeRuntime) Available(context.Context) error    { return nil }
func (f *fakeRuntime) Pull(context.Context, string) error { return nil }
func (f *fakeRuntime) Run(_ context.Context, spec container.RunSpec, _ io.Writer) error {
	if f.onRun != nil {
		f.onRun(spec)
	}
	return f.err
}

func mkDir(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// fixture builds a source dir of raw MSes and a caltable dir with one
// table per band.
func fixture(t *testing.T, names []string, bands []string) (srcDir, calDir string) {
	t.Helper()
	srcDir = t.TempDir()
	calDir = t.TempDir()
	for _, name := range names {
		mkDir(t, filepath.Join(srcDir, name))
	}
	for _, band := range bands {
		mkDir(t, filepath.Join(calDir, "20240517_100405_"+band+".bcal"))
	}
	return srcDir, calDir
}

func testConfig(t *testing.T, srcDir, calDir string) Config {
	t.Helper()
	return Config{
		SourceDir:   srcDir,
		CaltableDir: calDir,
		LogDir:      t.TempDir(),
	}
}

type blockingStage struct {
	inFlight *atomic.Int32
	peak     *atomic.Int32
	hold     time.Duration
	err      error
}

func (s *blockingStage) Name() string                { return "blocking" }
func (s *blockingStage) Check(context.Context) error { return nil }
func (s *blockingStage) Run(context.Context, io.Writer) error {
	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(s.hold)
	s.inFlight.Add(-1)
	return s.err
}

func TestRun_BoundedConcurrency(t *testing.T) {
	names := []string{
		"a_41MHz.ms", "b_46MHz.ms", "c_55MHz.ms",
		"d_59MHz.ms", "e_64MHz.ms", "f_73MHz.ms",
	}
	bands := []string{"41MHz", "46MHz", "55MHz", "59MHz", "64MHz", "73MHz"}
	srcDir, calDir := fixture(t, names, bands)

	cfg := testConfig(t, srcDir, calDir)
	cfg.Parallel = 2
	o := New(cfg, &fakeRuntime{})

	var inFlight, peak atomic.Int32
	o.newPipeline = func(art ms.Artifact, caltable, scratch string) *pipeline.Pipeline {
		st := &blockingStage{inFlight: &inFlight, peak: &peak, hold: 30 * time.Millisecond}
		return pipeline.New(art.Base(), stage.NewRunner(cfg.LogDir, 0), &fakeRuntime{}, st)
	}

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Succeeded != 6 {
		t.Errorf("succeeded = %d, want 6", sum.Succeeded)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("observed %d pipelines in flight, limit is 2", p)
	}
}

func TestRun_FailureIsolated(t *testing.T) {
	names := []string{"a_41MHz.ms", "b_55MHz.ms", "c_73MHz.ms"}
	srcDir, calDir := fixture(t, names, []string{"41MHz", "55MHz", "73MHz"})

	cfg := testConfig(t, srcDir, calDir)
	o := New(cfg, &fakeRuntime{})

	var mu sync.Mutex
	var ran []string
	o.newPipeline = func(art ms.Artifact, caltable, scratch string) *pipeline.Pipeline {
		mu.Lock()
		ran = append(ran, art.Name())
		mu.Unlock()
		st := &blockingStage{inFlight: new(atomic.Int32), peak: new(atomic.Int32)}
		if art.Band == "55MHz" {
			st.err = errors.New("gaincal diverged")
		}
		return pipeline.New(art.Base(), stage.NewRunner(cfg.LogDir, 0), &fakeRuntime{}, st)
	}

	sum, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("expected batch error when a pipeline fails")
	}
	if len(ran) != 3 {
		t.Errorf("all 3 pipelines should run despite one failing, ran %v", ran)
	}
	if sum.Succeeded != 2 || sum.Failed != 1 {
		t.Errorf("summary = %d ok / %d failed, want 2 / 1", sum.Succeeded, sum.Failed)
	}
}

func TestRun_SkipsArtifactsWithoutBandOrCaltable(t *testing.T) {
	names := []string{"a_41MHz.ms", "noband.ms", "c_73MHz.ms"}
	// No table for 73MHz.
	srcDir, calDir := fixture(t, names, []string{"41MHz"})

	cfg := testConfig(t, srcDir, calDir)
	o := New(cfg, &fakeRuntime{})
	o.newPipeline = func(art ms.Artifact, caltable, scratch string) *pipeline.Pipeline {
		st := &blockingStage{inFlight: new(atomic.Int32), peak: new(atomic.Int32)}
		return pipeline.New(art.Base(), stage.NewRunner(cfg.LogDir, 0), &fakeRuntime{}, st)
	}

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("skips must not fail the batch: %v", err)
	}
	if sum.Succeeded != 1 || sum.Skipped != 2 {
		t.Errorf("summary = %d ok / %d skipped, want 1 / 2", sum.Succeeded, sum.Skipped)
	}
	for _, j := range sum.Jobs {
		if j.Artifact.Name() == "noband.ms" && j.Reason != "no band tag in name" {
			t.Errorf("noband.ms reason = %q", j.Reason)
		}
	}
}

var footerRe = regexp.MustCompile(`Completed: \d{4}-\d{2}-\d{2}T.*\nDuration: \d+s\n`)

func TestRun_EndToEndLogs(t *testing.T) {
	names := []string{"20240519_173002_55MHz.ms", "20240519_173002_73MHz.ms"}
	srcDir, calDir := fixture(t, names, []string{"55MHz", "73MHz"})

	cfg := testConfig(t, srcDir, calDir)
	o := New(cfg, &fakeRuntime{})

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Total != 2 || sum.Succeeded != 2 {
		t.Errorf("summary = %+v", sum)
	}

	for _, base := range []string{"20240519_173002_55MHz", "20240519_173002_73MHz"} {
		data, err := os.ReadFile(filepath.Join(cfg.LogDir, base+".log"))
		if err != nil {
			t.Fatalf("log for %s: %v", base, err)
		}
		if !footerRe.Match(data) {
			t.Errorf("log for %s missing stage footer:\n%s", base, data)
		}
		// Five quick-proc stages, one footer each.
		if n := strings.Count(string(data), "Duration:"); n != 5 {
			t.Errorf("log for %s has %d footers, want 5", base, n)
		}
	}
}

func TestSummary_Print(t *testing.T) {
	sum := Summary{
		Total: 3, Succeeded: 1, Failed: 1, Skipped: 1,
		Elapsed: 90 * time.Second,
		LogDir:  "/var/log/lwaproc",
		Jobs: []Job{
			{Artifact: ms.New("/d/a_41MHz.ms"), Status: StatusSucceeded},
			{Artifact: ms.New("/d/b_55MHz.ms"), Status: StatusFailed, Reason: "stage DP3 gaincal: exit 1"},
			{Artifact: ms.New("/d/noband.ms"), Status: StatusSkipped, Reason: "no band tag in name"},
		},
	}

	var buf bytes.Buffer
	sum.Print(&buf)
	out := buf.String()
	for _, want := range []string{
		"Batch complete in 90s",
		"succeeded: 1",
		"✗ b_55MHz.ms: stage DP3 gaincal: exit 1",
		"- noband.ms: no band tag in name",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
