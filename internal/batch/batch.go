// Package batch fans the quick processing pipeline out over every
// measurement set in a directory.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lwaproc/internal/container"
	"lwaproc/internal/logging"
	"lwaproc/internal/ms"
	"lwaproc/internal/pipeline"
	"lwaproc/internal/stage"
)

// DefaultParallel bounds the number of pipelines in flight at once.
const DefaultParallel = 12

// Config parameterizes one batch run.
type Config struct {
	SourceDir   string // directory holding the raw .ms artifacts
	CaltableDir string // directory holding per-band .bcal tables
	Prefix      string
	LincImage   string
	CasaImage   string
	LogDir      string
	Parallel    int           // 0 = DefaultParallel
	Timeout     time.Duration // per stage, 0 = none
	Plot        bool
}

// JobStatus classifies the outcome of one artifact's pipeline.
type JobStatus int

const (
	StatusSucceeded JobStatus = iota
	StatusFailed
	StatusSkipped
)

// Job is the per-artifact record of a batch run.
type Job struct {
	Artifact ms.Artifact
	Status   JobStatus
	Reason   string // skip reason or failure message
	Elapsed  time.Duration
}

// Summary aggregates a finished batch.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Elapsed   time.Duration
	LogDir    string
	Jobs      []Job
}

// Orchestrator schedules one pipeline per artifact on a bounded pool.
type Orchestrator struct {
	cfg     Config
	runtime container.Runtime
	log     *slog.Logger

	// newPipeline is swapped in tests to avoid container invocations.
	newPipeline func(art ms.Artifact, caltable, scratch string) *pipeline.Pipeline
}

// New creates an orchestrator over the given runtime.
func New(cfg Config, rt container.Runtime) *Orchestrator {
	o := &Orchestrator{cfg: cfg, runtime: rt, log: logging.New("batch")}
	o.newPipeline = o.quickProc
	return o
}

func (o *Orchestrator) quickProc(art ms.Artifact, caltable, scratch string) *pipeline.Pipeline {
	runner := stage.NewRunner(o.cfg.LogDir, o.cfg.Timeout)
	return pipeline.QuickProc(pipeline.QuickProcConfig{
		RawMS:     art.Path,
		GainTable: caltable,
		Prefix:    o.cfg.Prefix,
		LincImage: o.cfg.LincImage,
		CasaImage: o.cfg.CasaImage,
		Scratch:   scratch,
		Plot:      o.cfg.Plot,
	}, runner, o.runtime)
}

// Run discovers the artifacts, pairs each with its band's caltable, and
// executes the pipelines with at most cfg.Parallel in flight. One
// artifact's failure never disturbs the others; the summary is always
// complete. The returned error is non-nil when any job failed.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()

	if err := o.runtime.Available(ctx); err != nil {
		return Summary{LogDir: o.cfg.LogDir}, fmt.Errorf("batch: %w", err)
	}

	artifacts, err := ms.List(o.cfg.SourceDir)
	if err != nil {
		return Summary{LogDir: o.cfg.LogDir}, fmt.Errorf("batch: %w", err)
	}
	if len(artifacts) == 0 {
		return Summary{LogDir: o.cfg.LogDir}, fmt.Errorf("batch: no measurement sets in %s", o.cfg.SourceDir)
	}

	parallel := o.cfg.Parallel
	if parallel <= 0 {
		parallel = DefaultParallel
	}

	scratchRoot, err := os.MkdirTemp("", "lwaproc-batch-")
	if err != nil {
		return Summary{LogDir: o.cfg.LogDir}, fmt.Errorf("batch: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchRoot)

	jobs := make([]Job, len(artifacts))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, art := range artifacts {
		g.Go(func() error {
			job := o.runOne(gctx, i, art, scratchRoot)
			mu.Lock()
			jobs[i] = job
			mu.Unlock()
			// Failures are recorded per job so the remaining
			// artifacts keep running.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{LogDir: o.cfg.LogDir, Jobs: jobs}, fmt.Errorf("batch: %w", err)
	}

	sum := Summary{
		Total:   len(artifacts),
		Elapsed: time.Since(start),
		LogDir:  o.cfg.LogDir,
		Jobs:    jobs,
	}
	for _, j := range jobs {
		switch j.Status {
		case StatusSucceeded:
			sum.Succeeded++
		case StatusFailed:
			sum.Failed++
		case StatusSkipped:
			sum.Skipped++
		}
	}

	if sum.Failed > 0 {
		return sum, fmt.Errorf("batch: %d of %d pipelines failed", sum.Failed, sum.Total)
	}
	return sum, nil
}

func (o *Orchestrator) runOne(ctx context.Context, idx int, art ms.Artifact, scratchRoot string) Job {
	job := Job{Artifact: art}

	if art.Band == "" {
		job.Status = StatusSkipped
		job.Reason = "no band tag in name"
		o.log.Warn("skipping artifact without band tag", "ms", art.Name())
		return job
	}

	caltable, err := ms.FindCaltable(o.cfg.CaltableDir, art.Band)
	if err != nil {
		job.Status = StatusSkipped
		job.Reason = err.Error()
		o.log.Warn("skipping artifact without caltable",
			"ms", art.Name(), "band", art.Band)
		return job
	}

	// Each job gets its own scratch dir so concurrent pipelines never
	// collide on parset filenames.
	scratch := filepath.Join(scratchRoot, fmt.Sprintf("job%03d", idx))
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		job.Status = StatusFailed
		job.Reason = err.Error()
		return job
	}

	o.log.Info("pipeline started", "ms", art.Name(), "band", art.Band)
	start := time.Now()
	_, err = o.newPipeline(art, caltable, scratch).Execute(ctx)
	job.Elapsed = time.Since(start)

	if err != nil {
		job.Status = StatusFailed
		job.Reason = err.Error()
		o.log.Error("pipeline failed", "ms", art.Name(), "err", err)
		return job
	}
	job.Status = StatusSucceeded
	o.log.Info("pipeline completed", "ms", art.Name(), "elapsed", job.Elapsed)
	return job
}

// Print writes the human-readable summary table.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "\nBatch complete in %ds\n", int(s.Elapsed.Seconds()))
	fmt.Fprintf(w, "  total:     %d\n", s.Total)
	fmt.Fprintf(w, "  succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(w, "  failed:    %d\n", s.Failed)
	fmt.Fprintf(w, "  skipped:   %d\n", s.Skipped)
	fmt.Fprintf(w, "  logs:      %s\n", s.LogDir)
	for _, j := range s.Jobs {
		switch j.Status {
		case StatusFailed:
			fmt.Fprintf(w, "  ✗ %s: %s\n", j.Artifact.Name(), j.Reason)
		case StatusSkipped:
			fmt.Fprintf(w, "  - %s: %s\n", j.Artifact.Name(), j.Reason)
		}
	}
}
