// Package realtime processes the newest recorded observation: it stages
// the MS and its band's caltable into a fresh proc directory and runs
// the quick pipeline there.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"lwaproc/internal/config"
	"lwaproc/internal/container"
	"lwaproc/internal/logging"
	"lwaproc/internal/ms"
	"lwaproc/internal/pipeline"
	"lwaproc/internal/stage"
)

// Processor runs one realtime round over a site.
type Processor struct {
	Site      config.Site
	LincImage string
	CasaImage string
	Timeout   time.Duration
	Plot      bool
	Runtime   container.Runtime

	log *slog.Logger
}

// New creates a processor for the given site layout.
func New(site config.Site, rt container.Runtime) *Processor {
	return &Processor{Site: site, Runtime: rt, log: logging.New("realtime")}
}

// Result describes one completed round.
type Result struct {
	Observation string // source MS under the data root
	Caltable    string
	ProcDir     string // staging directory holding copies and products
	LogFile     string
}

// Run finds the newest observation, stages it with its caltable, and
// executes the quick pipeline inside the staging directory. Stage logs
// land in <proc dir>/proc.log.
func (p *Processor) Run(ctx context.Context) (Result, error) {
	obs, err := ms.NewestObservation(p.Site.DataRoot)
	if err != nil {
		return Result{}, fmt.Errorf("realtime: %w", err)
	}

	art := ms.New(obs)
	band := art.Band
	if band == "" {
		band = p.Site.Band
	}
	caltable, err := ms.FindCaltable(p.Site.CaltableRoot, band)
	if err != nil {
		return Result{}, fmt.Errorf("realtime: %w", err)
	}
	p.log.Info("newest observation", "ms", art.Name(), "band", band,
		"caltable", filepath.Base(caltable))

	res := Result{Observation: obs, Caltable: caltable}
	res.ProcDir, err = p.stageInputs(obs, caltable)
	if err != nil {
		return res, err
	}
	res.LogFile = filepath.Join(res.ProcDir, "proc.log")

	stagedMS := filepath.Join(res.ProcDir, "slow", art.Name())
	stagedTable := filepath.Join(res.ProcDir, "caltable", filepath.Base(caltable))
	scratch := filepath.Join(res.ProcDir, "scratch")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return res, fmt.Errorf("realtime: %w", err)
	}

	runner := stage.NewRunner(res.ProcDir, p.Timeout)
	pl := pipeline.QuickProc(pipeline.QuickProcConfig{
		RawMS:     stagedMS,
		GainTable: stagedTable,
		LincImage: p.LincImage,
		CasaImage: p.CasaImage,
		Scratch:   scratch,
		Plot:      p.Plot,
	}, runner, p.Runtime)
	// All stages share one proc.log.
	pl.Base = "proc"

	if _, err := pl.Execute(ctx); err != nil {
		return res, fmt.Errorf("realtime: %w", err)
	}
	p.log.Info("round complete", "proc_dir", res.ProcDir)
	return res, nil
}

// stageInputs copies the observation and its caltable into a unique
// proc directory under the proc root. The copies keep the originals out
// of the containers' write path.
func (p *Processor) stageInputs(obs, caltable string) (string, error) {
	procDir := filepath.Join(p.Site.ProcRoot,
		fmt.Sprintf("proc_%s_%s", time.Now().UTC().Format("20060102_150405"), uuid.NewString()[:8]))

	msDst := filepath.Join(procDir, "slow", filepath.Base(obs))
	if err := copyTree(obs, msDst); err != nil {
		return "", fmt.Errorf("realtime: stage MS: %w", err)
	}
	tableDst := filepath.Join(procDir, "caltable", filepath.Base(caltable))
	if err := copyTree(caltable, tableDst); err != nil {
		return "", fmt.Errorf("realtime: stage caltable: %w", err)
	}
	return procDir, nil
}

func copyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return os.CopyFS(dst, os.DirFS(src))
}
