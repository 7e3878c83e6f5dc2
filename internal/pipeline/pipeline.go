// Package pipeline composes stages into a fail-fast sequence over one
// measurement set.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"lwaproc/internal/container"
	"lwaproc/internal/logging"
	"lwaproc/internal/stage"
)

// Pipeline is an ordered stage sequence over one artifact. Stage i+1 only
// runs when stage i reported success; the first failure halts the run.
type Pipeline struct {
	Base    string // artifact base name; names the shared log file
	Stages  []stage.Stage
	Runner  *stage.Runner
	Runtime container.Runtime

	// Banner, when non-nil, receives the step-by-step progress banner
	// (the single-pipeline mode surface). Batch mode leaves it nil.
	Banner io.Writer

	log *slog.Logger
}

// New creates a pipeline over the given stages.
func New(base string, runner *stage.Runner, rt container.Runtime, stages ...stage.Stage) *Pipeline {
	return &Pipeline{
		Base:    base,
		Stages:  stages,
		Runner:  runner,
		Runtime: rt,
		log:     logging.New("pipeline"),
	}
}

// Preflight validates every collaborator before any stage starts: the
// container runtime must answer, and each stage's requirements must
// resolve. Any failure aborts the whole run; nothing is retried.
func (p *Pipeline) Preflight(ctx context.Context) error {
	if err := p.Runtime.Available(ctx); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	for _, st := range p.Stages {
		if err := st.Check(ctx); err != nil {
			return fmt.Errorf("preflight %s: %w", st.Name(), err)
		}
	}
	return nil
}

// Execute runs Preflight and then the stages in order, halting at the
// first failure. The returned results cover only the stages that ran.
func (p *Pipeline) Execute(ctx context.Context) ([]stage.Result, error) {
	if err := p.Preflight(ctx); err != nil {
		return nil, err
	}

	var results []stage.Result
	for i, st := range p.Stages {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("pipeline interrupted: %w", err)
		}

		p.banner("============================================================\nSTEP %d: %s\n============================================================\n", i+1, st.Name())

		res := p.Runner.Run(ctx, st, p.Base)
		results = append(results, res)

		if !res.OK() {
			p.banner("✗ %s failed after %ds: %v\n", st.Name(), int(res.Duration.Seconds()), res.Err)
			return results, fmt.Errorf("stage %s: %w", st.Name(), res.Err)
		}
		p.banner("✓ %s completed (%ds)\n", st.Name(), int(res.Duration.Seconds()))
	}
	return results, nil
}

func (p *Pipeline) banner(format string, args ...any) {
	if p.Banner == nil {
		return
	}
	fmt.Fprintf(p.Banner, format, args...)
}
