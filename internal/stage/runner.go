package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lwaproc/internal/logging"
)

// ErrTimeout marks a stage that was killed by the per-stage deadline.
// The default configuration sets no deadline; a hung tool then holds its
// worker slot indefinitely, same as the shell pipeline it replaces.
var ErrTimeout = errors.New("stage timed out")

// Result is the terminal record of one stage execution.
type Result struct {
	Stage    string
	Duration time.Duration
	Err      error
}

// OK reports whether the stage exited zero.
func (r Result) OK() bool { return r.Err == nil }

// Runner executes stages and owns the per-artifact log files. Logs are
// opened in append mode so every stage of a pipeline lands in the same
// file, each followed by the fixed completion footer.
type Runner struct {
	LogDir  string
	Timeout time.Duration // 0 = no deadline

	log *slog.Logger
	now func() time.Time
}

// NewRunner creates a Runner writing logs under logDir.
func NewRunner(logDir string, timeout time.Duration) *Runner {
	return &Runner{
		LogDir:  logDir,
		Timeout: timeout,
		log:     logging.New("stage"),
		now:     time.Now,
	}
}

// LogPath returns the log file for an artifact base name.
func (r *Runner) LogPath(base string) string {
	return filepath.Join(r.LogDir, base+".log")
}

// Run executes one stage, streaming tool output into <base>.log and
// appending the completion footer. Failures are reported in the Result,
// never raised; the caller decides between halting a pipeline and
// isolating a batch job.
func (r *Runner) Run(ctx context.Context, st Stage, base string) Result {
	if err := os.MkdirAll(r.LogDir, 0o755); err != nil {
		return Result{Stage: st.Name(), Err: fmt.Errorf("create log dir: %w", err)}
	}

	f, err := os.OpenFile(r.LogPath(base), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Result{Stage: st.Name(), Err: fmt.Errorf("open log: %w", err)}
	}
	defer f.Close()

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	r.log.Info("stage start", "stage", st.Name(), "artifact", base)
	start := r.now()
	runErr := st.Run(runCtx, f)
	elapsed := r.now().Sub(start)

	if runErr != nil && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		runErr = fmt.Errorf("%s after %s: %w", st.Name(), r.Timeout, ErrTimeout)
	}

	r.writeFooter(f, elapsed)

	if runErr != nil {
		r.log.Error("stage failed", "stage", st.Name(), "artifact", base,
			"duration_s", int(elapsed.Seconds()), "error", runErr)
	} else {
		r.log.Info("stage done", "stage", st.Name(), "artifact", base,
			"duration_s", int(elapsed.Seconds()))
	}

	return Result{Stage: st.Name(), Duration: elapsed, Err: runErr}
}

// writeFooter appends the fixed-format completion block: separator,
// completion timestamp, duration in whole seconds.
func (r *Runner) writeFooter(f *os.File, elapsed time.Duration) {
	fmt.Fprintf(f, "----------------------------------------\n")
	fmt.Fprintf(f, "Completed: %s\n", r.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(f, "Duration: %ds\n", int(elapsed.Seconds()))
}
