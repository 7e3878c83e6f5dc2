// Package stage defines the processing stages of the LWA pipeline and the
// runner that executes them against per-artifact logs.
//
// A stage is one containerized tool invocation: it renders any transient
// configuration (DP3 parsets, CASA scripts) into a scratch directory,
// mounts the data and scratch directories into the container, runs the
// tool, and streams its combined output to the log writer. Stages do no
// semantic validation of tool options; the tools own that.
package stage

import (
	"context"
	"fmt"
	"io"
	"os"

	"lwaproc/internal/container"
)

// Stage is one unit of pipeline work.
//
// Check is the pre-flight contract: it verifies everything the stage
// needs before any external process starts (input artifacts on disk,
// companion tables). Run blocks until the tool exits; a nil error means
// exit status zero.
type Stage interface {
	Name() string
	Check(ctx context.Context) error
	Run(ctx context.Context, log io.Writer) error
}

// Env carries what every stage needs to reach the outside world: the
// container runtime, the tool image, and a scratch directory for
// transient parsets and scripts. Scratch is mounted read-only at /config
// inside the container. Each concurrent job gets its own scratch
// directory, so parset names never collide across workers.
type Env struct {
	Runtime container.Runtime
	Image   string
	Scratch string
}

// dataMount is the container-side root for host data directories.
const dataMount = "/data"

// configMount is the container-side root for the scratch directory.
const configMount = "/config"

func requireExists(path, what string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s not found: %s", what, path)
	}
	return nil
}
