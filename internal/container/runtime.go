// Package container abstracts the runtime that hosts the radio-astronomy
// tools. Stages describe one containerized invocation as a RunSpec; the
// runtime mounts host paths, runs the command, and streams combined
// stdout/stderr to the caller's writer.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrRuntimeUnavailable is returned by Available when the runtime cannot
// be reached on this host. It is a pre-flight condition, never retried.
var ErrRuntimeUnavailable = errors.New("container runtime unavailable")

// Mount binds a host path into the container.
type Mount struct {
	Host      string
	Container string
	ReadOnly  bool
}

// RunSpec describes one containerized tool invocation.
type RunSpec struct {
	Image   string
	Command []string
	Mounts  []Mount
	WorkDir string
}

// ExitError reports a container process that ran and exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("container exited with code %d", e.Code)
}

// Runtime runs containerized tools. Run blocks until the container exits
// and returns nil only for a zero exit status; output receives the
// interleaved stdout/stderr of the tool.
type Runtime interface {
	Name() string
	Available(ctx context.Context) error
	Pull(ctx context.Context, image string) error
	Run(ctx context.Context, spec RunSpec, output io.Writer) error
}

// New returns the runtime for the given name ("podman" or "docker").
func New(name string) (Runtime, error) {
	switch name {
	case "", "podman":
		return NewPodman(), nil
	case "docker":
		return NewDocker()
	default:
		return nil, fmt.Errorf("unknown container runtime %q (want podman or docker)", name)
	}
}
