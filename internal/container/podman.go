package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Podman shells out to the podman binary, the runtime the observatory
// hosts ship with.
type Podman struct {
	// Binary overrides the executable name; tests point it at a stub.
	Binary string
}

// NewPodman returns a Podman runtime using the binary on PATH.
func NewPodman() *Podman {
	return &Podman{Binary: "podman"}
}

func (p *Podman) Name() string { return "podman" }

// Available probes `podman --version`.
func (p *Podman) Available(ctx context.Context) error {
	if err := exec.CommandContext(ctx, p.Binary, "--version").Run(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRuntimeUnavailable, p.Binary, err)
	}
	return nil
}

// Pull fetches the image ahead of time so stage timings exclude transfer.
func (p *Podman) Pull(ctx context.Context, image string) error {
	if err := exec.CommandContext(ctx, p.Binary, "pull", image).Run(); err != nil {
		return fmt.Errorf("pull %s: %w", image, err)
	}
	return nil
}

// Args builds the podman command line for a spec: run --rm, one -v per
// mount, optional -w, then image and command.
func (p *Podman) Args(spec RunSpec) []string {
	args := []string{"run", "--rm"}
	for _, m := range spec.Mounts {
		bind := m.Host + ":" + m.Container
		if m.ReadOnly {
			bind += ":ro"
		}
		args = append(args, "-v", bind)
	}
	if spec.WorkDir != "" {
		args = append(args, "-w", spec.WorkDir)
	}
	args = append(args, spec.Image)
	args = append(args, spec.Command...)
	return args
}

func (p *Podman) Run(ctx context.Context, spec RunSpec, output io.Writer) error {
	cmd := exec.CommandContext(ctx, p.Binary, p.Args(spec)...)
	cmd.Stdout = output
	cmd.Stderr = output

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return fmt.Errorf("podman run: %w", err)
}
