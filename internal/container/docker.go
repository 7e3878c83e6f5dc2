package container

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	apicontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Docker drives containers through the Docker Engine API instead of a
// CLI, for hosts that run dockerd rather than podman.
type Docker struct {
	cli *client.Client
}

// NewDocker connects to the local daemon using the standard environment
// variables (DOCKER_HOST etc.).
func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Docker{cli: cli}, nil
}

func (d *Docker) Name() string { return "docker" }

func (d *Docker) Available(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}
	return nil
}

func (d *Docker) Pull(ctx context.Context, image string) error {
	reader, err := d.cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", image, err)
	}
	defer reader.Close()
	// Drain the progress stream so the pull completes before we return.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("pull %s: %w", image, err)
	}
	return nil
}

// Run creates, starts, waits on, logs, and removes one container.
func (d *Docker) Run(ctx context.Context, spec RunSpec, output io.Writer) error {
	binds := make([]string, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		bind := m.Host + ":" + m.Container
		if m.ReadOnly {
			bind += ":ro"
		}
		binds = append(binds, bind)
	}

	resp, err := d.cli.ContainerCreate(ctx,
		&apicontainer.Config{
			Image:      spec.Image,
			Cmd:        spec.Command,
			WorkingDir: spec.WorkDir,
			Tty:        false,
		},
		&apicontainer.HostConfig{Binds: binds},
		nil, nil, "")
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	id := resp.ID
	defer func() {
		_ = d.cli.ContainerRemove(context.Background(), id, types.ContainerRemoveOptions{Force: true})
	}()

	if err := d.cli.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := d.cli.ContainerWait(ctx, id, apicontainer.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("wait container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := d.cli.ContainerLogs(ctx, id, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return fmt.Errorf("container logs: %w", err)
	}
	defer logs.Close()

	// The log stream is multiplexed; stdcopy splits it back out. Both
	// halves land in the same writer to match the interleaved tool log.
	if _, err := stdcopy.StdCopy(output, output, logs); err != nil {
		return fmt.Errorf("read container logs: %w", err)
	}

	if exitCode != 0 {
		return &ExitError{Code: int(exitCode)}
	}
	return nil
}
