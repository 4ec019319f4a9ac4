package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/moby/go-archive"
)

var errNoEngine = errors.New("docker engine client is not available")

type RunOptions struct {
	Image      string
	Cmd        []string
	Entrypoint []string
	Env        []string
	WorkDir    string
	User       string
	AutoRemove bool
	StreamLogs bool
	CaptureOut bool

	// CopyDir is tarred and extracted into CopyTo before the container starts. Only the
	// relative paths in CopyInclude are sent when it is set; CopyRebase renames entries
	// inside the archive so they can land in directories the image does not have.
	CopyDir     string
	CopyInclude []string
	CopyRebase  map[string]string
	CopyTo      string
}

// DetachedOptions describes a long-running service container.
type DetachedOptions struct {
	Name       string
	Image      string
	Entrypoint []string
	Cmd        []string
	Labels     map[string]string
	// Ports maps container ports ("8545/tcp") to host ports on 127.0.0.1.
	Ports map[string]string
}

// Run runs a Docker container and waits for it to complete.
func (c *Client) Run(ctx context.Context, opts RunOptions) (string, error) {
	if c.cli == nil {
		return "", errNoEngine
	}

	config := &container.Config{
		Image:      opts.Image,
		Cmd:        opts.Cmd,
		Entrypoint: opts.Entrypoint,
		Env:        opts.Env,
		WorkingDir: opts.WorkDir,
		User:       opts.User,
	}

	hostConfig := &container.HostConfig{
		AutoRemove: opts.AutoRemove,
	}

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	containerID := resp.ID

	defer func() {
		if err != nil && !opts.AutoRemove {
			_ = c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
		}
	}()

	if opts.CopyDir != "" {
		if err = c.copyInto(ctx, containerID, opts); err != nil {
			return "", err
		}
	}

	// Attach to container logs before starting (needed for AutoRemove containers)
	var stdout, stderr bytes.Buffer
	copied := make(chan struct{})

	if opts.CaptureOut || opts.StreamLogs || opts.AutoRemove {
		attachResp, attachErr := c.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
			Stream: true,
			Stdout: true,
			Stderr: true,
		})
		if attachErr != nil {
			err = attachErr
			return "", fmt.Errorf("failed to attach to container: %w", err)
		}
		defer attachResp.Close()

		go func() {
			defer close(copied)
			if opts.StreamLogs {
				outWriter := io.MultiWriter(os.Stdout, &stdout)
				errWriter := io.MultiWriter(os.Stderr, &stderr)
				_, _ = stdcopy.StdCopy(outWriter, errWriter, attachResp.Reader)
			} else {
				_, _ = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
			}
		}()
	} else {
		close(copied)
	}

	if err = c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case waitErr := <-errCh:
		if waitErr != nil {
			err = waitErr
			return "", fmt.Errorf("error waiting for container: %w", err)
		}
	case status := <-statusCh:
		<-copied
		if status.StatusCode != 0 {
			errorOutput := stdout.String() + stderr.String()
			if errorOutput != "" {
				err = fmt.Errorf("container exited with code %d: %s", status.StatusCode, errorOutput)
			} else {
				err = fmt.Errorf("container exited with code %d", status.StatusCode)
			}
			return "", err
		}
	case <-ctx.Done():
		err = ctx.Err()
		return "", err
	}

	if !opts.AutoRemove {
		_ = c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	}

	if opts.CaptureOut {
		return stdout.String(), nil
	}

	return "", nil
}

func (c *Client) copyInto(ctx context.Context, containerID string, opts RunOptions) error {
	content, err := archive.TarWithOptions(opts.CopyDir, &archive.TarOptions{
		IncludeFiles: opts.CopyInclude,
		RebaseNames:  opts.CopyRebase,
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", opts.CopyDir, err)
	}
	defer content.Close()

	target := opts.CopyTo
	if target == "" {
		target = "/"
	}

	if err := c.cli.CopyToContainer(ctx, containerID, target, content, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy %s into container: %w", opts.CopyDir, err)
	}

	return nil
}

// StartDetached creates and starts a named container and returns its ID without waiting for it.
func (c *Client) StartDetached(ctx context.Context, opts DetachedOptions) (string, error) {
	if c.cli == nil {
		return "", errNoEngine
	}

	exposed, bindings, err := portBindings(opts.Ports)
	if err != nil {
		return "", err
	}

	config := &container.Config{
		Image:        opts.Image,
		Entrypoint:   opts.Entrypoint,
		Cmd:          opts.Cmd,
		Labels:       opts.Labels,
		ExposedPorts: exposed,
	}

	hostConfig := &container.HostConfig{
		PortBindings: bindings,
	}

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", opts.Name, err)
	}

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = c.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start container %s: %w", opts.Name, err)
	}

	c.logger.With("name", opts.Name).With("id", resp.ID).Info("container started")

	return resp.ID, nil
}

func portBindings(ports map[string]string) (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}

	for containerPort, hostPort := range ports {
		port, err := nat.NewPort(nat.SplitProtoPort(containerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid container port %q: %w", containerPort, err)
		}

		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: hostPort}}
	}

	return exposed, bindings, nil
}
