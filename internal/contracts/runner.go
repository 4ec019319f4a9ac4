package contracts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/compose-network/soulbound-harness/internal/docker"
)

// Runner executes solc in standard-JSON mode.
type Runner interface {
	// Version returns the long compiler version, e.g. 0.8.17+commit.8df45f5f.Linux.g++.
	Version(ctx context.Context) (string, error)
	Compile(ctx context.Context, input []byte) ([]byte, error)
}

var errNoVersion = errors.New("solc did not report a version")

// LocalRunner runs a solc binary from PATH.
type LocalRunner struct {
	Binary         string
	RootDir        string
	NodeModulesDir string
}

func NewLocalRunner(rootDir, nodeModulesDir string) *LocalRunner {
	return &LocalRunner{Binary: "solc", RootDir: rootDir, NodeModulesDir: nodeModulesDir}
}

func (r *LocalRunner) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, r.Binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to run %s --version: %w", r.Binary, err)
	}

	return parseVersion(string(out))
}

func (r *LocalRunner) Compile(ctx context.Context, input []byte) ([]byte, error) {
	args := []string{"--standard-json", "--base-path", "."}
	if r.NodeModulesDir != "" {
		args = append(args, "--include-path", r.NodeModulesDir)
	}

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Dir = r.RootDir
	cmd.Stdin = bytes.NewReader(input)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("solc failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return out, nil
}

// DockerRunner runs solc from the ethereum/solc image. The project root is copied into the
// container so imports resolve the same way they do for the local binary.
type DockerRunner struct {
	docker         *docker.Client
	Image          string
	RootDir        string
	SourcesDir     string
	NodeModulesDir string
}

const containerRoot = "/sources"

func NewDockerRunner(client *docker.Client, image, rootDir, sourcesDir, nodeModulesDir string) *DockerRunner {
	return &DockerRunner{
		docker:         client,
		Image:          image,
		RootDir:        rootDir,
		SourcesDir:     sourcesDir,
		NodeModulesDir: nodeModulesDir,
	}
}

func (r *DockerRunner) Version(ctx context.Context) (string, error) {
	if err := r.docker.EnsureImage(ctx, r.Image); err != nil {
		return "", err
	}

	out, err := r.docker.Run(ctx, docker.RunOptions{
		Image:      r.Image,
		Cmd:        []string{"--version"},
		CaptureOut: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run solc --version in %s: %w", r.Image, err)
	}

	return parseVersion(out)
}

func (r *DockerRunner) Compile(ctx context.Context, input []byte) ([]byte, error) {
	inputFile, err := os.CreateTemp(r.RootDir, ".solc-input-*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to stage compiler input: %w", err)
	}
	defer os.Remove(inputFile.Name())

	if _, err := inputFile.Write(input); err != nil {
		inputFile.Close()
		return nil, fmt.Errorf("failed to stage compiler input: %w", err)
	}
	if err := inputFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to stage compiler input: %w", err)
	}

	inputName := filepath.Base(inputFile.Name())
	include := []string{inputName, r.SourcesDir}
	args := []string{"--standard-json", "--base-path", containerRoot}
	if r.NodeModulesDir != "" {
		if _, err := os.Stat(filepath.Join(r.RootDir, r.NodeModulesDir)); err == nil {
			include = append(include, r.NodeModulesDir)
			args = append(args, "--include-path", path.Join(containerRoot, filepath.ToSlash(r.NodeModulesDir)))
		}
	}
	args = append(args, "--allow-paths", containerRoot, path.Join(containerRoot, inputName))

	rebase := make(map[string]string, len(include))
	for _, name := range include {
		rebase[name] = path.Join(strings.TrimPrefix(containerRoot, "/"), filepath.ToSlash(name))
	}

	out, err := r.docker.Run(ctx, docker.RunOptions{
		Image:       r.Image,
		Cmd:         args,
		CaptureOut:  true,
		CopyDir:     r.RootDir,
		CopyInclude: include,
		CopyRebase:  rebase,
		CopyTo:      "/",
	})
	if err != nil {
		return nil, fmt.Errorf("solc failed in %s: %w", r.Image, err)
	}

	return []byte(out), nil
}

func parseVersion(output string) (string, error) {
	for _, line := range strings.Split(output, "\n") {
		if version, ok := strings.CutPrefix(strings.TrimSpace(line), "Version: "); ok {
			return strings.TrimSpace(version), nil
		}
	}

	return "", errNoVersion
}
