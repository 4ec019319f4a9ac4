package contracts

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/compose-network/soulbound-harness/configs"
	"github.com/compose-network/soulbound-harness/internal/docker"
	"github.com/compose-network/soulbound-harness/internal/flags"
	"github.com/spf13/cobra"
)

var CMD = &cobra.Command{
	Use:   "compile",
	Short: "Compile the Solidity sources into Hardhat-layout artifacts",
	Long:  "Compiles every contract under solidity.sources-dir with the configured solc version and writes artifacts, debug files and build info used for verification",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := configs.Values.Solidity
		slog.Info("running contract compilation command", slog.Any("solidity", settings))

		if err := settings.Validate(); err != nil {
			return err
		}

		rootDir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}

		runner, closeRunner, err := NewRunner(settings, rootDir)
		if err != nil {
			return err
		}
		defer closeRunner()

		set, err := NewCompiler(runner, settings, rootDir).Compile(cmd.Context())
		if err != nil {
			return fmt.Errorf("contract compilation failed: %w", err)
		}

		slog.Info("contract compilation completed successfully", "contracts", set.Names())

		return nil
	},
}

func init() {
	flags.MustDeclare(CMD, []flags.Def[string]{
		{"solc-version", "solidity.version", "", "Expected solc version, e.g. 0.8.17"},
		{"solc-runner", "solidity.runner", "", "Where solc runs: local or docker"},
		{"solc-image", "solidity.image", "", "solc image for the docker runner"},
		{"sources-dir", "solidity.sources-dir", "", "Directory holding the Solidity sources"},
		{"artifacts-dir", "solidity.artifacts-dir", "", "Directory receiving the artifacts"},
	})
	flags.MustDeclare(CMD, []flags.Def[bool]{
		{"optimize", "solidity.optimizer.enabled", false, "Enable the solc optimizer"},
	})
}

// NewRunner picks the solc runner named in settings. The returned func releases it.
func NewRunner(settings configs.Solidity, rootDir string) (Runner, func(), error) {
	if settings.Runner != configs.RunnerDocker {
		return NewLocalRunner(rootDir, settings.NodeModulesDir), func() {}, nil
	}

	client, err := docker.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	runner := NewDockerRunner(client, settings.Image, rootDir, settings.SourcesDir, settings.NodeModulesDir)
	return runner, func() { _ = client.Close() }, nil
}
