package devnet

import (
	"fmt"
	"log/slog"

	"github.com/compose-network/soulbound-harness/configs"
	"github.com/compose-network/soulbound-harness/internal/docker"
	"github.com/compose-network/soulbound-harness/internal/flags"
	"github.com/spf13/cobra"
)

var (
	CMD = &cobra.Command{
		Use:   "devnet",
		Short: "Manage a local anvil chain for deploy and check runs",
	}

	upCmd = &cobra.Command{
		Use:   "up",
		Short: "Start the local chain, or reuse it when already running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(service *Service) error {
				if _, err := service.Up(cmd.Context()); err != nil {
					return fmt.Errorf("error occurred starting devnet: %w", err)
				}

				slog.Info("devnet started", "url", service.URL())
				return nil
			})
		},
	}

	downCmd = &cobra.Command{
		Use:   "down",
		Short: "Remove the local chain container",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(service *Service) error {
				if err := service.Down(cmd.Context()); err != nil {
					return fmt.Errorf("error occurred removing devnet: %w", err)
				}
				return nil
			})
		},
	}
)

func init() {
	CMD.AddCommand(upCmd)
	CMD.AddCommand(downCmd)

	flags.MustDeclare(upCmd, []flags.Def[string]{
		{"image", "devnet.image", "", "Image providing the anvil binary"},
	})
	flags.MustDeclare(upCmd, []flags.Def[int]{
		{"port", "devnet.port", 0, "Host port the RPC is published on"},
	})
}

func withService(run func(*Service) error) error {
	cfg := configs.Values.Devnet
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := docker.New()
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}
	defer client.Close()

	return run(NewService(client, cfg))
}
