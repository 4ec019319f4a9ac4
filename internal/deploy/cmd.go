package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/compose-network/soulbound-harness/configs"
	"github.com/compose-network/soulbound-harness/internal/chain"
	"github.com/compose-network/soulbound-harness/internal/contracts"
	"github.com/compose-network/soulbound-harness/internal/explorer"
	"github.com/compose-network/soulbound-harness/internal/flags"
	"github.com/compose-network/soulbound-harness/internal/proxy"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var (
	CMD = &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the token behind a UUPS proxy",
		Long:  "Deploys the implementation and an ERC1967 proxy initialised through it, waits for confirmations, verifies the contract on the explorer and writes the address module and deployment record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.Values
			if err := cfg.ValidateDeploy(); err != nil {
				return err
			}

			return withService(cmd.Context(), cfg, func(service *Service) error {
				record, err := service.Deploy(cmd.Context())
				if err != nil {
					return fmt.Errorf("deployment failed: %w", err)
				}

				slog.Info("deployment completed successfully",
					"proxy", record.Proxy.Hex(),
					"implementation", record.Implementation.Hex(),
					"output", cfg.Deployment.OutputFile)
				return nil
			})
		},
	}

	UpgradeCMD = &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade the recorded proxy to the upgrade contract",
		Long:  "Deploys deployment.upgrade-contract and points the proxy recorded for the network at it, optionally running a call on the new implementation in the same transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.Values
			if err := cfg.ValidateDeploy(); err != nil {
				return err
			}
			if cfg.Deployment.UpgradeContract == "" {
				return errors.New("deployment.upgrade-contract is required")
			}

			return withService(cmd.Context(), cfg, func(service *Service) error {
				var call *proxy.Call
				if upgradeCall != "" {
					artifact, err := service.artifacts.Get(cfg.Deployment.UpgradeContract)
					if err != nil {
						return err
					}
					if call, err = ParseCall(artifact.ABI, upgradeCall, upgradeCallArgs); err != nil {
						return err
					}
				}

				record, err := service.Upgrade(cmd.Context(), call)
				if err != nil {
					return fmt.Errorf("upgrade failed: %w", err)
				}

				slog.Info("upgrade completed successfully",
					"proxy", record.Proxy.Hex(),
					"implementation", record.Implementation.Hex())
				return nil
			})
		},
	}

	VerifyCMD = &cobra.Command{
		Use:   "verify",
		Short: "Verify a deployed proxy and its implementation on the explorer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.Values
			if err := cfg.ValidateVerify(); err != nil {
				return err
			}

			address, err := parseAddress(targetAddress)
			if err != nil {
				return err
			}

			return withService(cmd.Context(), cfg, func(service *Service) error {
				if err := service.Verify(cmd.Context(), address); err != nil {
					return fmt.Errorf("verification failed: %w", err)
				}

				slog.Info("verification completed successfully")
				return nil
			})
		},
	}

	ImplementationCMD = &cobra.Command{
		Use:   "implementation",
		Short: "Print the implementation address behind a proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.Values
			if _, _, err := cfg.Selected(); err != nil {
				return err
			}

			address, err := parseAddress(targetAddress)
			if err != nil {
				return err
			}

			return withService(cmd.Context(), cfg, func(service *Service) error {
				implementation, err := service.Implementation(cmd.Context(), address)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), implementation.Hex())
				return err
			})
		},
	}

	upgradeCall     string
	upgradeCallArgs []string
	targetAddress   string
)

func init() {
	flags.MustDeclare(CMD, []flags.Def[string]{
		{"contract", "deployment.contract", "", "Artifact name of the implementation"},
		{"output-file", "deployment.output-file", "", "JS module receiving the proxy address"},
		{"export-name", "deployment.export-name", "", "Name of the exported address constant"},
	})
	flags.MustDeclare(CMD, []flags.Def[int]{
		{"confirmations", "deployment.confirmations", 0, "Blocks to wait for after the proxy deployment"},
	})
	flags.MustDeclare(CMD, []flags.Def[bool]{
		{"verify", "deployment.verify", false, "Verify the contract on the explorer after deployment"},
	})

	flags.MustDeclare(UpgradeCMD, []flags.Def[string]{
		{"upgrade-contract", "deployment.upgrade-contract", "", "Artifact name of the new implementation"},
	})
	UpgradeCMD.Flags().StringVar(&upgradeCall, "call", "", "Method to run on the new implementation during the upgrade")
	UpgradeCMD.Flags().StringSliceVar(&upgradeCallArgs, "call-arg", nil, "Argument of --call, repeated in order")

	VerifyCMD.Flags().StringVar(&targetAddress, "address", "", "Proxy address, defaults to the recorded deployment")
	ImplementationCMD.Flags().StringVar(&targetAddress, "address", "", "Proxy address, defaults to the recorded deployment")
}

func withService(ctx context.Context, cfg configs.Config, run func(*Service) error) error {
	_, network, err := cfg.Selected()
	if err != nil {
		return err
	}

	client, err := chain.Dial(ctx, network.URL)
	if err != nil {
		return err
	}
	defer client.Close()

	artifacts, err := contracts.LoadArtifacts(cfg.Solidity.ArtifactsDir)
	if err != nil {
		return fmt.Errorf("failed to load artifacts, run compile first: %w", err)
	}

	var api explorer.Explorer
	if cfg.Etherscan.APIKey != "" {
		api = explorer.NewClient(cfg.Etherscan, nil)
	}

	service, err := NewService(cfg, client, artifacts, api)
	if err != nil {
		return err
	}

	return run(service)
}

func parseAddress(raw string) (*common.Address, error) {
	if raw == "" {
		return nil, nil
	}
	if !common.IsHexAddress(raw) {
		return nil, fmt.Errorf("invalid address %q", raw)
	}

	address := common.HexToAddress(raw)
	return &address, nil
}
