package check

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/soulbound-harness/configs"
	"github.com/compose-network/soulbound-harness/internal/chain"
	"github.com/compose-network/soulbound-harness/internal/contracts"
		"github.com/spf13/cobra"
)

var (
	CMD = &cobra.Command{
		Use:   "check",
		Short: "Run the token behaviour suite against the selected network",
		Long:  "Deploys a fresh V1 proxy for every case and asserts ownership, admin, mint, burn, transfer and upgrade behaviour of the token. Exits non-zero when any case fails",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.Values
			if err := cfg.ValidateCheck(); err != nil {
				return err
			}

			cases, err := Select(Cases(), runFilter)
			if err != nil {
				return err
			}
			if listOnly {
				for _, c := range cases {
					fmt.Fprintln(cmd.OutOrStdout(), c.FullName())
				}
				return nil
			}

			_, network, err := cfg.Selected()
			if err != nil {
				return err
			}

			client, err := chain.Dial(cmd.Context(), network.URL)
			if err != nil {
				return err
			}
			defer client.Close()

			artifacts, err := contracts.LoadArtifacts(cfg.Solidity.ArtifactsDir)
			if err != nil {
				return fmt.Errorf("failed to load artifacts, run compile first: %w", err)
			}

			fixture, err := NewNetworkFixture(cmd.Context(), cfg, client, artifacts)
			if err != nil {
				return err
			}

			report, err := NewRunner(fixture, cases).Run(cmd.Context())
			if err != nil {
				return err
			}

			printReport(cmd, report)
			if err := report.Err(); err != nil {
				return fmt.Errorf("%d of %d case(s) failed: %w", len(report.Failed()), len(report.Results), err)
			}

			slog.Info("all cases passed", "cases", len(report.Results))
			return nil
		},
	}

	runFilter string
	listOnly  bool
)

func init() {
	CMD.Flags().StringVar(&runFilter, "run", "", "Only run cases whose \"group/name\" matches this regular expression")
	CMD.Flags().BoolVar(&listOnly, "list", false, "List the selected cases without running them")
}

func printReport(cmd *cobra.Command, report Report) {
	out := cmd.OutOrStdout()
	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed() {
			status = "FAIL"
		}
		fmt.Fprintf(out, "--- %s: %s (%s)\n", status, result.Case, result.Duration.Round(time.Millisecond))
		if !result.Passed() {
			fmt.Fprintf(out, "    %v\n", result.Err)
		}
	}
}
