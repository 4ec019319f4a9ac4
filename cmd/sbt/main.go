package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/compose-network/soulbound-harness/configs"
	"github.com/compose-network/soulbound-harness/internal/check"
	"github.com/compose-network/soulbound-harness/internal/contracts"
	"github.com/compose-network/soulbound-harness/internal/deploy"
	"github.com/compose-network/soulbound-harness/internal/devnet"
	"github.com/compose-network/soulbound-harness/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName = "sbt"
	envFile = ".env"
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Deploy, verify, upgrade and check the soulbound token",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Initialize(slog.LevelInfo)

		if err := configs.LoadDotEnv(envFile); err != nil {
			return err
		}

		cfg, err := configs.Load(viper.GetViper())
		if err != nil {
			const errMsg = "unable to load application config"
			slog.With("err", err.Error()).Error(errMsg)
			return errors.Join(err, errors.New(errMsg))
		}

		level, err := logger.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		logger.InitializeWith(os.Stderr, level, cfg.Log.Format)

		if used := viper.ConfigFileUsed(); used != "" {
			slog.With("config_file", used).Debug("config file loaded")
		} else {
			slog.Debug("no config file found, relying on embedded defaults, environment and flags")
		}
		slog.With("network", string(cfg.Network)).Debug("configuration loaded")

		configs.Values = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("network", "", "Network to run against, a key under networks")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	_ = viper.BindPFlag("network", rootCmd.PersistentFlags().Lookup("network"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func main() {
	rootCmd.AddCommand(contracts.CMD)
	rootCmd.AddCommand(deploy.CMD)
	rootCmd.AddCommand(deploy.UpgradeCMD)
	rootCmd.AddCommand(deploy.VerifyCMD)
	rootCmd.AddCommand(deploy.ImplementationCMD)
	rootCmd.AddCommand(check.CMD)
	rootCmd.AddCommand(devnet.CMD)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		slog.With("err", err.Error()).Error("failed to execute root command")
		os.Exit(1)
	}
}
