// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the refine CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/reference-refine/internal/config"
	"github.com/pdiddy/reference-refine/internal/secrets"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// cfg is loaded once per invocation in PersistentPreRunE.
var cfg *types.Config

// rootCmd is the base command for the refine CLI.
var rootCmd = &cobra.Command{
	Use:   "refine",
	Short: "Find and curate authoritative URLs for bibliographic references",
	Long: `refine maintains a working file of numbered bibliographic references and
finds authoritative URLs for each one. It generates search queries, retrieves
and ranks candidates, and lets an operator choose and finalize a primary and
secondary URL. Finalized references are also written to a clean final file.

The run command processes the whole file in checkpointed batches; the other
commands inspect or edit single references.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		if len(s) > 0 {
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", s.Keys())
		}

		cfgFile, _ := cmd.Flags().GetString("config")
		c, err := config.Load(cfgFile, s)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./refine.yaml or ~/.config/refine/refine.yaml)")
}

func main() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
