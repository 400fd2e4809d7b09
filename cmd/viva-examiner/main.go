// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the viva-examiner CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/viva-examiner/internal/examiner"
	"github.com/pdiddy/viva-examiner/internal/logging"
	"github.com/pdiddy/viva-examiner/internal/secrets"
	"github.com/pdiddy/viva-examiner/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is the resolved configuration, set before any subcommand runs.
	cfg types.Config

	logger = zap.NewNop()
)

// rootCmd is the base command for the viva-examiner CLI.
var rootCmd = &cobra.Command{
	Use:   "viva-examiner",
	Short: "Automated oral examinations over research papers",
	Long: `viva-examiner runs a viva over a research paper. It indexes the paper into a
versioned retrieval index, generates paper-specific questions, grades free-text
answers against retrieved evidence, and tracks each session to completion.

Typical flow: build, start, answer (repeat), summary.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		resolved, err := loadConfig()
		if err != nil {
			return err
		}

		s, err := secrets.Load(".secrets/", nil)
		if err != nil {
			return err
		}
		secrets.Apply(&resolved, s)
		applyProviderEnv(&resolved)
		cfg = resolved

		l, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		logger = l
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./viva-examiner.yaml or ~/.config/viva-examiner/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "console log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("index-dir", "", "base directory for retrieval indexes")
	rootCmd.PersistentFlags().String("store", "", "session store backend: sqlite, memory, redis")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("store.index_dir", rootCmd.PersistentFlags().Lookup("index-dir"))
	_ = viper.BindPFlag("store.backend", rootCmd.PersistentFlags().Lookup("store"))
}

func initConfig() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("viva-examiner")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "viva-examiner"))
		}
	}

	viper.SetEnvPrefix("VIVA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// openService builds the examiner for one command. The caller must Close it.
func openService(ctx context.Context) (*examiner.Service, error) {
	return examiner.New(ctx, cfg, logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", examiner.Describe(err))
		os.Exit(1)
	}
}
