// Package main implements the insightd CLI: batch ingestion, recomputation,
// and queries against the behavioral-inference store.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/config"
	"github.com/fyrsmithlabs/insightd/internal/logging"
	"github.com/fyrsmithlabs/insightd/internal/services"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

var (
	configPath string
	normsPath  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "insightd",
	Short: "Behavioral inference engine",
	Long: `insightd turns cross-platform behavioral evidence into
population-normalized trait scores, temporal behavioral patterns, and life
contexts. Commands operate directly on the configured store.`,
	Version:      version + " (" + gitCommit + ")",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/insightd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&normsPath, "norms", "", "population norms JSON file (merged over built-in norms)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(scoresCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(contextsCmd)
	rootCmd.AddCommand(dismissCmd)
	rootCmd.AddCommand(watchCmd)
}

// setup loads config and builds the service registry. Callers own the
// returned registry and must Close it.
func setup() (services.Registry, *config.Config, *zap.Logger, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	reg, err := services.NewRegistry(cfg, logger, services.Options{NormsPath: normsPath})
	if err != nil {
		return nil, nil, nil, err
	}
	return reg, cfg, logger, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
