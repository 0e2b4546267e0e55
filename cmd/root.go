// Package cmd implements the glci CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wuchris/glci/internal/app"
	"github.com/wuchris/glci/internal/config"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	DataPath     string
	RegistryPath string
	Format       string
	Out          string
	Timeout      string
	Concurrency  int
	Rate         float64
	Quiet        bool
	Verbose      bool
	Debug        bool
}

// rootCmd is the base command. Running `glci` with no subcommand prints
// help.
var rootCmd = &cobra.Command{
	Use:   "glci",
	Short: "glci — Global Liquidity & Credit Index analytics pipeline",
	Long: `glci is a command-line tool for fetching macro-financial time series,
computing pillar factors and the composite Global Liquidity & Credit Index,
classifying liquidity regimes, and measuring regime-conditioned asset risk.

Data sourced from FRED, the World Bank, BIS, the NY Fed, and public market
prices, merged against a declarative series/index registry (series.yaml).

Quick start:
  glci config init             # create a config.json skeleton
  glci fetch --all --save      # pull every configured series
  glci compute --all --save    # fit pillars and the composite index
  glci show global_liquidity_credit_index`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the exit code documented in the external
// interfaces: 1 configuration/credential, 2 user input, 3 fetch exhausted.
func exitCodeFor(err error) int {
	switch {
	case isFetchExhausted(err):
		return 3
	case isUserInputError(err):
		return 2
	default:
		return 1
	}
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := config.Load(globalFlags.DataPath, globalFlags.RegistryPath)
	if err != nil {
		return nil, err
	}

	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.Timeout != "" {
		if d, err2 := time.ParseDuration(globalFlags.Timeout); err2 == nil {
			cfg.Timeout = d
		}
	}
	if globalFlags.Concurrency > 0 {
		cfg.Concurrency = globalFlags.Concurrency
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}

	return app.New(cfg)
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.DataPath, "data-path", "",
		"root of the raw/ and curated/ artifact trees (overrides env GLCI_DATA_PATH and config.json)")
	pf.StringVar(&globalFlags.RegistryPath, "registry", "",
		"path to the series/index registry YAML (overrides env GLCI_REGISTRY_PATH and config.json)")
	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"HTTP request timeout (e.g. 30s, 2m)")
	pf.IntVar(&globalFlags.Concurrency, "concurrency", 0,
		"max parallel requests for batch operations (default: 8)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max API requests per second per data source (default: 5.0)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show timing/coverage stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log HTTP requests and responses (API key redacted)")
}
