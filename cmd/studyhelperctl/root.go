package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"studyhelper/internal/util"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "studyhelperctl",
	Short: "Operator tooling for StudyHelper",
	Long: `studyhelperctl runs maintenance tasks against the StudyHelper store and
processing queue. It reads the same config.yaml as the api service.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to the api config file")
}

// setup loads the config and initialises logging for a subcommand.
func setup() (cliConfig, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return cliConfig{}, err
	}
	util.InitLogger(cfg.LogLevel)
	return cfg, nil
}
