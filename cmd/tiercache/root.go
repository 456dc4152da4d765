package main

import (
	"github.com/spf13/cobra"

	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/pkg/utils"
)

const (
	CmdServe     = "serve"
	CmdRecommend = "recommend"
	CmdConfig    = "config"
	FlagConfig   = "config"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "tiercache",
		Short: "Multi-tier adaptive cache coordinator",
		Long: `tiercache serves keyed artifacts such as text layout results from memory,
disk and a remote source, evicting under a configurable strategy.

QUICK START:
  tiercache config init tiercache.yaml    # Write the default configuration
  tiercache serve --config tiercache.yaml # Start the admin API
  tiercache recommend --kind frequent --frequency 20 my-key`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, FlagConfig, "c", "", "Configuration file (YAML)")

	root.AddCommand(
		newServeCmd(&configPath),
		newRecommendCmd(),
		newConfigCmd(&configPath),
	)
	return root
}

// newLogger builds the process logger from the global settings.
func newLogger(cfg *config.Configuration) (*utils.StructuredLogger, error) {
	level, err := utils.ParseLogLevel(cfg.Global.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := utils.ParseLogFormat(cfg.Global.LogFormat)
	if err != nil {
		return nil, err
	}

	lc := utils.DefaultStructuredLoggerConfig()
	lc.Level = level
	lc.Format = format
	if cfg.Global.LogFile != "" {
		lc.OutputPaths = []string{cfg.Global.LogFile}
	}
	return utils.NewStructuredLogger(lc)
}
