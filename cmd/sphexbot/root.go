package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"sphexbot/internal/config"
	"sphexbot/internal/logging"
	"sphexbot/internal/version"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          version.AppName,
		Short:        "Chat bot that routes messages through a pipeline of processors",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.json", "Path to configuration file (.json, .yaml or .yml).")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log_level: debug|info|warn|error.")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Override log_format: text|json.")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newDispatchCmd(opts))
	cmd.AddCommand(newTasksCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// load reads the config and applies flag overrides. Logs go to w.
func (o *rootOptions) load(w io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	logger, err := logging.NewWithWriter(w, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
