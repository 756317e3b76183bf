package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/config"
)

// defaultConfigPath is used when neither --config nor GRAYLOGIC_UA_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "graylogic-ua",
		Short:         "Gray Logic UA - capability module host",
		Long:          "Loads capability modules into an address space and serves it over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default $GRAYLOGIC_UA_CONFIG or "+defaultConfigPath+")")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewModulesCommand(opts))
	cmd.AddCommand(NewParamCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewDBCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// configPath returns the flag value, then GRAYLOGIC_UA_CONFIG, then the default.
func (o *RootOptions) configPath() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	if path := os.Getenv("GRAYLOGIC_UA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads and validates the configuration file.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graylogic-ua %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
