package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
)

// ModulesOptions holds flags for the modules command.
type ModulesOptions struct {
	*RootOptions
	JSON bool
}

// NewModulesCommand creates the modules command.
func NewModulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ModulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List the capability modules that serve would load",
		Long: `List the capability modules found by the builtin loader and, when
enabled, the Lua loader. Builtins excluded by modules.enabled are not listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModules(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print JSON instead of a table")

	return cmd
}

func runModules(cmd *cobra.Command, opts *ModulesOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	registry := plugin.NewRegistry(logging.New(cfg.Logging, version), buildLoaders(cfg)...)
	candidates, err := registry.Discover()
	if err != nil {
		return fmt.Errorf("discovering modules: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(candidates)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLOADER\tSOURCE")
	for _, c := range candidates {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Loader, c.Source)
	}
	return tw.Flush()
}
