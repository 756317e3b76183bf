package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/params"
)

// NewParamCommand creates the param command and its subcommands.
func NewParamCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "param",
		Short: "Read or change persistent parameters",
		Long: `Read or change the parameters kept in the params file.

Port is applied at the next start. Run param set while serve is stopped;
the params file is locked by a running server.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [name]",
		Short: "Print one parameter, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openParams(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				v, err := store.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, v)
				return nil
			}

			all, err := store.All()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(all))
			for name := range all {
				names = append(names, name)
			}
			sort.Strings(names)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVALUE")
			for _, name := range names {
				fmt.Fprintf(tw, "%s\t%d\n", name, all[name])
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name> <value>",
		Short: "Validate and store a parameter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openParams(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
			return nil
		},
	})

	return cmd
}

func openParams(opts *RootOptions) (*params.Store, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := params.Open(cfg.Params.Path)
	if err != nil {
		return nil, fmt.Errorf("opening params: %w", err)
	}
	return store, nil
}
