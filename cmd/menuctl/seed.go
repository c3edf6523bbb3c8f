package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/dailymenu/internal/seed"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE...",
		Short: "Load seed catalog files into the store",
		Long: `Load one or more seed catalog files (JSON or YAML) into the store.

Activities keep a stable id derived from their seed id, so loading the
same file twice inserts nothing the second time.

Examples:
  menuctl seed seeds/activities.yaml
  menuctl --db /tmp/menu.db seed a.json b.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			inserted, err := seed.NewLoader(store, commandLogger(cmd)).LoadFiles(ctx, args...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d new activities\n", inserted)
			return nil
		},
	}
}
