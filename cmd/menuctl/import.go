package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/dailymenu/internal/seed"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import an activity from a saved AI response",
		Long: `Parse a text file holding an AI assistant's answer and add the
activity it describes. The answer may contain a JSON object or labelled
lines (Activity:, Description:, Time:). Titles already in the store are
skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			parsed, err := seed.ParseAIResponse(string(raw))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			ctx := cmd.Context()
			store, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := seed.NewImporter(store, commandLogger(cmd)).Import(ctx, parsed)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, a := range result.Imported {
				fmt.Fprintf(out, "imported %q (%d min, %s)\n", a.Title, a.ExpectedMinutes, a.Category)
			}
			for _, title := range result.Skipped {
				fmt.Fprintf(out, "skipped %q: already in the catalog\n", title)
			}
			return nil
		},
	}
}
