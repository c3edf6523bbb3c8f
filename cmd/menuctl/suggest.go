package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/dailymenu/internal/domain"
	"example.com/dailymenu/internal/suggest"
)

type suggestOptions struct {
	window  string
	energy  string
	context string
	count   int
	user    string
}

func newSuggestCmd(root *rootOptions) *cobra.Command {
	opts := &suggestOptions{}
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Draw activity suggestions from the local catalog",
		Long: `Draw activity suggestions matching a time window, energy level and
social context. Activities hidden by --user are never offered.

Examples:
  menuctl suggest
  menuctl suggest --window long --energy upForSomething --context withSomeone --count 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			window, err := suggest.ParseWindow(opts.window)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := root.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			hidden, err := domain.NewService(store).HiddenActivities(ctx, opts.user)
			if err != nil {
				return err
			}

			selector := suggest.NewSelector(store, suggest.WithLogger(commandLogger(cmd)))
			picks, err := selector.Select(ctx, suggest.Criteria{
				Window:  window,
				Energy:  domain.Energy(opts.energy),
				Context: domain.SocialContext(opts.context),
				Count:   opts.count,
				Hidden:  hidden,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(picks) == 0 {
				fmt.Fprintf(out, "nothing on the menu for %s\n", window)
				return nil
			}
			for _, a := range picks {
				fmt.Fprintf(out, "%-10s %3d min  %s\n", a.Category, a.ExpectedMinutes, a.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.window, "window", "short", "Time window: short, medium or long")
	cmd.Flags().StringVar(&opts.energy, "energy", string(domain.EnergyOkay), "Energy level: low, okay or upForSomething")
	cmd.Flags().StringVar(&opts.context, "context", string(domain.ContextSolo), "Social context: solo or withSomeone")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 3, "Number of suggestions")
	cmd.Flags().StringVar(&opts.user, "user", "local", "User whose hidden activities are excluded")
	return cmd
}
