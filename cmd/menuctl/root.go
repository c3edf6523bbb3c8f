package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"example.com/dailymenu/internal/config"
	"example.com/dailymenu/internal/store/sqlite"
)

type rootOptions struct {
	dbPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "menuctl",
		Short:         "Manage a local daily menu store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", config.Load().SQLitePath, "Path to the SQLite store (MENU_SQLITE_PATH)")

	cmd.AddCommand(
		newSeedCmd(opts),
		newImportCmd(opts),
		newSuggestCmd(opts),
		newTokenCmd(),
	)
	return cmd
}

// open opens the store named by --db, creating the schema on first use.
func (o *rootOptions) open(ctx context.Context) (*sqlite.Store, error) {
	return sqlite.Open(ctx, o.dbPath)
}

func commandLogger(cmd *cobra.Command) *log.Logger {
	return log.New(cmd.ErrOrStderr(), "[menuctl] ", 0)
}
