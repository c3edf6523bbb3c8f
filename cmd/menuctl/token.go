package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"example.com/dailymenu/internal/auth"
	"example.com/dailymenu/internal/config"
)

var tokenNow = time.Now

func newTokenCmd() *cobra.Command {
	var (
		scopes string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token USER",
		Short: "Mint a development bearer token for the menu API",
		Long: `Mint an HS256 token signed with JWT_SECRET and JWT_ISSUER for USER.
Intended for local development against cmd/api.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			token, err := auth.Issue(
				auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
				args[0],
				strings.Split(scopes, ","),
				ttl,
				tokenNow(),
			)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&scopes, "scopes", strings.Join([]string{auth.ScopeMenuRead, auth.ScopeMenuWrite, auth.ScopeSyncWrite}, ","), "Comma separated scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
