package main

import (
	"context"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/app"
	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
)

const tokenCommandTimeout = 10 * time.Second

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Manage API tokens"}
	cmd.AddCommand(newTokenAddCommand())
	cmd.AddCommand(newTokenListCommand())
	return cmd
}

// withAuth loads the config, opens the token backend and runs fn against it.
func withAuth(cmd *cobra.Command, fn func(ctx context.Context, svc *auth.Service) error) error {
	configPath, _ := cmd.Flags().GetString("config")

	nop := zerolog.Nop()
	cfg, _, err := config.Load(&nop, configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), tokenCommandTimeout)
	defer cancel()

	rc, tokens, err := app.OpenStores(ctx, &cfg)
	if err != nil {
		return err
	}
	defer rc.Close()
	defer tokens.Close()

	return fn(ctx, auth.NewService(tokens, &nop))
}

func newTokenAddCommand() *cobra.Command {
	var req auth.IssueRequest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd, func(ctx context.Context, svc *auth.Service) error {
				token, err := svc.Issue(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "id:     %s\nname:   %s\nsecret: %s\n", token.ID, token.Name, token.Secret)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "display name of the API client (required)")
	cmd.Flags().StringVar(&req.ID, "id", "", "token id (generated when empty)")
	cmd.Flags().StringVar(&req.Secret, "secret", "", "token secret (generated when empty)")
	cmd.Flags().BoolVar(&req.Hash, "hash", false, "store a bcrypt hash of the secret")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newTokenListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered API tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd, func(ctx context.Context, svc *auth.Service) error {
				ids, err := svc.TokenIDs(ctx)
				if err != nil {
					return err
				}
				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader([]string{"ID", "Name"})
				table.SetAutoFormatHeaders(true)
				table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
				table.SetAlignment(tablewriter.ALIGN_LEFT)
				table.SetBorder(false)
				for _, id := range ids {
					table.Append([]string{id, svc.NameOf(ctx, id)})
				}
				table.Render()
				return nil
			})
		},
	}
}
