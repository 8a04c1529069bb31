package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWebhooksCommand(ctx *commandContext) *cobra.Command {
	webhooksCmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Manage an organization's notification endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var secretFlag string
	addCmd := &cobra.Command{
		Use:   "add <org-id> <url>",
		Short: "Register a webhook endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.AddEndpoint(cmd.Context(), args[0], args[1], secretFlag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s for %s.\n", args[1], args[0])
			return nil
		},
	}
	addCmd.Flags().StringVar(&secretFlag, "secret", "", "HMAC signing secret for deliveries")

	listCmd := &cobra.Command{
		Use:   "list <org-id>",
		Short: "List an organization's endpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			endpoints, err := store.EndpointsForOrg(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(endpoints) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No endpoints registered.")
				return nil
			}

			rows := make([][]string, 0, len(endpoints))
			for _, endpoint := range endpoints {
				signed := "no"
				if endpoint.Secret != "" {
					signed = "yes"
				}
				rows = append(rows, []string{fmt.Sprint(endpoint.ID), endpoint.URL, signed})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]column{
					{name: "ID", numeric: true},
					{name: "URL", maxWidth: 72},
					{name: "Signed"},
				},
				rows,
			))
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <org-id> <url>",
		Short: "Remove a webhook endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.RemoveEndpoint(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintln(cmd.OutOrStdout(), "No such endpoint.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", args[1])
			return nil
		},
	}

	webhooksCmd.AddCommand(addCmd)
	webhooksCmd.AddCommand(listCmd)
	webhooksCmd.AddCommand(removeCmd)
	return webhooksCmd
}
