package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the local perceptual-hash duplicate catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var labelFlag string
	var flaggedFlag bool
	addCmd := &cobra.Command{
		Use:   "add <phash>",
		Short: "Register a hex-encoded 64-bit perceptual hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.AddCatalogHash(cmd.Context(), args[0], labelFlag, flaggedFlag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cataloged hash %s.\n", args[0])
			return nil
		},
	}
	addCmd.Flags().StringVar(&labelFlag, "label", "", "Human-readable label for the hash")
	addCmd.Flags().BoolVar(&flaggedFlag, "flagged", false, "Mark the hash as a known-bad artifact")

	var maxDistanceFlag int
	lookupCmd := &cobra.Command{
		Use:   "lookup <phash>",
		Short: "Find catalog entries near a perceptual hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			matches, err := store.NearestHashes(cmd.Context(), args[0], maxDistanceFlag)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
				return nil
			}

			rows := make([][]string, 0, len(matches))
			for _, match := range matches {
				flagged := ""
				if match.Entry.Flagged {
					flagged = "yes"
				}
				rows = append(rows, []string{
					match.Entry.PHash,
					fmt.Sprint(match.Distance),
					match.Entry.Label,
					flagged,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]column{
					{name: "Hash"},
					{name: "Distance", numeric: true},
					{name: "Label", maxWidth: 40},
					{name: "Flagged"},
				},
				rows,
			))
			return nil
		},
	}
	lookupCmd.Flags().IntVar(&maxDistanceFlag, "max-distance", 16, "Maximum Hamming distance")

	catalogCmd.AddCommand(addCmd)
	catalogCmd.AddCommand(lookupCmd)
	return catalogCmd
}
