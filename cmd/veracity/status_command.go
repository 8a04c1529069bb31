package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			running := "stopped"
			if status.Running {
				running = fmt.Sprintf("running (pid %d)", status.PID)
			}
			dbState := "healthy"
			if !status.DatabaseHealthy {
				dbState = "unhealthy"
				if status.DatabaseDetail != "" {
					dbState += ": " + status.DatabaseDetail
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:       %s\n", running)
			fmt.Fprintf(out, "Database:     %s (%s)\n", dbState, status.QueueDBPath)
			fmt.Fprintf(out, "Open tickets: %d\n", status.OpenTickets)

			if len(status.JobCounts) > 0 {
				keys := make([]string, 0, len(status.JobCounts))
				for key := range status.JobCounts {
					keys = append(keys, key)
				}
				sort.Strings(keys)

				rows := make([][]string, 0, len(keys))
				for _, key := range keys {
					rows = append(rows, []string{displayLabel(key), fmt.Sprint(status.JobCounts[key])})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(
					[]column{
						{name: "Status"},
						{name: "Jobs", numeric: true},
					},
					rows,
				))
			}
			return nil
		},
	}
}
