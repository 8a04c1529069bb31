package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"veracity/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage analysis jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsOverrideCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			jobs, err := client.ListJobs(cmd.Context(), statusFlag...)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					fmt.Sprint(job.ID),
					job.Class,
					job.OrgID,
					displayLabel(job.Priority),
					colorStatus(job.Status),
					displayLabel(job.Stage),
					fmt.Sprint(job.Attempts),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]column{
					{name: "ID", numeric: true},
					{name: "Class"},
					{name: "Org"},
					{name: "Priority"},
					{name: "Status"},
					{name: "Stage"},
					{name: "Attempts", numeric: true},
				},
				rows,
			))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statusFlag, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job with its evidence and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			detail, err := client.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			job := detail.Job
			fmt.Fprintf(out, "Job %d (%s, org %s)\n", job.ID, job.Class, job.OrgID)
			fmt.Fprintf(out, "  Status:   %s", displayLabel(job.Status))
			if job.Stage != "" {
				fmt.Fprintf(out, " / %s", displayLabel(job.Stage))
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Priority: %s, attempts %d\n", displayLabel(job.Priority), job.Attempts)
			if job.ArtifactRef != "" {
				fmt.Fprintf(out, "  Artifact: %s\n", job.ArtifactRef)
			}
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "  Error:    %s\n", job.ErrorMessage)
			}

			if len(detail.Evidence) > 0 {
				rows := make([][]string, 0, len(detail.Evidence))
				for _, ev := range detail.Evidence {
					rows = append(rows, []string{
						ev.Adapter,
						ev.Factor,
						displayLabel(ev.Outcome),
						fmt.Sprintf("%dms", ev.LatencyMS),
						ev.Reason,
					})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(
					[]column{
						{name: "Adapter"},
						{name: "Factor"},
						{name: "Outcome"},
						{name: "Latency", numeric: true},
						{name: "Reason", maxWidth: 60},
					},
					rows,
				))
			}

			if detail.Result != nil {
				printResult(cmd, detail.Result)
			}
			if detail.Ticket != nil {
				t := detail.Ticket
				fmt.Fprintf(out, "\nReview ticket %d: %s priority, %s, SLA %s\n",
					t.ID, displayLabel(t.Priority), displayLabel(t.State), t.SLADeadline)
			}
			return nil
		},
	}
}

func printResult(cmd *cobra.Command, res *api.ResultView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nVerdict: %s (score %d, confidence %d)\n",
		colorVerdict(res.Verdict), res.Score, res.Confidence)
	if res.Partial {
		fmt.Fprintf(out, "  Partial analysis: %s\n", res.PartialReason)
	}
	if res.Override != nil {
		fmt.Fprintf(out, "  Overridden to %s by %s: %s\n",
			colorVerdict(res.Override.Verdict), res.Override.Actor, res.Override.Reason)
	}

	rows := make([][]string, 0, 4)
	for _, factor := range []string{"provenance", "visual", "manipulation", "identity"} {
		rows = append(rows, []string{
			displayLabel(factor),
			fmt.Sprint(res.Scores[factor]),
			fmt.Sprintf("%.3f", res.Weights[factor]),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]column{
			{name: "Factor"},
			{name: "Score", numeric: true},
			{name: "Weight", numeric: true},
		},
		rows,
	))

	for _, risk := range res.RiskFactors {
		fmt.Fprintf(out, "  ! %s\n", risk)
	}
	for _, positive := range res.PositiveIndicators {
		fmt.Fprintf(out, "  + %s\n", positive)
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := client.Cancel(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %d cancelled.\n", id)
			return nil
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Requeue a terminal job for re-analysis (forces escalation)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			job, err := client.Retry(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %d requeued as job %d.\n", id, job.ID)
			return nil
		},
	}
}

func newJobsOverrideCommand(ctx *commandContext) *cobra.Command {
	var verdictFlag, actorFlag, reasonFlag string

	cmd := &cobra.Command{
		Use:   "override <job-id>",
		Short: "Apply an admin override to a job's verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			result, err := client.Override(cmd.Context(), id, api.OverrideRequest{
				Verdict: verdictFlag,
				Actor:   actorFlag,
				Reason:  reasonFlag,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Verdict overridden: %s -> %s\n",
				displayLabel(result.Override.PriorVerdict), colorVerdict(result.Override.Verdict))
			return nil
		},
	}
	cmd.Flags().StringVar(&verdictFlag, "verdict", "", "New verdict (genuine, suspicious, fake)")
	cmd.Flags().StringVar(&actorFlag, "actor", "", "Administrator identifier")
	cmd.Flags().StringVar(&reasonFlag, "reason", "", "Override justification")
	_ = cmd.MarkFlagRequired("verdict")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func parseJobID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", value)
	}
	return id, nil
}
