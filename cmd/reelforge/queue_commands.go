package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the job queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))

	return queueCmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Requeue all failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			failed, err := client.List([]string{"failed"})
			if err != nil {
				return err
			}
			if len(failed.Jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No failed jobs")
				return nil
			}
			for _, job := range failed.Jobs {
				if _, err := client.Retry(job.ID); err != nil {
					return fmt.Errorf("retry %s: %w", job.ID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued job %s\n", job.ID)
			}
			return nil
		},
	}
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status()
			if err != nil {
				return err
			}
			counts := status.Queue
			if counts.Total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			rows := [][]string{
				{"queued", strconv.Itoa(counts.Queued)},
				{"running", strconv.Itoa(counts.Running)},
				{"awaiting_input", strconv.Itoa(counts.AwaitingInput)},
				{"completed", strconv.Itoa(counts.Completed)},
				{"failed", strconv.Itoa(counts.Failed)},
				{"cancelled", strconv.Itoa(counts.Cancelled)},
				{"total", strconv.Itoa(counts.Total)},
			}
			out := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().List(statuses)
			if err != nil {
				return err
			}
			if len(resp.Jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			out := renderTable(
				[]string{"ID", "Status", "Stage", "Source", "Created"},
				jobRows(resp.Jobs),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	return cmd
}
