package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and stage health",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			runningKind := statusError
			runningMsg := "stopped"
			if status.Running {
				runningKind = statusOK
				runningMsg = "running"
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", runningKind, runningMsg, colorize))
			fmt.Fprintln(out, renderStatusLine("Queue DB", statusInfo, status.QueueDBPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize))

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Queue", colorize) {
				fmt.Fprintln(out, line)
			}
			counts := status.Queue
			fmt.Fprintln(out, renderStatusLine("Queued", statusInfo, fmt.Sprintf("%d", counts.Queued), colorize))
			fmt.Fprintln(out, renderStatusLine("Running", statusInfo, fmt.Sprintf("%d", counts.Running), colorize))
			reviewKind := statusInfo
			if counts.AwaitingInput > 0 {
				reviewKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Awaiting review", reviewKind, fmt.Sprintf("%d", counts.AwaitingInput), colorize))
			failedKind := statusInfo
			if counts.Failed > 0 {
				failedKind = statusError
			}
			fmt.Fprintln(out, renderStatusLine("Failed", failedKind, fmt.Sprintf("%d", counts.Failed), colorize))
			fmt.Fprintln(out, renderStatusLine("Completed", statusInfo, fmt.Sprintf("%d", counts.Completed), colorize))

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Stages", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, stageHealth := range status.Stages {
				kind := statusOK
				message := "ready"
				if !stageHealth.Ready {
					kind = statusError
					message = stageHealth.Detail
					if message == "" {
						message = "not ready"
					}
				}
				fmt.Fprintln(out, renderStatusLine(stageHealth.Name, kind, message, colorize))
			}
			return nil
		},
	}
}
