package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show a job with its artifact history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := ctx.client().Describe(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				encoded, err := json.MarshalIndent(detail, "", "  ")
				if err != nil {
					return fmt.Errorf("encode job detail: %w", err)
				}
				fmt.Fprintln(out, string(encoded))
				return nil
			}

			job := detail.Job
			fmt.Fprintf(out, "Job:     %s\n", job.ID)
			fmt.Fprintf(out, "Status:  %s\n", job.Status)
			fmt.Fprintf(out, "Stage:   %s\n", dash(job.CurrentStage))
			if job.InputSpec != nil {
				fmt.Fprintf(out, "Source:  %s\n", job.InputSpec.SourceURL)
			}
			if job.Error != "" {
				fmt.Fprintf(out, "Error:   %s\n", job.Error)
			}
			fmt.Fprintf(out, "Created: %s\n", formatTimestamp(job.CreatedAt))
			fmt.Fprintf(out, "Updated: %s\n", formatTimestamp(job.UpdatedAt))

			if len(job.Attempts) > 0 {
				fmt.Fprintln(out)
				rows := make([][]string, 0, len(job.Attempts))
				for stageName, count := range job.Attempts {
					rows = append(rows, []string{stageName, strconv.Itoa(count)})
				}
				fmt.Fprintln(out, renderTable([]string{"Stage", "Attempts"}, rows, []columnAlignment{alignLeft, alignRight}))
			}

			if len(detail.Artifacts) == 0 {
				fmt.Fprintln(out, "\nNo artifacts yet")
				return nil
			}
			rows := make([][]string, 0, len(detail.Artifacts))
			for _, artifact := range detail.Artifacts {
				rows = append(rows, []string{
					artifact.Stage,
					artifact.Kind,
					strconv.Itoa(artifact.Version),
					artifact.Path,
					formatTimestamp(artifact.CreatedAt),
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"Stage", "Kind", "Version", "Path", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the raw JSON payload")
	return cmd
}
