package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"reelforge/internal/daemon"
)

func newScenesCommand(ctx *commandContext) *cobra.Command {
	scenesCmd := &cobra.Command{
		Use:   "scenes",
		Short: "Inspect and edit a parked scene plan",
	}

	scenesCmd.AddCommand(newScenesShowCommand(ctx))
	scenesCmd.AddCommand(newScenesEditCommand(ctx))

	return scenesCmd
}

func newScenesShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show the editable scene plan for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := ctx.client().Describe(args[0])
			if err != nil {
				return err
			}
			spec := detail.Job.EditableSpec
			if spec == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Job has no scene plan yet")
				return nil
			}
			out := cmd.OutOrStdout()
			if asJSON {
				encoded, err := json.MarshalIndent(spec, "", "  ")
				if err != nil {
					return fmt.Errorf("encode scene plan: %w", err)
				}
				fmt.Fprintln(out, string(encoded))
				return nil
			}

			fmt.Fprintf(out, "Style:      %s\n", dash(spec.ImageStyle))
			fmt.Fprintf(out, "Positive:   %s\n", dash(spec.PositiveKeywords))
			fmt.Fprintf(out, "Negative:   %s\n", dash(spec.NegativeKeywords))
			fmt.Fprintf(out, "Influences: %s\n", dash(spec.ArtistInfluences))
			fmt.Fprintln(out)

			rows := make([][]string, 0, len(spec.Scenes))
			for _, scene := range spec.Scenes {
				rows = append(rows, []string{
					strconv.Itoa(scene.Index),
					fmt.Sprintf("%.1fs-%.1fs", scene.Start, scene.End),
					truncate(scene.Text, 44),
					truncate(scene.Prompt, 44),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Window", "Text", "Prompt"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the raw JSON scene plan")
	return cmd
}

func newScenesEditCommand(ctx *commandContext) *cobra.Command {
	var planFile string
	var imageStyle string
	var positive string
	var negative string
	var influences string

	cmd := &cobra.Command{
		Use:   "edit JOB_ID",
		Short: "Apply edits to a scene plan awaiting input",
		Long: "Apply edits to a parked job's scene plan. Scene text and prompts come from a JSON\n" +
			"file written by `reelforge scenes show --json`; style fields can be set with flags.\n" +
			"Scene timing and count are fixed by the transcript and cannot be changed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := daemon.UpdateScenesRequest{
				ImageStyle:       imageStyle,
				PositiveKeywords: positive,
				NegativeKeywords: negative,
				ArtistInfluences: influences,
			}
			if planFile != "" {
				data, err := os.ReadFile(planFile)
				if err != nil {
					return fmt.Errorf("read scene plan: %w", err)
				}
				trimmed := bytes.TrimSpace(data)
				if len(trimmed) > 0 && trimmed[0] == '[' {
					// A bare scenes array is accepted as well as a full plan object.
					req.Scenes = json.RawMessage(trimmed)
				} else {
					var plan struct {
						Scenes json.RawMessage `json:"scenes"`
					}
					if err := json.Unmarshal(trimmed, &plan); err != nil {
						return fmt.Errorf("parse scene plan: %w", err)
					}
					req.Scenes = plan.Scenes
				}
			}

			resp, err := ctx.client().UpdateScenes(args[0], req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Updated scene plan for job %s\n", resp.Job.ID)
			fmt.Fprintf(out, "Resume processing with `reelforge resume %s`\n", resp.Job.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&planFile, "file", "f", "", "JSON file with edited scenes")
	cmd.Flags().StringVar(&imageStyle, "style", "", "Image style override")
	cmd.Flags().StringVar(&positive, "positive", "", "Keywords to emphasize in images")
	cmd.Flags().StringVar(&negative, "negative", "", "Keywords to avoid in images")
	cmd.Flags().StringVar(&influences, "influences", "", "Artist influences for image prompts")
	return cmd
}
