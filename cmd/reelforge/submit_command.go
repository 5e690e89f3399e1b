package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var maxDuration int
	var subtitleMode string
	var aspectRatio string
	var imageStyle string
	var positive string
	var negative string
	var influences string

	cmd := &cobra.Command{
		Use:   "submit URL",
		Short: "Submit a podcast episode for reel generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Submit(api.SubmitRequest{
				SourceURL:        args[0],
				DurationSeconds:  maxDuration,
				SubtitleMode:     subtitleMode,
				AspectRatio:      aspectRatio,
				ImageStyle:       imageStyle,
				PositiveKeywords: positive,
				NegativeKeywords: negative,
				ArtistInfluences: influences,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted job %s\n", resp.Job.ID)
			fmt.Fprintf(out, "Track progress with `reelforge show %s`\n", resp.Job.ID)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxDuration, "max-duration", 0, "Reject episodes longer than this many seconds (0 uses the daemon default)")
	cmd.Flags().StringVar(&subtitleMode, "subtitles", "", "Subtitle mode: original, en, both, or none")
	cmd.Flags().StringVar(&aspectRatio, "aspect", "", "Aspect ratio: 9:16, 16:9, or 1:1")
	cmd.Flags().StringVar(&imageStyle, "style", "", "Image style, e.g. photorealistic or cartoon")
	cmd.Flags().StringVar(&positive, "positive", "", "Comma-separated keywords to emphasize in images")
	cmd.Flags().StringVar(&negative, "negative", "", "Comma-separated keywords to avoid in images")
	cmd.Flags().StringVar(&influences, "influences", "", "Artist influences for image prompts")
	return cmd
}
