package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"veracity/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		orgFlag       string
		priorityFlag  string
		widthFlag     int
		heightFlag    int
		hashFlag      string
		watermarkFlag bool
		upscaledFlag  bool
		originFlag    string
		mimeFlag      string
		forceFlag     bool
	)

	cmd := &cobra.Command{
		Use:   "submit <artifact-ref>",
		Short: "Submit an artifact for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			job, err := client.Submit(cmd.Context(), api.SubmitJobRequest{
				OrgID:           orgFlag,
				ArtifactRef:     args[0],
				Priority:        priorityFlag,
				Width:           widthFlag,
				Height:          heightFlag,
				PerceptualHash:  hashFlag,
				Watermark:       watermarkFlag,
				Upscaled:        upscaledFlag,
				OriginHash:      originFlag,
				MimeType:        mimeFlag,
				ForceEscalation: forceFlag,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %d (%s priority).\n", job.ID, job.Priority)
			return nil
		},
	}

	cmd.Flags().StringVar(&orgFlag, "org", "", "Owning organization id")
	cmd.Flags().StringVar(&priorityFlag, "priority", "", "Priority tier (urgent, high, normal, low)")
	cmd.Flags().IntVar(&widthFlag, "width", 0, "Artifact width in pixels")
	cmd.Flags().IntVar(&heightFlag, "height", 0, "Artifact height in pixels")
	cmd.Flags().StringVar(&hashFlag, "phash", "", "Hex-encoded 64-bit perceptual hash")
	cmd.Flags().BoolVar(&watermarkFlag, "watermark", false, "Watermark was detected at upload")
	cmd.Flags().BoolVar(&upscaledFlag, "upscaled", false, "Upscaling was detected at upload")
	cmd.Flags().StringVar(&originFlag, "origin", "", "Upload origin hash")
	cmd.Flags().StringVar(&mimeFlag, "mime", "", "Artifact MIME type")
	cmd.Flags().BoolVar(&forceFlag, "force-escalation", false, "Run the expensive stage regardless of the gate")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
