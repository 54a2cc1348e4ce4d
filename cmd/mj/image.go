package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/menujobs/internal/client"
)

var imageCmd = &cobra.Command{
	Use:     "image",
	Short:   "Request image processing jobs",
	GroupID: "jobs",
}

var imageVariantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "Request resized variants of an uploaded image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		imageID, _ := cmd.Flags().GetString("image-id")
		sourceKey, _ := cmd.Flags().GetString("source-key")
		widths, _ := cmd.Flags().GetIntSlice("widths")

		res, err := apiClient.SubmitImageJob(context.Background(), &client.ImageJobRequest{
			ID:        id,
			ImageID:   imageID,
			SourceKey: sourceKey,
			Widths:    widths,
		})
		if err != nil {
			return fmt.Errorf("submitting image job: %w", err)
		}
		return printIngestResult(res)
	},
}

func init() {
	imageVariantsCmd.Flags().String("image-id", "", "image identifier (required)")
	imageVariantsCmd.Flags().String("source-key", "", "blob key of the original image (required)")
	imageVariantsCmd.Flags().IntSlice("widths", []int{320, 640, 1280}, "variant widths in pixels")
	imageVariantsCmd.Flags().String("id", "", "event id, makes the request idempotent (default: generated)")
	_ = imageVariantsCmd.MarkFlagRequired("image-id")
	_ = imageVariantsCmd.MarkFlagRequired("source-key")

	imageCmd.AddCommand(imageVariantsCmd)
}
