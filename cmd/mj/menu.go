package main

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/menujobs/internal/client"
)

var menuCmd = &cobra.Command{
	Use:     "menu",
	Short:   "Import restaurant menus",
	GroupID: "jobs",
}

var menuUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a menu file for import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		restaurant, _ := cmd.Flags().GetString("restaurant")
		contentType, _ := cmd.Flags().GetString("content-type")

		data, err := readInput(args[0])
		if err != nil {
			return err
		}

		filename := "menu"
		if args[0] != "-" {
			filename = filepath.Base(args[0])
		}
		if contentType == "" {
			contentType = guessContentType(filename)
		}

		res, err := apiClient.UploadMenu(context.Background(), &client.UploadMenuRequest{
			RestaurantID: restaurant,
			Filename:     filename,
			ContentType:  contentType,
			Data:         data,
		})
		if err != nil {
			return fmt.Errorf("uploading menu: %w", err)
		}
		return printIngestResult(res)
	},
}

// guessContentType maps a file extension to a media type, defaulting to
// application/octet-stream.
func guessContentType(filename string) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func init() {
	menuUploadCmd.Flags().String("restaurant", "", "restaurant id (required)")
	menuUploadCmd.Flags().String("content-type", "", "media type of the file (default: from extension)")
	_ = menuUploadCmd.MarkFlagRequired("restaurant")

	menuCmd.AddCommand(menuUploadCmd)
}
