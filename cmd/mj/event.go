package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/menujobs/internal/client"
)

var eventCmd = &cobra.Command{
	Use:     "event",
	Short:   "Inspect recorded events",
	GroupID: "events",
}

var eventShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := apiClient.GetEvent(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting event: %w", err)
		}
		if jsonOutput {
			return printJSON(e)
		}
		printEventTable(os.Stdout, e)
		return nil
	},
}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetStringSlice("status")
		types, _ := cmd.Flags().GetStringSlice("type")
		classes, _ := cmd.Flags().GetStringSlice("class")
		limit, _ := cmd.Flags().GetInt("limit")

		events, err := apiClient.ListEvents(context.Background(), &client.ListEventsRequest{
			Status: status,
			Type:   types,
			Class:  classes,
			Limit:  limit,
		})
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		if jsonOutput {
			return printJSON(events)
		}
		printEventListTable(os.Stdout, events)
		return nil
	},
}

func init() {
	eventListCmd.Flags().StringSliceP("status", "s", nil, "filter by status (PENDING, PROCESSING, PROCESSED, FAILED)")
	eventListCmd.Flags().StringSliceP("type", "t", nil, "filter by event type")
	eventListCmd.Flags().StringSliceP("class", "c", nil, "filter by job class")
	eventListCmd.Flags().Int("limit", 50, "maximum number of events")

	eventCmd.AddCommand(eventShowCmd)
	eventCmd.AddCommand(eventListCmd)
}
