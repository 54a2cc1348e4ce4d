package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var queuesCmd = &cobra.Command{
	Use:     "queues",
	Short:   "Show queue and dead-letter depths per job class",
	GroupID: "events",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := apiClient.ListQueues(context.Background())
		if err != nil {
			return fmt.Errorf("listing queues: %w", err)
		}
		if jsonOutput {
			return printJSON(stats)
		}
		printQueuesTable(os.Stdout, stats)
		return nil
	},
}
