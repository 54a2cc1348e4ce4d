package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/ui"
)

var dlqCmd = &cobra.Command{
	Use:     "dlq",
	Short:   "Inspect and replay dead-lettered events",
	GroupID: "events",
}

var dlqListCmd = &cobra.Command{
	Use:   "list <class>",
	Short: "List the dead-letter entries of a job class",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		class, ok := model.ParseJobClass(args[0])
		if !ok {
			return fmt.Errorf("unknown job class %q (want one of %v)", args[0], model.JobClasses)
		}
		limit, _ := cmd.Flags().GetInt("limit")

		events, err := apiClient.DeadLetters(context.Background(), class, limit)
		if err != nil {
			return fmt.Errorf("listing dead letters: %w", err)
		}
		if jsonOutput {
			return printJSON(events)
		}
		printEventListTable(os.Stdout, events)
		return nil
	},
}

var dlqReplayCmd = &cobra.Command{
	Use:   "replay <id>...",
	Short: "Reset FAILED events and enqueue them again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed int
		for _, id := range args {
			e, err := apiClient.ReplayEvent(context.Background(), id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error replaying %s: %v\n", id, err)
				failed++
				continue
			}
			if jsonOutput {
				if err := printJSON(e); err != nil {
					return err
				}
				continue
			}
			fmt.Printf("Replayed %s (%s)\n", ui.RenderAccent(e.ID), ui.RenderStatus(string(e.Status)))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d replays failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	dlqListCmd.Flags().Int("limit", 100, "maximum number of entries")

	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqReplayCmd)
}
