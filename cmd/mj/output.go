package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printEventTable(w io.Writer, e *model.Event) {
	fmt.Fprintf(w, "ID:          %s\n", e.ID)
	fmt.Fprintf(w, "Type:        %s\n", e.Type)
	fmt.Fprintf(w, "Class:       %s\n", e.Class)
	fmt.Fprintf(w, "Status:      %s\n", ui.RenderStatus(string(e.Status)))
	fmt.Fprintf(w, "Retries:     %d\n", e.RetryCount)
	if e.ResourceID != "" {
		fmt.Fprintf(w, "Resource:    %s\n", e.ResourceID)
	}
	if e.SourceAccountID != "" {
		fmt.Fprintf(w, "Account:     %s\n", e.SourceAccountID)
	}
	if e.LastError != "" {
		fmt.Fprintf(w, "Last Error:  %s\n", e.LastError)
	}
	if !e.ReceivedAt.IsZero() {
		fmt.Fprintf(w, "Received At: %s\n", e.ReceivedAt.Local().Format(timeLayout))
	}
	if !e.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated At:  %s\n", e.UpdatedAt.Local().Format(timeLayout))
	}
	if e.ProcessedAt != nil {
		fmt.Fprintf(w, "Processed:   %s\n", e.ProcessedAt.Local().Format(timeLayout))
	}
	if e.ReplayedAt != nil {
		fmt.Fprintf(w, "Replayed:    %s\n", e.ReplayedAt.Local().Format(timeLayout))
	}
	if len(e.Payload) > 0 {
		fmt.Fprintf(w, "Payload:     %s\n", e.Payload)
	}
}

func printEventListTable(out io.Writer, events []*model.Event) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTYPE\tRETRIES\tUPDATED\tLAST ERROR")
	for _, e := range events {
		lastErr := e.LastError
		if len(lastErr) > 50 {
			lastErr = lastErr[:47] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID,
			e.Status,
			e.Type,
			e.RetryCount,
			e.UpdatedAt.Local().Format(timeLayout),
			lastErr,
		)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d events\n", len(events))
}

func printQueuesTable(out io.Writer, stats []model.QueueStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLASS\tQUEUE\tDEPTH\tDEAD\tSTATUS COUNTS")
	for _, st := range stats {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			st.Class,
			st.Queue,
			st.Depth,
			ui.RenderCount(st.Dead),
			formatCounts(st.Counts),
		)
	}
	w.Flush()
}

// formatCounts renders status counts in lifecycle order, e.g.
// "PENDING=2 PROCESSED=10".
func formatCounts(counts map[model.Status]int) string {
	order := map[model.Status]int{
		model.StatusPending:    0,
		model.StatusProcessing: 1,
		model.StatusProcessed:  2,
		model.StatusFailed:     3,
	}
	keys := make([]model.Status, 0, len(counts))
	for st := range counts {
		keys = append(keys, st)
	}
	sort.Slice(keys, func(i, j int) bool { return order[keys[i]] < order[keys[j]] })

	parts := make([]string, 0, len(keys))
	for _, st := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", st, counts[st]))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
