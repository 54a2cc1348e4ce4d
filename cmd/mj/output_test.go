package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/ui"
)

func TestFormatCounts(t *testing.T) {
	tests := []struct {
		name   string
		counts map[model.Status]int
		want   string
	}{
		{"empty", nil, "-"},
		{"single", map[model.Status]int{model.StatusFailed: 1}, "FAILED=1"},
		{
			"lifecycle order",
			map[model.Status]int{
				model.StatusFailed:     1,
				model.StatusPending:    2,
				model.StatusProcessed:  10,
				model.StatusProcessing: 3,
			},
			"PENDING=2 PROCESSING=3 PROCESSED=10 FAILED=1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatCounts(tt.counts); got != tt.want {
				t.Errorf("formatCounts() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintEventListTable(t *testing.T) {
	events := []*model.Event{
		{ID: "evt_1", Type: "payment.confirmed", Status: model.StatusProcessed, UpdatedAt: time.Now()},
		{ID: "evt_2", Type: "payment.failed", Status: model.StatusFailed, RetryCount: 3,
			LastError: strings.Repeat("x", 80), UpdatedAt: time.Now()},
	}

	var buf bytes.Buffer
	printEventListTable(&buf, events)
	out := buf.String()

	for _, want := range []string{"ID", "STATUS", "evt_1", "evt_2", "FAILED", "...", "2 events"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 80)) {
		t.Error("long last error should be truncated")
	}
}

func TestPrintQueuesTable(t *testing.T) {
	ui.ForceNoColor()

	stats := []model.QueueStats{
		{Class: model.ClassPayments, Queue: "menujobs:payments", Depth: 4, Dead: 2,
			Counts: map[model.Status]int{model.StatusPending: 4}},
		{Class: model.ClassImages, Queue: "menujobs:images"},
	}

	var buf bytes.Buffer
	printQueuesTable(&buf, stats)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if f := strings.Fields(lines[1]); len(f) != 5 || f[0] != "payments" || f[2] != "4" || f[3] != "2" || f[4] != "PENDING=4" {
		t.Errorf("payments row = %q", lines[1])
	}
	if f := strings.Fields(lines[2]); f[len(f)-1] != "-" {
		t.Errorf("images row should show no counts, got %q", lines[2])
	}
}

func TestPrintEventTable(t *testing.T) {
	ui.ForceNoColor()

	var buf bytes.Buffer
	printEventTable(&buf, &model.Event{
		ID:         "evt_1",
		Type:       "payment.confirmed",
		Class:      model.ClassPayments,
		Status:     model.StatusPending,
		ResourceID: "pi_1",
		Payload:    []byte(`{"order_id":"ord_1"}`),
	})
	out := buf.String()
	for _, want := range []string{"evt_1", "payments", "PENDING", "pi_1", `"order_id"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Last Error") {
		t.Error("empty last error should be omitted")
	}
}

func TestDefaultWebhookSecret(t *testing.T) {
	t.Setenv("MENUJOBS_WEBHOOK_SECRET", "")
	t.Setenv("MENUJOBS_WEBHOOK_SECRETS", " whsec_new , whsec_old")
	if got := defaultWebhookSecret(); got != "whsec_new" {
		t.Errorf("defaultWebhookSecret() = %q, want whsec_new", got)
	}

	t.Setenv("MENUJOBS_WEBHOOK_SECRET", "whsec_cli")
	if got := defaultWebhookSecret(); got != "whsec_cli" {
		t.Errorf("defaultWebhookSecret() = %q, want whsec_cli", got)
	}
}

func TestGuessContentType(t *testing.T) {
	if got := guessContentType("menu.bin.unknownext"); got != "application/octet-stream" {
		t.Errorf("unknown extension = %q", got)
	}
	if got := guessContentType("menu.json"); !strings.HasPrefix(got, "application/json") {
		t.Errorf("json = %q", got)
	}
}
