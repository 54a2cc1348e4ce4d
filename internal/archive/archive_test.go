package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang/snappy"

	"github.com/alfredjeanlab/menujobs/internal/blob"
	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/store/memory"
)

func seed(t *testing.T, s *memory.Store, id string, fail bool) {
	t.Helper()
	ctx := context.Background()
	_, err := s.Ingest(ctx, &model.Event{
		ID:         id,
		Type:       model.TypePaymentFailed,
		Class:      model.ClassPayments,
		Payload:    json.RawMessage(`{"payment_id":"pay_1","order_id":"ord_1"}`),
		Status:     model.StatusPending,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !fail {
		return
	}
	if err := s.MarkProcessing(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkFailed(ctx, id, "order service down"); err != nil {
		t.Fatal(err)
	}
}

func nonEmptyLines(s string) []string {
	var result []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}

func TestExportJSONL_Empty(t *testing.T) {
	var buf bytes.Buffer
	n, err := ExportJSONL(context.Background(), memory.New(), model.EventFilter{}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 events, got %d", n)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}
	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != "1" || h.Type != "header" || h.EventCount != 0 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestExportJSONL_FailedOnlySortedByID(t *testing.T) {
	s := memory.New()
	seed(t, s, "evt_zzz", true)
	seed(t, s, "evt_aaa", true)
	seed(t, s, "evt_pending", false)

	var buf bytes.Buffer
	n, err := ExportJSONL(context.Background(), s, model.EventFilter{Status: []model.Status{model.StatusFailed}}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 events, got %d", n)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	var ids []string
	for _, line := range lines[1:] {
		var rec struct {
			Type string      `json:"type"`
			Data model.Event `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatal(err)
		}
		if rec.Type != "event" || rec.Data.Status != model.StatusFailed || rec.Data.LastError != "order service down" {
			t.Fatalf("unexpected record %+v", rec)
		}
		ids = append(ids, rec.Data.ID)
	}
	if ids[0] != "evt_aaa" || ids[1] != "evt_zzz" {
		t.Fatalf("events not sorted: %v", ids)
	}
}

func TestRunOnce_Plain(t *testing.T) {
	s := memory.New()
	seed(t, s, "evt_1", true)
	dest := blob.NewMemory()

	sched := NewScheduler(s, dest, Config{Prefix: "archive/failed"}, nil)
	sched.now = func() time.Time { return time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC) }

	key, n, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if key != "archive/failed/2026/10/19/failed-20261019T150405Z.jsonl" || n != 1 {
		t.Fatalf("RunOnce = %q, %d", key, n)
	}
	obj, err := dest.Get(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if obj.ContentType != contentTypeJSONL || len(nonEmptyLines(string(obj.Data))) != 2 {
		t.Fatalf("object %s: %s", obj.ContentType, obj.Data)
	}
}

func TestRunOnce_Snappy(t *testing.T) {
	s := memory.New()
	seed(t, s, "evt_1", true)
	dest := blob.NewMemory()

	sched := NewScheduler(s, dest, Config{Prefix: "archive", Snappy: true}, nil)
	key, _, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(key, ".jsonl.sz") {
		t.Fatalf("key = %q", key)
	}
	obj, err := dest.Get(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	plain, err := io.ReadAll(snappy.NewReader(bytes.NewReader(obj.Data)))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !strings.Contains(string(plain), `"id":"evt_1"`) {
		t.Fatalf("archive content: %s", plain)
	}
}

func TestRunOnce_NothingFailed(t *testing.T) {
	s := memory.New()
	seed(t, s, "evt_ok", false)
	dest := blob.NewMemory()

	key, n, err := NewScheduler(s, dest, Config{Prefix: "archive"}, nil).RunOnce(context.Background())
	if err != nil || key != "" || n != 0 {
		t.Fatalf("RunOnce = %q, %d, %v", key, n, err)
	}
	if len(dest.Keys()) != 0 {
		t.Fatalf("unexpected objects %v", dest.Keys())
	}
}

func TestSchedulerStartStop(t *testing.T) {
	s := memory.New()
	seed(t, s, "evt_1", true)
	dest := blob.NewMemory()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	sched := NewScheduler(s, dest, Config{Prefix: "archive", Interval: time.Hour}, logger)
	sched.Start()
	// Wait for the initial run.
	deadline := time.Now().Add(2 * time.Second)
	for len(dest.Keys()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sched.Stop()

	if len(dest.Keys()) != 1 {
		t.Fatalf("expected 1 archive object, got %v", dest.Keys())
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(memory.New(), blob.NewMemory(), Config{Interval: time.Minute}, nil)
	// Stop without Start should not panic.
	sched.Stop()
}
