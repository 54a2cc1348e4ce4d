package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// startTestJetStream starts an embedded NATS server with JetStream enabled
// and returns its client URL.
func startTestJetStream(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func newTestNATS(t *testing.T) *NATS {
	t.Helper()
	q, err := NewNATS(context.Background(), NATSConfig{URL: startTestJetStream(t), Stream: "TEST"})
	if err != nil {
		t.Fatalf("NewNATS: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestNATS_ImplementsTransport(t *testing.T) {
	var _ Transport = (*NATS)(nil)
}

func TestNATS_Subject(t *testing.T) {
	n := &NATS{prefix: "menujobs"}
	if got := n.subject("menujobs:payments"); got != "menujobs.queue.menujobs_payments" {
		t.Errorf("subject = %q", got)
	}
	if got := n.subject("menujobs:payments:dead"); got != "menujobs.dead.menujobs_payments" {
		t.Errorf("dead subject = %q", got)
	}
	if got := n.subject("menujobs:menu_import"); got != "menujobs.queue.menujobs_menu-5Fimport" {
		t.Errorf("subject = %q", got)
	}
}

func TestToken_Distinct(t *testing.T) {
	names := []string{
		"menujobs:a.b", "menujobs:a_b", "menujobs:a:b", "menujobs:a-b",
		"menujobs:a b", "menujobs:a*b", "menujobs:a>b", "menujobs_a:b",
		"menujobs:a-5Fb", "menujobs:a-2Eb",
	}
	seen := make(map[string]string)
	for _, name := range names {
		tok := token(name)
		if prev, ok := seen[tok]; ok {
			t.Errorf("token(%q) = token(%q) = %q", name, prev, tok)
		}
		seen[tok] = name
		for _, bad := range []string{".", "*", ">", " ", ":"} {
			if strings.Contains(tok, bad) {
				t.Errorf("token(%q) = %q contains %q", name, tok, bad)
			}
		}
	}
}

func TestNATS_SimilarNamesAreSeparateQueues(t *testing.T) {
	ctx := context.Background()
	q := newTestNATS(t)

	if err := q.Enqueue(ctx, "menujobs:a.b", "evt_dot"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, "menujobs:a_b", "evt_underscore"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	for name, want := range map[string]string{"menujobs:a.b": "evt_dot", "menujobs:a_b": "evt_underscore"} {
		if n, err := q.Len(ctx, name); err != nil || n != 1 {
			t.Errorf("Len(%s) = (%d, %v), want 1", name, n, err)
		}
		got, err := q.Dequeue(ctx, name, 2*time.Second)
		if err != nil || got != want {
			t.Errorf("Dequeue(%s) = (%q, %v), want %q", name, got, err, want)
		}
	}
}

func TestNATS_EnqueueDequeue(t *testing.T) {
	ctx := context.Background()
	q := newTestNATS(t)

	for _, id := range []string{"evt_1", "evt_2"} {
		if err := q.Enqueue(ctx, "menujobs:payments", id); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if n, err := q.Len(ctx, "menujobs:payments"); err != nil || n != 2 {
		t.Fatalf("Len = (%d, %v), want 2", n, err)
	}

	for _, want := range []string{"evt_1", "evt_2"} {
		got, err := q.Dequeue(ctx, "menujobs:payments", 3*time.Second)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if got != want {
			t.Errorf("Dequeue = %q, want %q", got, want)
		}
	}
}

func TestNATS_DequeueTimeout(t *testing.T) {
	q := newTestNATS(t)
	_, err := q.Dequeue(context.Background(), "menujobs:images", 200*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestNATS_DequeueCancel(t *testing.T) {
	q := newTestNATS(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx, "menujobs:images", Forever)
		errCh <- err
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not unblock Dequeue")
	}
}

func TestNATS_DeadLetters(t *testing.T) {
	ctx := context.Background()
	q := newTestNATS(t)

	for _, id := range []string{"evt_7", "evt_8"} {
		if err := q.DeadLetter(ctx, "menujobs:menu_import", id); err != nil {
			t.Fatalf("DeadLetter: %v", err)
		}
	}

	if n, err := q.Len(ctx, DeadLetterName("menujobs:menu_import")); err != nil || n != 2 {
		t.Fatalf("dead Len = (%d, %v), want 2", n, err)
	}
	if n, _ := q.Len(ctx, "menujobs:menu_import"); n != 0 {
		t.Errorf("live Len = %d, want 0", n)
	}

	ids, err := q.DeadLetters(ctx, "menujobs:menu_import", 10)
	if err != nil {
		t.Fatalf("DeadLetters: %v", err)
	}
	if len(ids) != 2 || ids[0] != "evt_7" || ids[1] != "evt_8" {
		t.Errorf("DeadLetters = %v", ids)
	}
	// Reading does not remove.
	if n, _ := q.Len(ctx, DeadLetterName("menujobs:menu_import")); n != 2 {
		t.Errorf("dead Len after read = %d, want 2", n)
	}
}
