package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/menujobs/internal/blob"
	"github.com/alfredjeanlab/menujobs/internal/events"
	"github.com/alfredjeanlab/menujobs/internal/ingest"
	"github.com/alfredjeanlab/menujobs/internal/ingest/webhookauth"
	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/queue"
	"github.com/alfredjeanlab/menujobs/internal/store/memory"
)

const testSecret = "whsec_test"

type testEnv struct {
	srv     *Server
	store   *memory.Store
	queue   *queue.Memory
	blobs   *blob.Memory
	handler http.Handler
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	return newTestServerWith(t, Deps{Verifier: webhookauth.NewVerifier([]string{testSecret})}, "")
}

func newTestServerWith(t *testing.T, deps Deps, token string) *testEnv {
	t.Helper()
	env := &testEnv{store: memory.New(), queue: queue.NewMemory(), blobs: blob.NewMemory()}
	deps.Store = env.store
	deps.Queue = env.queue
	deps.Blobs = env.blobs
	deps.Ingestor = ingest.New(env.store, env.queue, nil, nil)
	env.srv = New(deps)
	env.handler = env.srv.NewHTTPHandler(token)
	return env
}

func (env *testEnv) do(t *testing.T, method, target string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) depth(t *testing.T, name string) int {
	t.Helper()
	n, err := env.queue.Len(context.Background(), name)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func signed(body []byte) http.Header {
	ts, sig := webhookauth.Sign(testSecret, time.Now(), body)
	h := http.Header{}
	h.Set(webhookauth.TimestampHeader, ts)
	h.Set(webhookauth.SignatureHeader, sig)
	h.Set("Content-Type", "application/json")
	return h
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

const webhookBody = `{"id":"evt_pay_1","type":"payment.confirmed","account":"acct_9","data":{"payment_id":"pay_1","order_id":"ord_1","amount_minor":1250,"currency":"EUR"}}`

func TestPaymentWebhook_IngestsOnceAndDedups(t *testing.T) {
	env := newTestServer(t)
	body := []byte(webhookBody)

	rec := env.do(t, http.MethodPost, "/v1/webhooks/payments", body, signed(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[IngestResponse](t, rec)
	if resp.ID != "evt_pay_1" || !resp.IsNew || resp.Class != model.ClassPayments {
		t.Fatalf("unexpected response %+v", resp)
	}

	e, err := env.store.GetEvent(context.Background(), "evt_pay_1")
	if err != nil {
		t.Fatal(err)
	}
	if e.ResourceID != "ord_1" || e.SourceAccountID != "acct_9" || e.Status != model.StatusPending {
		t.Fatalf("stored event %+v", e)
	}

	// Provider redelivery.
	rec = env.do(t, http.MethodPost, "/v1/webhooks/payments", body, signed(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec.Code)
	}
	if resp := decode[IngestResponse](t, rec); resp.IsNew {
		t.Fatal("duplicate reported as new")
	}
	if n := env.depth(t, "menujobs:payments"); n != 1 {
		t.Fatalf("queue depth = %d, want 1", n)
	}
}

func TestPaymentWebhook_Rejections(t *testing.T) {
	body := []byte(webhookBody)
	tampered := signed(body)
	tampered.Set(webhookauth.SignatureHeader, strings.Repeat("0", 64))
	stale := http.Header{}
	ts, sig := webhookauth.Sign(testSecret, time.Now().Add(-time.Hour), body)
	stale.Set(webhookauth.TimestampHeader, ts)
	stale.Set(webhookauth.SignatureHeader, sig)
	malformed := []byte(`{"id":"evt_x"}`)

	for _, tc := range []struct {
		name   string
		body   []byte
		header http.Header
		want   int
	}{
		{"unsigned", body, nil, http.StatusUnauthorized},
		{"wrong signature", body, tampered, http.StatusUnauthorized},
		{"outside window", body, stale, http.StatusUnauthorized},
		{"malformed envelope", malformed, signed(malformed), http.StatusBadRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestServer(t)
			rec := env.do(t, http.MethodPost, "/v1/webhooks/payments", tc.body, tc.header)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			counts, _ := env.store.CountByStatus(context.Background(), "")
			if len(counts) != 0 {
				t.Fatalf("rejected webhook was stored: %v", counts)
			}
			if n := env.depth(t, "menujobs:payments"); n != 0 {
				t.Fatalf("rejected webhook was enqueued")
			}
		})
	}
}

func TestPaymentWebhook_NoSecretConfigured(t *testing.T) {
	env := newTestServerWith(t, Deps{}, "")
	body := []byte(webhookBody)
	rec := env.do(t, http.MethodPost, "/v1/webhooks/payments", body, signed(body))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestPaymentWebhook_UnknownTypeRoutedToPayments(t *testing.T) {
	env := newTestServer(t)
	body := []byte(`{"id":"evt_d","type":"dispute.opened","data":{"dispute_id":"dp_1"}}`)
	rec := env.do(t, http.MethodPost, "/v1/webhooks/payments", body, signed(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if n := env.depth(t, "menujobs:payments"); n != 1 {
		t.Fatalf("queue depth = %d", n)
	}
}

func TestMenuUpload(t *testing.T) {
	env := newTestServer(t)
	csv := []byte("section,name,price\nMains,Burger,12.50\n")
	h := http.Header{}
	h.Set("Content-Type", "text/csv")

	rec := env.do(t, http.MethodPost, "/v1/uploads/menu?restaurant_id=rest_1&filename=../lunch.csv", csv, h)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[IngestResponse](t, rec)
	if !strings.HasPrefix(resp.ID, "evt_") || resp.Class != model.ClassMenuImport {
		t.Fatalf("unexpected response %+v", resp)
	}

	e, err := env.store.GetEvent(context.Background(), resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	var p model.MenuImportPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.RestaurantID != "rest_1" || p.Filename != "lunch.csv" || !strings.HasPrefix(p.ImportID, "imp_") {
		t.Fatalf("payload %+v", p)
	}
	obj, err := env.blobs.Get(context.Background(), p.SourceKey)
	if err != nil {
		t.Fatalf("upload not stored at %q: %v", p.SourceKey, err)
	}
	if !bytes.Equal(obj.Data, csv) || obj.ContentType != "text/csv" {
		t.Fatalf("stored object %+v", obj)
	}
	if e.ResourceID != p.ImportID {
		t.Fatalf("resource id %q, want %q", e.ResourceID, p.ImportID)
	}
	if n := env.depth(t, "menujobs:menu_import"); n != 1 {
		t.Fatalf("queue depth = %d", n)
	}
}

func TestMenuUpload_Validation(t *testing.T) {
	env := newTestServer(t)
	if rec := env.do(t, http.MethodPost, "/v1/uploads/menu", []byte("x"), nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing restaurant: expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/v1/uploads/menu?restaurant_id=r", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d", rec.Code)
	}
}

func TestImageJob(t *testing.T) {
	env := newTestServer(t)
	body := []byte(`{"id":"job_1","image_id":"img_1","source_key":"uploads/img_1.png","widths":[320,640]}`)

	rec := env.do(t, http.MethodPost, "/v1/jobs/images", body, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decode[IngestResponse](t, rec); resp.ID != "job_1" || !resp.IsNew {
		t.Fatalf("unexpected response %+v", resp)
	}
	rec = env.do(t, http.MethodPost, "/v1/jobs/images", body, nil)
	if resp := decode[IngestResponse](t, rec); resp.IsNew {
		t.Fatal("resubmitted job reported as new")
	}
	if n := env.depth(t, "menujobs:images"); n != 1 {
		t.Fatalf("queue depth = %d", n)
	}

	for _, bad := range []string{
		`{"image_id":"img_1","widths":[1]}`,
		`{"image_id":"img_1","source_key":"k","widths":[]}`,
		`{"image_id":"img_1","source_key":"k","widths":[0]}`,
		`not json`,
	} {
		if rec := env.do(t, http.MethodPost, "/v1/jobs/images", []byte(bad), nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", bad, rec.Code)
		}
	}
}

func seedFailed(t *testing.T, env *testEnv, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := env.srv.ingest.Ingest(ctx, ingest.Request{
		ID:      id,
		Type:    model.TypePaymentFailed,
		Payload: json.RawMessage(`{"payment_id":"pay_2","order_id":"ord_2"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.queue.Dequeue(ctx, "menujobs:payments", time.Second); err != nil {
		t.Fatal(err)
	}
	if err := env.store.MarkProcessing(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := env.store.MarkFailed(ctx, id, "order service down"); err != nil {
		t.Fatal(err)
	}
	if err := env.queue.DeadLetter(ctx, "menujobs:payments", id); err != nil {
		t.Fatal(err)
	}
}

func TestEvents_GetListReplay(t *testing.T) {
	env := newTestServer(t)
	seedFailed(t, env, "evt_f")

	if rec := env.do(t, http.MethodGet, "/v1/events/missing", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/v1/events/evt_f", nil, nil)
	if e := decode[model.Event](t, rec); e.Status != model.StatusFailed || e.LastError != "order service down" {
		t.Fatalf("event %+v", e)
	}

	rec = env.do(t, http.MethodGet, "/v1/events?status=failed&class=payments", nil, nil)
	list := decode[struct{ Events []model.Event }](t, rec)
	if len(list.Events) != 1 || list.Events[0].ID != "evt_f" {
		t.Fatalf("list = %+v", list)
	}
	rec = env.do(t, http.MethodGet, "/v1/events?status=processed", nil, nil)
	if list := decode[struct{ Events []model.Event }](t, rec); len(list.Events) != 0 {
		t.Fatalf("expected no processed events, got %+v", list)
	}
	if rec := env.do(t, http.MethodGet, "/v1/events?status=bogus", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/queues/payments/dead", nil, nil)
	dead := decode[struct{ Events []model.Event }](t, rec)
	if len(dead.Events) != 1 || dead.Events[0].ID != "evt_f" {
		t.Fatalf("dead letters = %+v", dead)
	}
	if rec := env.do(t, http.MethodGet, "/v1/queues/bogus/dead", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/events/evt_f/replay", nil, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if e := decode[model.Event](t, rec); e.Status != model.StatusPending || e.RetryCount != 0 || e.ReplayedAt == nil {
		t.Fatalf("replayed event %+v", e)
	}
	if n := env.depth(t, "menujobs:payments"); n != 1 {
		t.Fatalf("queue depth after replay = %d", n)
	}

	// Only FAILED events replay.
	if rec := env.do(t, http.MethodPost, "/v1/events/evt_f/replay", nil, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/v1/events/missing/replay", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestQueues(t *testing.T) {
	env := newTestServer(t)
	seedFailed(t, env, "evt_f")
	body := []byte(webhookBody)
	env.do(t, http.MethodPost, "/v1/webhooks/payments", body, signed(body))

	rec := env.do(t, http.MethodGet, "/v1/queues", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[struct{ Queues []model.QueueStats }](t, rec)
	if len(resp.Queues) != len(model.JobClasses) {
		t.Fatalf("queues = %+v", resp.Queues)
	}
	for _, st := range resp.Queues {
		if st.Class != model.ClassPayments {
			continue
		}
		if st.Depth != 1 || st.Dead != 1 || st.Counts[model.StatusFailed] != 1 || st.Counts[model.StatusPending] != 1 {
			t.Fatalf("payments stats %+v", st)
		}
		return
	}
	t.Fatal("payments missing from stats")
}

func TestHealth(t *testing.T) {
	env := newTestServer(t)
	if rec := env.do(t, http.MethodGet, "/v1/health", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	down := newTestServerWith(t, Deps{Serving: func(c model.JobClass) bool { return c != model.ClassImages }}, "secret")
	rec := down.do(t, http.MethodGet, "/v1/health", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "degraded" || resp.Classes[model.ClassImages] != "NOT_SERVING" || resp.Classes[model.ClassPayments] != "SERVING" {
		t.Fatalf("health %+v", resp)
	}
}

func TestAuthRequiredOnInspection(t *testing.T) {
	env := newTestServerWith(t, Deps{}, "secret")
	if rec := env.do(t, http.MethodGet, "/v1/queues", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	rec := env.do(t, http.MethodGet, "/v1/queues", nil, h)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("response missing request id")
	}
}

func TestPublisher_ForwardsAndBroadcasts(t *testing.T) {
	env := newTestServer(t)
	rec := &events.Recorder{}
	pub := env.srv.Publisher(rec)

	client := env.srv.sseHub.subscribe(nil)
	defer env.srv.sseHub.unsubscribe(client)

	n := events.MenuImported{Key: "imp_1", ImportID: "imp_1", RestaurantID: "rest_1"}
	if err := pub.Publish(context.Background(), events.TopicMenuImported, n); err != nil {
		t.Fatal(err)
	}
	if got := rec.Events(); len(got) != 1 || got[0].Topic != events.TopicMenuImported {
		t.Fatalf("forwarded = %+v", got)
	}
	select {
	case evt := <-client.ch:
		if evt.Topic != events.TopicMenuImported || !strings.Contains(string(evt.Data), `"imp_1"`) {
			t.Fatalf("broadcast = %s %s", evt.Topic, evt.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no broadcast")
	}
}
