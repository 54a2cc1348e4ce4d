package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// sseBacklogSize is how many recent notifications are kept for clients
	// reconnecting with Last-Event-ID.
	sseBacklogSize = 1000

	sseKeepaliveInterval = 15 * time.Second

	// sseRetryMillis is the reconnect delay suggested to browsers.
	sseRetryMillis = 3000

	sseClientBuffer = 64
)

// sseEvent is one notification as sent to SSE clients.
type sseEvent struct {
	ID    uint64
	Topic string
	Data  []byte // JSON
}

// sseHub fans notifications out to connected SSE clients and keeps a
// bounded backlog for Last-Event-ID replay. IDs are assigned under the same
// lock that appends to the backlog, so backlog order is ID order.
type sseHub struct {
	mu      sync.Mutex
	clients map[*sseClient]struct{}
	lastID  uint64
	backlog []*sseEvent // oldest first, at most sseBacklogSize
}

type sseClient struct {
	topics  []string // NATS-style patterns; empty matches everything
	ch      chan *sseEvent
	dropped atomic.Uint64
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

// broadcast records a notification and delivers it to matching clients. A
// client whose buffer is full misses the event; it can catch up by
// reconnecting with Last-Event-ID.
func (h *sseHub) broadcast(topic string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	evt := &sseEvent{ID: h.lastID, Topic: topic, Data: payload}
	if len(h.backlog) == sseBacklogSize {
		copy(h.backlog, h.backlog[1:])
		h.backlog[len(h.backlog)-1] = evt
	} else {
		h.backlog = append(h.backlog, evt)
	}

	for c := range h.clients {
		if !c.matchesTopic(topic) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			c.dropped.Add(1)
		}
	}
}

func (h *sseHub) subscribe(topics []string) *sseClient {
	c, _ := h.subscribeSince(topics, nil)
	return c
}

// subscribeSince registers a client and, when lastID is set, returns the
// backlog after it. Both happen under one lock so nothing is lost or
// duplicated between replay and live delivery.
func (h *sseHub) subscribeSince(topics []string, lastID *uint64) (*sseClient, []*sseEvent) {
	c := &sseClient{topics: topics, ch: make(chan *sseEvent, sseClientBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if lastID == nil {
		return c, nil
	}
	var replay []*sseEvent
	for _, evt := range h.backlogAfter(*lastID) {
		if c.matchesTopic(evt.Topic) {
			replay = append(replay, evt)
		}
	}
	return c, replay
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns backlog entries with ID > lastID, oldest first.
func (h *sseHub) eventsSince(lastID uint64) []*sseEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backlogAfter(lastID)
}

func (h *sseHub) backlogAfter(lastID uint64) []*sseEvent {
	// IDs are contiguous, so the offset can be computed directly.
	if len(h.backlog) == 0 || lastID >= h.lastID {
		return nil
	}
	first := h.backlog[0].ID
	if lastID < first {
		lastID = first - 1
	}
	start := int(lastID - first + 1)
	return append([]*sseEvent(nil), h.backlog[start:]...)
}

func (c *sseClient) matchesTopic(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if matchTopicPattern(pattern, topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated subject the way NATS does:
// "*" matches one token, a trailing ">" matches one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	tok := strings.Split(topic, ".")
	for i, p := range pat {
		switch {
		case p == ">":
			return i < len(tok)
		case i >= len(tok):
			return false
		case p != "*" && p != tok[i]:
			return false
		}
	}
	return len(pat) == len(tok)
}

// handleNotificationStream handles GET /v1/notifications/stream. Optional
// ?topics= takes comma separated subject patterns.
func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var lastID *uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			lastID = &id
		}
	}

	client, replay := s.sseHub.subscribeSince(splitParam(r.URL.Query().Get("topics")), lastID)
	defer func() {
		s.sseHub.unsubscribe(client)
		if n := client.dropped.Load(); n > 0 {
			s.logger.Warn("sse client fell behind", "dropped", n, "request_id", RequestID(r.Context()))
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "retry:%d\n\n", sseRetryMillis)
	for _, evt := range replay {
		writeSSEEvent(w, evt)
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w io.Writer, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
