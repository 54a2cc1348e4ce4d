package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/store"
)

const maxListLimit = 1000

// handleGetEvent handles GET /v1/events/{id}.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.store.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// handleListEvents handles GET /v1/events?status=&type=&class=&limit=.
// status, type and class accept comma separated values.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter model.EventFilter

	for _, v := range splitParam(q.Get("status")) {
		st := model.Status(strings.ToUpper(v))
		if !st.IsValid() {
			writeError(w, http.StatusBadRequest, "invalid status "+strconv.Quote(v))
			return
		}
		filter.Status = append(filter.Status, st)
	}
	filter.Type = splitParam(q.Get("type"))
	for _, v := range splitParam(q.Get("class")) {
		class, ok := model.ParseJobClass(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid class "+strconv.Quote(v))
			return
		}
		filter.Class = append(filter.Class, class)
	}
	limit, ok := parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}
	filter.Limit = limit

	list, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": list})
}

// handleReplayEvent handles POST /v1/events/{id}/replay. Only FAILED events
// can be replayed.
func (s *Server) handleReplayEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	event, err := s.ingest.Replay(r.Context(), id)
	if err != nil {
		if event != nil {
			// Reset but not enqueued; the recovery sweep will pick it up.
			s.logger.Error("replay enqueue failed", "event_id", id, "err", err)
			writeJSON(w, http.StatusAccepted, event)
			return
		}
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, event)
}

// handleListQueues handles GET /v1/queues.
func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queueStats(r.Context())
	if err != nil {
		s.logger.Error("failed to collect queue stats", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to collect queue stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": stats})
}

// handleListDeadLetters handles GET /v1/queues/{class}/dead. It returns the
// stored events behind the dead-letter ids, oldest first.
func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	class, ok := model.ParseJobClass(r.PathValue("class"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job class")
		return
	}
	limit, ok := parseLimit(w, r.URL.Query().Get("limit"))
	if !ok {
		return
	}
	if limit <= 0 {
		limit = 100
	}

	ids, err := s.queue.DeadLetters(r.Context(), s.ingest.QueueFor(class), limit)
	if err != nil {
		s.logger.Error("failed to list dead letters", "class", string(class), "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}
	list := make([]*model.Event, 0, len(ids))
	for _, id := range ids {
		event, err := s.store.GetEvent(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		list = append(list, event)
	}
	writeJSON(w, http.StatusOK, map[string]any{"class": class, "events": list})
}

// writeStoreError maps store sentinels to HTTP codes.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("store request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func splitParam(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLimit(w http.ResponseWriter, v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return min(n, maxListLimit), true
}
