package server

import (
	"encoding/json"
	"net/http"

	"github.com/alfredjeanlab/menujobs/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health and the
// signed webhook endpoint) must include a valid Authorization: Bearer <token>
// header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/webhooks/payments", s.handlePaymentWebhook)
	mux.HandleFunc("POST /v1/uploads/menu", s.handleMenuUpload)
	mux.HandleFunc("POST /v1/jobs/images", s.handleImageJob)
	mux.HandleFunc("GET /v1/events", s.handleListEvents)
	mux.HandleFunc("GET /v1/events/{id}", s.handleGetEvent)
	mux.HandleFunc("POST /v1/events/{id}/replay", s.handleReplayEvent)
	mux.HandleFunc("GET /v1/queues", s.handleListQueues)
	mux.HandleFunc("GET /v1/queues/{class}/dead", s.handleListDeadLetters)
	mux.HandleFunc("GET /v1/notifications/stream", s.handleNotificationStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)

	var h http.Handler = mux
	h = AuthMiddleware(authToken, h)
	h = LoggingMiddleware(s.logger, h)
	h = RequestIDMiddleware(h)
	return h
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status  string                    `json:"status"`
	Classes map[model.JobClass]string `json:"classes,omitempty"`
}

// handleHealth handles GET /v1/health. It answers 503 when any job class
// has no running processor.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s.serving != nil {
		resp.Classes = make(map[model.JobClass]string, len(model.JobClasses))
		for _, class := range model.JobClasses {
			if s.serving(class) {
				resp.Classes[class] = "SERVING"
			} else {
				resp.Classes[class] = "NOT_SERVING"
				resp.Status = "degraded"
			}
		}
	}
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
