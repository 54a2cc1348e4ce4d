package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/alfredjeanlab/menujobs/internal/blob"
	"github.com/alfredjeanlab/menujobs/internal/idgen"
	"github.com/alfredjeanlab/menujobs/internal/ingest"
	"github.com/alfredjeanlab/menujobs/internal/ingest/webhookauth"
	"github.com/alfredjeanlab/menujobs/internal/model"
)

const (
	maxWebhookBody = 1 << 20
	maxUploadBody  = 32 << 20
)

// IngestResponse is returned by every ingestion endpoint.
type IngestResponse struct {
	ID     string         `json:"id"`
	IsNew  bool           `json:"is_new"`
	Class  model.JobClass `json:"class,omitempty"`
	Status model.Status   `json:"status,omitempty"`
}

// ImageJobRequest is the body of POST /v1/jobs/images.
type ImageJobRequest struct {
	ID        string `json:"id,omitempty"`
	ImageID   string `json:"image_id"`
	SourceKey string `json:"source_key"`
	Widths    []int  `json:"widths"`
}

// handlePaymentWebhook handles POST /v1/webhooks/payments.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	err = s.verifier.Verify(r.Header.Get(webhookauth.TimestampHeader), r.Header.Get(webhookauth.SignatureHeader), body)
	if err != nil {
		s.logger.Warn("webhook rejected", "request_id", RequestID(r.Context()), "err", err)
		if errors.Is(err, webhookauth.ErrNoSecret) {
			writeError(w, http.StatusServiceUnavailable, "webhook verification not configured")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	req, err := ingest.DecodeEnvelope(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Every delivery on this endpoint is a payment event, including types
	// no handler knows yet.
	req.Class = model.ClassPayments

	s.ingestAndRespond(w, r, req, http.StatusOK)
}

// handleMenuUpload handles POST /v1/uploads/menu. The raw body is the menu
// file; restaurant_id and filename come from the query string.
func (s *Server) handleMenuUpload(w http.ResponseWriter, r *http.Request) {
	restaurantID := strings.TrimSpace(r.URL.Query().Get("restaurant_id"))
	if restaurantID == "" {
		writeError(w, http.StatusBadRequest, "restaurant_id is required")
		return
	}
	filename := path.Base(strings.TrimSpace(r.URL.Query().Get("filename")))
	if filename == "." || filename == "/" {
		filename = "menu"
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	importID, err := idgen.New(idgen.Import)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	eventID, err := idgen.New(idgen.Event)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentType := r.Header.Get("Content-Type")
	key := blob.Join("uploads", "menus", restaurantID, importID, filename)
	if err := s.blobs.Put(r.Context(), key, data, contentType); err != nil {
		s.logger.Error("failed to store upload", "key", key, "err", err)
		writeError(w, http.StatusBadGateway, "failed to store upload")
		return
	}

	payload, err := json.Marshal(model.MenuImportPayload{
		ImportID:     importID,
		RestaurantID: restaurantID,
		SourceKey:    key,
		ContentType:  contentType,
		Filename:     filename,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.ingestAndRespond(w, r, ingest.Request{
		ID:      eventID,
		Type:    model.TypeMenuImportRequested,
		Payload: payload,
	}, http.StatusAccepted)
}

// handleImageJob handles POST /v1/jobs/images. A caller-supplied id makes
// the request idempotent.
func (s *Server) handleImageJob(w http.ResponseWriter, r *http.Request) {
	var req ImageJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ImageID == "" || req.SourceKey == "" {
		writeError(w, http.StatusBadRequest, "image_id and source_key are required")
		return
	}
	if len(req.Widths) == 0 {
		writeError(w, http.StatusBadRequest, "widths is required")
		return
	}
	for _, width := range req.Widths {
		if width <= 0 {
			writeError(w, http.StatusBadRequest, "widths must be positive")
			return
		}
	}

	if req.ID == "" {
		id, err := idgen.New(idgen.Event)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		req.ID = id
	}
	payload, err := json.Marshal(model.ImageVariantsPayload{
		ImageID:   req.ImageID,
		SourceKey: req.SourceKey,
		Widths:    req.Widths,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.ingestAndRespond(w, r, ingest.Request{
		ID:      req.ID,
		Type:    model.TypeImageVariantsRequested,
		Payload: payload,
	}, http.StatusAccepted)
}

// ingestAndRespond runs req through the ingestion path under the ingest
// timeout. Duplicates answer with the same success code as new events.
func (s *Server) ingestAndRespond(w http.ResponseWriter, r *http.Request, req ingest.Request, code int) {
	ctx, cancel := context.WithTimeout(r.Context(), s.ingestTimeout)
	defer cancel()

	res, err := s.ingest.Ingest(ctx, req)
	if err != nil {
		var ve *model.ValidationError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, ve.Error())
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusServiceUnavailable, "ingest timed out")
		default:
			s.logger.Error("ingest failed", "event_id", req.ID, "request_id", RequestID(r.Context()), "err", err)
			writeError(w, http.StatusServiceUnavailable, "ingest failed")
		}
		return
	}

	writeJSON(w, code, IngestResponse{
		ID:     res.Event.ID,
		IsNew:  res.IsNew,
		Class:  res.Event.Class,
		Status: res.Event.Status,
	})
}
