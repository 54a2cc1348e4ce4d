package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/menujobs/internal/ingest/webhookauth"
	"github.com/alfredjeanlab/menujobs/internal/model"
)

// HTTPClient implements Client using the menujobs HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Events ---

func (c *HTTPClient) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var event model.Event
	if err := c.doJSON(ctx, http.MethodGet, "/v1/events/"+url.PathEscape(id), nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *HTTPClient) ListEvents(ctx context.Context, req *ListEventsRequest) ([]*model.Event, error) {
	q := url.Values{}
	if len(req.Status) > 0 {
		q.Set("status", strings.Join(req.Status, ","))
	}
	if len(req.Type) > 0 {
		q.Set("type", strings.Join(req.Type, ","))
	}
	if len(req.Class) > 0 {
		q.Set("class", strings.Join(req.Class, ","))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}

	path := "/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *HTTPClient) ReplayEvent(ctx context.Context, id string) (*model.Event, error) {
	var event model.Event
	if err := c.doJSON(ctx, http.MethodPost, "/v1/events/"+url.PathEscape(id)+"/replay", nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// --- Queues ---

func (c *HTTPClient) ListQueues(ctx context.Context) ([]model.QueueStats, error) {
	var resp struct {
		Queues []model.QueueStats `json:"queues"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/queues", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Queues, nil
}

func (c *HTTPClient) DeadLetters(ctx context.Context, class model.JobClass, limit int) ([]*model.Event, error) {
	path := "/v1/queues/" + url.PathEscape(string(class)) + "/dead"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// --- Ingestion ---

// SendWebhook signs body with secret the way the payment provider does and
// posts it to the webhook endpoint.
func (c *HTTPClient) SendWebhook(ctx context.Context, body []byte, secret string) (*IngestResult, error) {
	ts, sig := webhookauth.Sign(secret, time.Now(), body)
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set(webhookauth.TimestampHeader, ts)
	header.Set(webhookauth.SignatureHeader, sig)

	var res IngestResult
	if err := c.do(ctx, http.MethodPost, "/v1/webhooks/payments", header, bytes.NewReader(body), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) SubmitImageJob(ctx context.Context, req *ImageJobRequest) (*IngestResult, error) {
	var res IngestResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/jobs/images", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) UploadMenu(ctx context.Context, req *UploadMenuRequest) (*IngestResult, error) {
	q := url.Values{}
	q.Set("restaurant_id", req.RestaurantID)
	if req.Filename != "" {
		q.Set("filename", req.Filename)
	}
	header := http.Header{}
	if req.ContentType != "" {
		header.Set("Content-Type", req.ContentType)
	}

	var res IngestResult
	if err := c.do(ctx, http.MethodPost, "/v1/uploads/menu?"+q.Encode(), header, bytes.NewReader(req.Data), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Health ---

// Health returns the server's health report. A degraded server answers
// 503 with a body; that is returned without an error.
func (c *HTTPClient) Health(ctx context.Context) (*HealthStatus, error) {
	var hs HealthStatus
	err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &hs)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		if json.Unmarshal([]byte(apiErr.Message), &hs) == nil && hs.Status != "" {
			return &hs, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return &hs, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	header := http.Header{}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		header.Set("Content-Type", "application/json")
	}
	return c.do(ctx, method, path, header, bodyReader, result)
}

// do performs the request and decodes a JSON response into result. If result
// is nil, the response body is discarded.
func (c *HTTPClient) do(ctx context.Context, method, path string, header http.Header, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
