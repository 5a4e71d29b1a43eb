// Package refill is the HTTP client for the restock API. The sync engine
// replays queued mutations through it, so it keeps a sharp line between
// transport failures (retryable, the device is offline) and HTTP error
// payloads (the server answered and meant it).
package refill

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/refill/internal/domain/models"
)

// MissingBox identifies a box blocking a completed submission.
type MissingBox struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// APIError is a non-2xx response from the server. Its presence means the
// request reached the server; replay must not treat it as a network failure.
type APIError struct {
	StatusCode   int          `json:"-"`
	Message      string       `json:"error"`
	MissingBoxes []MissingBox `json:"missingBoxes,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (%d)", e.StatusCode)
}

// Config carries the client's connection settings.
type Config struct {
	BaseURL string
	RepID   string
	Timeout time.Duration
}

// Client is a resty-backed API client.
type Client struct {
	httpClient *resty.Client
}

// NewClient builds an API client against the given base URL. The rep id is
// sent as the X-Rep-ID identity header on every request.
func NewClient(cfg Config) *Client {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		restyClient.SetTimeout(cfg.Timeout)
	}
	if cfg.RepID != "" {
		restyClient.SetHeader("X-Rep-ID", cfg.RepID)
	}

	return &Client{httpClient: restyClient}
}

// VisitDetail is a visit plus its per-box coverage as the server reports it.
type VisitDetail struct {
	Visit models.Visit         `json:"visit"`
	Boxes []models.BoxCoverage `json:"boxes"`
}

func checkStatus(resp *resty.Response, apiErr *APIError) error {
	if resp.StatusCode() < http.StatusBadRequest {
		return nil
	}
	apiErr.StatusCode = resp.StatusCode()
	return apiErr
}

// Health probes the server. A nil error means the device is online and the
// server is reachable.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.httpClient.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode(), Message: "unhealthy"}
	}
	return nil
}

// StartVisit creates or resumes the rep's open visit at the location.
func (c *Client) StartVisit(ctx context.Context, locationID string) (*models.Visit, error) {
	visit := new(models.Visit)
	apiErr := new(APIError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{"location": locationID}).
		SetResult(visit).
		SetError(apiErr).
		Post("/api/visits")
	if err != nil {
		return nil, fmt.Errorf("start visit: %w", err)
	}
	if err := checkStatus(resp, apiErr); err != nil {
		return nil, err
	}
	return visit, nil
}

// GetVisit loads a visit with its coverage.
func (c *Client) GetVisit(ctx context.Context, id string) (*VisitDetail, error) {
	detail := new(VisitDetail)
	apiErr := new(APIError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(detail).
		SetError(apiErr).
		Get(fmt.Sprintf("/api/visits/%s", id))
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	if err := checkStatus(resp, apiErr); err != nil {
		return nil, err
	}
	return detail, nil
}

// SetNote overwrites a visit's note.
func (c *Client) SetNote(ctx context.Context, id, note string) error {
	apiErr := new(APIError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{"note": note}).
		SetError(apiErr).
		Patch(fmt.Sprintf("/api/visits/%s/note", id))
	if err != nil {
		return fmt.Errorf("set note: %w", err)
	}
	return checkStatus(resp, apiErr)
}

// SubmitVisit finalizes a visit with the given outcome. An incomplete
// completed submission comes back as an APIError listing the missing boxes.
func (c *Client) SubmitVisit(ctx context.Context, id string, outcome models.Outcome, note *string) (*models.Visit, error) {
	body := map[string]any{"outcome": outcome}
	if note != nil {
		body["note"] = *note
	}

	visit := new(models.Visit)
	apiErr := new(APIError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(visit).
		SetError(apiErr).
		Post(fmt.Sprintf("/api/visits/%s/submit", id))
	if err != nil {
		return nil, fmt.Errorf("submit visit: %w", err)
	}
	if err := checkStatus(resp, apiErr); err != nil {
		return nil, err
	}
	return visit, nil
}

// DeliveryLine is one cart line for a delivery payload.
type DeliveryLine struct {
	Item      string  `json:"item"`
	Quantity  float64 `json:"quantity"`
	Packaging string  `json:"packaging,omitempty"`
}

// DeliveryRequest is the create-delivery payload.
type DeliveryRequest struct {
	Location string         `json:"location"`
	Box      string         `json:"box"`
	Visit    string         `json:"visit,omitempty"`
	RepName  string         `json:"repName,omitempty"`
	Lines    []DeliveryLine `json:"lines"`
}

// CreateDelivery records one box restock.
func (c *Client) CreateDelivery(ctx context.Context, req DeliveryRequest) (*models.Delivery, error) {
	delivery := new(models.Delivery)
	apiErr := new(APIError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(delivery).
		SetError(apiErr).
		Post("/api/deliveries")
	if err != nil {
		return nil, fmt.Errorf("create delivery: %w", err)
	}
	if err := checkStatus(resp, apiErr); err != nil {
		return nil, err
	}
	return delivery, nil
}

// PatchDelivery replaces a delivery's lines and returns the repriced
// document.
func (c *Client) PatchDelivery(ctx context.Context, id string, lines []DeliveryLine) (*models.Delivery, error) {
	delivery := new(models.Delivery)
	apiErr := new(APIError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{"lines": lines}).
		SetResult(delivery).
		SetError(apiErr).
		Patch(fmt.Sprintf("/api/deliveries/%s", id))
	if err != nil {
		return nil, fmt.Errorf("patch delivery: %w", err)
	}
	if err := checkStatus(resp, apiErr); err != nil {
		return nil, err
	}
	return delivery, nil
}

// ListItems loads the item catalog.
func (c *Client) ListItems(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	apiErr := new(APIError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&items).
		SetError(apiErr).
		Get("/api/items")
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if err := checkStatus(resp, apiErr); err != nil {
		return nil, err
	}
	return items, nil
}

// ListLocations loads locations, optionally filtered by a name search.
func (c *Client) ListLocations(ctx context.Context, q string) ([]models.Location, error) {
	var locations []models.Location
	apiErr := new(APIError)
	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(&locations).
		SetError(apiErr)
	if q != "" {
		req.SetQueryParam("q", q)
	}
	resp, err := req.Get("/api/locations")
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	if err := checkStatus(resp, apiErr); err != nil {
		return nil, err
	}
	return locations, nil
}

// ListBoxes loads the boxes at a location.
func (c *Client) ListBoxes(ctx context.Context, locationID string) ([]models.Box, error) {
	var boxes []models.Box
	apiErr := new(APIError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("location", locationID).
		SetResult(&boxes).
		SetError(apiErr).
		Get("/api/boxes")
	if err != nil {
		return nil, fmt.Errorf("list boxes: %w", err)
	}
	if err := checkStatus(resp, apiErr); err != nil {
		return nil, err
	}
	return boxes, nil
}

// Do replays a raw mutation exactly as it was enqueued: same method, path
// and body. The sync engine drains the mutation queue through this.
func (c *Client) Do(ctx context.Context, method, path string, body json.RawMessage) error {
	apiErr := new(APIError)
	req := c.httpClient.R().
		SetContext(ctx).
		SetError(apiErr)
	if len(body) > 0 {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("replay %s %s: %w", method, path, err)
	}
	return checkStatus(resp, apiErr)
}
