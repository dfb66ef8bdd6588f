package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type entryPayload struct {
	CarPlate string `json:"car_plate"`
}

type exitPayload struct {
	CarPlate      string     `json:"car_plate"`
	PaymentStatus ExitStatus `json:"payment_status"`
}

type alertPayload struct {
	PlateNumber string    `json:"plate_number"`
	Message     string    `json:"message"`
	Type        AlertType `json:"type"`
}

// BackendClient posts events to the system of record.
type BackendClient struct {
	baseURL string
	client  *http.Client
}

// NewBackendClient creates a client for the given base URL.
func NewBackendClient(baseURL string, timeout time.Duration) *BackendClient {
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *BackendClient) Name() string { return "backend" }

// Deliver posts the event to /events/{kind}.
func (b *BackendClient) Deliver(ctx context.Context, e Event) error {
	var payload any
	switch e.Kind {
	case KindEntry:
		payload = entryPayload{CarPlate: e.Plate}
	case KindExit:
		payload = exitPayload{CarPlate: e.Plate, PaymentStatus: e.ExitStatus}
	case KindAlert:
		payload = alertPayload{PlateNumber: e.Plate, Message: e.Message, Type: e.AlertType}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", e.Kind, err)
	}

	url := fmt.Sprintf("%s/events/%s", b.baseURL, e.Kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned status %d for %s event", resp.StatusCode, e.Kind)
	}
	return nil
}
