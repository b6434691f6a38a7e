package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var _ Provider = (*HTTPAPI)(nil)

// HTTPAPIConfig holds settings for a transactional email HTTP API
// (Brevo-compatible payload shape).
type HTTPAPIConfig struct {
	// Endpoint is the full send URL, e.g. https://api.brevo.com/v3/smtp/email.
	Endpoint string
	// APIKey is sent in the api-key header.
	APIKey string
	// Sender is the from address.
	Sender string
	// Timeout bounds each API call. Defaults to 10s.
	Timeout time.Duration
}

// HTTPAPI delivers messages through a transactional email HTTP API.
type HTTPAPI struct {
	cfg  HTTPAPIConfig
	http *http.Client
}

// NewHTTPAPI creates an HTTP API provider.
func NewHTTPAPI(cfg HTTPAPIConfig) *HTTPAPI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAPI{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// Name returns "httpapi".
func (h *HTTPAPI) Name() string { return "httpapi" }

type apiEmail struct {
	To          []map[string]string `json:"to"`
	Sender      map[string]string   `json:"sender"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent,omitempty"`
	TextContent string              `json:"textContent,omitempty"`
}

// Send posts the message to the configured endpoint.
func (h *HTTPAPI) Send(ctx context.Context, msg Message) error {
	if h.cfg.APIKey == "" || h.cfg.Sender == "" {
		return fmt.Errorf("httpapi provider not configured")
	}

	payload := apiEmail{
		To:          []map[string]string{{"email": msg.To}},
		Sender:      map[string]string{"email": h.cfg.Sender},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
		TextContent: msg.Text,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", h.cfg.APIKey)

	resp, err := h.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("httpapi send failed: %s", resp.Status)
	}
	return nil
}
