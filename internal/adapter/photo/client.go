// Package photo calls an external image classifier to decide whether a
// report photo shows flooding.
package photo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// Client implements domain.PhotoVerifier against a JSON HTTP endpoint:
//
//	POST {"image_url": "..."} -> {"is_flood": true, "confidence": 0.93}
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a photo verification client.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	ImageURL string `json:"image_url"`
}

type verifyResponse struct {
	IsFlood    bool    `json:"is_flood"`
	Confidence float64 `json:"confidence"`
}

// Verify implements domain.PhotoVerifier.
func (c *Client) Verify(ctx context.Context, photoURL string) (domain.PhotoVerdict, error) {
	body, err := json.Marshal(verifyRequest{ImageURL: photoURL})
	if err != nil {
		return domain.PhotoVerdict{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.PhotoVerdict{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PhotoVerdict{}, fmt.Errorf("photo verification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.PhotoVerdict{}, fmt.Errorf("photo verifier error: status %d: %s", resp.StatusCode, msg)
	}

	var decoded verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.PhotoVerdict{}, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Confidence < 0 || decoded.Confidence > 1 {
		return domain.PhotoVerdict{}, fmt.Errorf("photo verifier confidence %v out of range", decoded.Confidence)
	}
	return domain.PhotoVerdict{IsFlood: decoded.IsFlood, Confidence: decoded.Confidence}, nil
}
