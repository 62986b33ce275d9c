package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Config holds inference sidecar client configuration
type Config struct {
	BaseURL string        // e.g. "http://localhost:8000"
	Timeout time.Duration // HTTP request timeout
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8000",
		Timeout: 2 * time.Second,
	}
}

// inferRequest is the sidecar request body
type inferRequest struct {
	Spectrogram [][]float64 `json:"spectrogram"`
}

// inferResponse is the sidecar response body
type inferResponse struct {
	Confidence float64 `json:"confidence"`
}

// HTTPClassifier scores windows via an inference sidecar over HTTP
type HTTPClassifier struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client

	// Stats
	inferCount  atomic.Uint64
	inferErrors atomic.Uint64
}

// NewHTTPClassifier creates a sidecar client
func NewHTTPClassifier(cfg Config, logger *slog.Logger) *HTTPClassifier {
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClassifier{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Infer posts the normalized window and returns the confidence score
func (c *HTTPClassifier) Infer(ctx context.Context, window [][]float64) (float64, error) {
	c.inferCount.Add(1)

	data, err := json.Marshal(inferRequest{Spectrogram: NormalizeWindow(window)})
	if err != nil {
		c.inferErrors.Add(1)
		return 0, fmt.Errorf("marshal window: %w", err)
	}

	url := c.cfg.BaseURL + "/api/v1/infer"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		c.inferErrors.Add(1)
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.inferErrors.Add(1)
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.inferErrors.Add(1)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("sidecar returned %d: %s", resp.StatusCode, body)
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.inferErrors.Add(1)
		return 0, fmt.Errorf("decode response: %w", err)
	}

	confidence := out.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return confidence, nil
}

// Name returns the classifier type name
func (c *HTTPClassifier) Name() string {
	return "http"
}

// Stats returns request counters
func (c *HTTPClassifier) Stats() (count, errors uint64) {
	return c.inferCount.Load(), c.inferErrors.Load()
}
