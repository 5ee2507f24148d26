// Package gemini provides a client for the Gemini generateContent REST API
// with search grounding enabled.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/emezpr/Sureodds/internal/logger"
)

// APIError is a non-2xx reply from the Gemini API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini API error: status %d: %s", e.StatusCode, e.Message)
}

// Client calls the Gemini generateContent endpoint.
type Client struct {
	baseURL         string
	model           string
	apiKey          string
	httpClient      *http.Client
	maxRetries      int
	retryDelayBase  time.Duration
	temperature     float64
	maxOutputTokens int
}

// ClientConfig holds the settings for creating a Client.
type ClientConfig struct {
	BaseURL         string
	Model           string
	APIKey          string
	Timeout         time.Duration
	MaxRetries      int
	RetryDelayBase  time.Duration
	Temperature     float64
	MaxOutputTokens int
}

// NewClient creates a Gemini API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	return &Client{
		baseURL:         cfg.BaseURL,
		model:           cfg.Model,
		apiKey:          cfg.APIKey,
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		maxRetries:      cfg.MaxRetries,
		retryDelayBase:  cfg.RetryDelayBase,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
	}
}

// Generate sends one generateContent request carrying the system instruction
// and user prompt, with the google_search tool attached.
func (c *Client) Generate(ctx context.Context, systemInstruction, prompt string) (*GenerateResponse, error) {
	reqBody := GenerateRequest{
		Contents:          []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
		SystemInstruction: &Content{Parts: []Part{{Text: systemInstruction}}},
		Tools:             []Tool{{GoogleSearch: &GoogleSearch{}}},
		GenerationConfig: &GenerationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	resp, err := c.doRequest(ctx, url, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.UsageMetadata != nil {
		logger.Debug("Gemini usage: prompt=%d candidates=%d total=%d",
			out.UsageMetadata.PromptTokenCount,
			out.UsageMetadata.CandidatesTokenCount,
			out.UsageMetadata.TotalTokenCount)
	}
	return &out, nil
}

// doRequest performs an HTTP POST with retry logic. Transport errors and 5xx
// replies retry with linear backoff; 429 and other 4xx fail fast so quota is
// not burned on doomed requests.
func (c *Client) doRequest(ctx context.Context, url string, payload []byte) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger.Warn("Gemini request failed (attempt %d/%d): %v", i+1, c.maxRetries, err)
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
			continue
		}

		if resp.StatusCode >= 500 {
			msg := readBodyPrefix(resp.Body)
			resp.Body.Close()
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: msg}
			logger.Warn("Gemini request failed (attempt %d/%d): %v", i+1, c.maxRetries, lastErr)
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			msg := readBodyPrefix(resp.Body)
			resp.Body.Close()
			return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func readBodyPrefix(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 2048))
	return string(bytes.TrimSpace(b))
}
