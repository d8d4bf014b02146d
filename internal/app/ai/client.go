/*
Package ai manages the per-room AI conversations and the completion
backend client.

This file defines the Ollama client: a thin wrapper around the
/api/generate endpoint that turns a rendered prompt into a completion
string or an error.
*/
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// generateTimeout caps one completion round trip. Local models can be
// slow on first load, so this is deliberately generous.
const generateTimeout = 120 * time.Second

// Client calls the external text-completion backend.
type Client struct {
	httpClient *http.Client
	url        string
	model      string
}

// NewClient constructs a Client for the given endpoint URL and model.
func NewClient(url, model string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: generateTimeout},
		url:        url,
		model:      model,
	}
}

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the subset of the Ollama response the server reads.
type generateResponse struct {
	Response string `json:"response"`
}

// Generate sends the rendered conversation prompt to the backend and
// returns the completion text. Any transport, status, or decode failure
// comes back as an error; the caller turns it into a user-visible string.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not connect to the LLM service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for the log, then report the code.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("received error code %d from LLM service: %s", resp.StatusCode, snippet)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("invalid response format from LLM service: %w", err)
	}

	return parsed.Response, nil
}
