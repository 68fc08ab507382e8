// Package search talks to the web-search gateway: a JSON endpoint that wraps
// whichever search provider is configured server-side and returns an
// LLM-ready summary.
package search

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{},
	}
}

// Request is one search. Image is optional; when set the gateway may use it
// for reverse-image grounding alongside the text query.
type Request struct {
	Query    string
	Location string
	Image    []byte
}

// Result carries the summary threaded back into the conversation and the
// provider metadata kept for the debug trace only.
type Result struct {
	Summary  string
	Provider string
}

// Wire types

type searchRequest struct {
	Query    string `json:"query"`
	Location string `json:"location,omitempty"`
	Image    string `json:"image,omitempty"` // base64
}

type searchResponse struct {
	Summary  string `json:"summary"`
	Provider string `json:"provider"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) Search(ctx context.Context, sr Request) (*Result, error) {
	reqBody := searchRequest{
		Query:    sr.Query,
		Location: sr.Location,
	}
	if len(sr.Image) > 0 {
		reqBody.Image = base64.StdEncoding.EncodeToString(sr.Image)
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("search: %s %s", resp.Status, string(respBody))
	}

	var sresp searchResponse
	if err := json.Unmarshal(respBody, &sresp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if sresp.Error != "" {
		return nil, fmt.Errorf("search: %s", sresp.Error)
	}

	return &Result{Summary: sresp.Summary, Provider: sresp.Provider}, nil
}
