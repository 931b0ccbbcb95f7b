// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/agentchat/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout is the default timeout for provider requests.
	DefaultTimeout = 90 * time.Second

	// MaxResponseSize caps the response body size read into memory.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// Shared HTTP client with connection pooling for all provider requests.
// Streamed responses are bounded in practice; the single timeout covers
// both shapes, and per-call contexts can shorten it.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMissingConfig indicates a chat call without an agent configuration.
	ErrMissingConfig = errors.New("agent configuration must not be nil")

	// ErrEmptyResponse indicates a parseable but contentless provider reply.
	ErrEmptyResponse = errors.New("provider returned an empty response")

	// ErrParse indicates a response body that could not be normalized at all.
	ErrParse = errors.New("failed to parse provider response")
)

// APIError represents a non-2xx response from a provider. The message
// carries the status code and the response body so callers can see what the
// provider actually said.
type APIError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	body := e.Body
	if body == "" {
		body = "no error detail"
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, body)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client sends resolved chat requests to provider endpoints. It is safe for
// concurrent use; all adapters share one pooled HTTP client.
type Client struct {
	httpClient *http.Client

	// baseURLs holds per-kind overrides of the adapter base URL, used for
	// config overrides and test servers.
	baseURLs map[model.ProviderKind]string
}

// NewClient creates a client backed by the shared pooled HTTP transport.
func NewClient() *Client {
	return &Client{
		httpClient: sharedHTTPClient,
		baseURLs:   make(map[model.ProviderKind]string),
	}
}

// WithBaseURL overrides the base URL for a provider kind and returns the
// client.
func (c *Client) WithBaseURL(kind model.ProviderKind, url string) *Client {
	c.baseURLs[kind] = strings.TrimSuffix(url, "/")
	return c
}

// WithHTTPClient replaces the underlying HTTP client and returns the client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// baseURL resolves the effective base URL for an adapter.
func (c *Client) baseURL(a Adapter) string {
	if url, ok := c.baseURLs[a.Kind]; ok && url != "" {
		return url
	}
	return a.BaseURL
}

// Complete sends a resolved ChatRequest through an adapter and returns the
// normalized assistant text. The request is context-aware; cancellation and
// deadline handling ride on the HTTP transport.
func (c *Client) Complete(ctx context.Context, a Adapter, apiKey string, req ChatRequest) (string, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL(a) + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if a.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Status and duration only; headers and bodies stay out of the logs.
	log.Printf("provider %s: POST /chat/completions %d (%v)", a.Kind, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	body, err := readResponse(resp)
	if err != nil {
		return "", err
	}

	if resp.StatusCode/100 != 2 {
		return "", &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	return Normalize(body, a.Stream)
}

// readResponse reads the response body with a size cap. The limit reads
// one byte past the cap so a body of exactly MaxResponseSize is accepted
// and only a genuinely larger one is rejected.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}
