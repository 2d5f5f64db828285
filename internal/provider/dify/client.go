package dify

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	initialLineBuffer = 64 * 1024
	maxLineSize       = 4 * 1024 * 1024
	maxErrorBody      = 64 * 1024
)

//nolint:gochecknoglobals // Read-only SSE markers
var (
	dataPrefix   = []byte("data:")
	doneSentinel = []byte("[DONE]")
)

// Client wraps the HTTP client for Dify API calls.
type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a new Dify HTTP client. Streaming responses are not bounded
// by the client timeout; only the wait for response headers is.
func NewClient(config Config) *Client {
	timeout := time.Duration(config.Timeout) * time.Second

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	return &Client{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{Transport: transport},
	}
}

// PostJSON sends a blocking request and returns the response body.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.do(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Provider: providerName, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	return body, nil
}

// Get sends a GET request and returns the response body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Provider: providerName, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	return body, nil
}

// Delete sends a DELETE request with a JSON body.
func (c *Client) Delete(ctx context.Context, path string, payload any) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Stream sends a streaming request and returns one raw chunk per SSE data line.
// The body is closed when the stream ends, fails, or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, path string, payload any) (<-chan domain.RawChunk, error) {
	header := http.Header{"Accept": []string{"text/event-stream"}}

	//nolint:bodyclose // Response body is closed in readStream goroutine
	resp, err := c.do(ctx, http.MethodPost, path, header, payload)
	if err != nil {
		return nil, err
	}

	chunks := make(chan domain.RawChunk)
	go c.readStream(ctx, resp, chunks)

	return chunks, nil
}

// readStream forwards SSE data lines until the [DONE] sentinel or end of body.
func (c *Client) readStream(ctx context.Context, resp *http.Response, chunks chan<- domain.RawChunk) {
	defer close(chunks)
	defer resp.Body.Close()

	logger := observability.FromContext(ctx)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}

		data := bytes.TrimSpace(line[len(dataPrefix):])
		if len(data) == 0 {
			continue
		}

		if bytes.Equal(data, doneSentinel) {
			return
		}

		select {
		case chunks <- domain.RawChunk{Data: bytes.Clone(data)}:
		case <-ctx.Done():
			logger.Debug("stream reader cancelled")
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		select {
		case chunks <- domain.RawChunk{Err: &domain.TransportError{Provider: providerName, Err: err}}:
		case <-ctx.Done():
		}
	}
}

// do executes a request and maps failures onto the upstream error taxonomy.
// On success the caller owns the response body.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	header http.Header,
	payload any,
) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		reqBody, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(reqBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Provider: providerName, Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, &domain.UpstreamError{Provider: providerName, Status: resp.StatusCode, Body: string(errBody)}
	}

	return resp, nil
}
