package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/qaforge/qaforge/pkg/version"
)

const (
	completionsPath = "/chat/completions"
	modelsPath      = "/models"

	// errorBodyLimit caps how much of a provider error body is carried in
	// the returned error.
	errorBodyLimit = 1024

	streamBuffer = 100
)

// HTTPClient is the raw chat-completions client. It performs exactly one
// request per call; resilience policies live in ResilientClient.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a provider client for the given endpoint. httpClient
// may be nil, in which case a client with a 60s timeout is used.
func NewHTTPClient(baseURL, apiKey string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpClient,
		logger:  slog.Default().With("component", "llm-client"),
	}
}

// Complete issues one chat-completions request and decodes the response.
// A 429 returns *AiRateLimitError; other non-2xx statuses return *AiHTTPError.
func (c *HTTPClient) Complete(ctx context.Context, req *AiRequest) (*AiResponse, error) {
	httpReq, err := c.newRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var out AiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	return &out, nil
}

// Stream opens a streaming completion. The returned channel is closed after
// the terminal chunk. Errors after the stream opened are reported as a
// terminal chunk with FinishReason = FinishReasonError.
func (c *HTTPClient) Stream(ctx context.Context, req *AiRequest) (<-chan StreamChunk, error) {
	streamReq := *req
	streamReq.Stream = true

	httpReq, err := c.newRequest(ctx, &streamReq, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	if err := c.checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	chunks := make(chan StreamChunk, streamBuffer)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()
		c.readStream(ctx, resp.Body, chunks)
	}()
	return chunks, nil
}

// Healthy probes the provider's model listing endpoint.
func (c *HTTPClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath, nil)
	if err != nil {
		return false
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *HTTPClient) newRequest(ctx context.Context, req *AiRequest, stream bool) (*http.Request, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode provider request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.Full())
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

func (c *HTTPClient) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if resp.StatusCode == http.StatusTooManyRequests {
		return &AiRateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	return &AiHTTPError{StatusCode: resp.StatusCode, Body: string(body)}
}

// streamEvent is the wire shape of one SSE data line.
type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// readStream consumes "data: {json}" lines until "data: [DONE]" or an error.
func (c *HTTPClient) readStream(ctx context.Context, body io.Reader, chunks chan<- StreamChunk) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			c.emit(ctx, chunks, StreamChunk{FinishReason: FinishReasonError, Error: fmt.Sprintf("malformed stream event: %v", err)})
			return
		}
		for _, choice := range event.Choices {
			chunk := StreamChunk{Content: choice.Delta.Content, FinishReason: choice.FinishReason}
			if choice.FinishReason == "stop" {
				chunk.FinishReason = FinishReasonStop
			}
			if !c.emit(ctx, chunks, chunk) {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		c.emit(ctx, chunks, StreamChunk{FinishReason: FinishReasonError, Error: err.Error()})
	}
}

func (c *HTTPClient) emit(ctx context.Context, chunks chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
