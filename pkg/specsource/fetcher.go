// Package specsource resolves API specifications: fetching them over HTTP,
// hashing them for correlation, and listing the operations they declare.
package specsource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxSpecSize bounds fetched spec documents (10 MiB).
const maxSpecSize = 10 << 20

// Spec formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Fetcher resolves a spec URL to its content and a format hint. Failures map
// to the package's FAILED_SPEC_FETCH state.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (content, format string, err error)
}

// HTTPFetcher downloads specs over plain HTTP(S).
type HTTPFetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPFetcher creates a spec fetcher. httpClient may be nil.
func NewHTTPFetcher(httpClient *http.Client) *HTTPFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{
		httpClient: httpClient,
		logger:     slog.Default().With("component", "spec-fetcher"),
	}
}

// Fetch downloads the spec document.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch spec from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("spec source returned HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSpecSize+1))
	if err != nil {
		return "", "", fmt.Errorf("read spec body: %w", err)
	}
	if len(body) > maxSpecSize {
		return "", "", fmt.Errorf("spec document exceeds %d bytes", maxSpecSize)
	}

	content := string(body)
	format := formatFromResponse(resp.Header.Get("Content-Type"), url, content)
	f.logger.Info("Fetched spec", "url", url, "bytes", len(body), "format", format)
	return content, format, nil
}

// Hash returns the SHA-256 hex digest of the spec content. Used for dedup
// and correlation across packages.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// formatFromResponse picks the format hint from content type, URL extension,
// or a content sniff, in that order.
func formatFromResponse(contentType, url, content string) string {
	switch {
	case strings.Contains(contentType, "json"):
		return FormatJSON
	case strings.Contains(contentType, "yaml"):
		return FormatYAML
	}
	switch {
	case strings.HasSuffix(url, ".json"):
		return FormatJSON
	case strings.HasSuffix(url, ".yaml"), strings.HasSuffix(url, ".yml"):
		return FormatYAML
	}
	return DetectFormat(content)
}

// DetectFormat sniffs the content: JSON documents start with an object or
// array; anything else is treated as YAML.
func DetectFormat(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return FormatJSON
	}
	return FormatYAML
}
