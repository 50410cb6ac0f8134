// Package summarize calls the external summarization service. Summaries
// are an enrichment: callers treat failures as missing summaries, never as
// pipeline errors.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

// HTTPClient talks to the summarizer's REST endpoint.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPClient builds a summarizer client.
func NewHTTPClient(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type summarizeRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Summarize posts the item and returns the generated summary.
func (c *HTTPClient) Summarize(ctx context.Context, item content.ContentItem) (content.Summary, error) {
	payload, err := json.Marshal(summarizeRequest{ID: item.ID, Title: item.Title, Text: item.Text})
	if err != nil {
		return content.Summary{}, fmt.Errorf("marshal summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return content.Summary{}, fmt.Errorf("build summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return content.Summary{}, fmt.Errorf("summarize %s: %w", item.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return content.Summary{}, fmt.Errorf("summarize %s: status %d: %s", item.ID, resp.StatusCode, body)
	}

	var summary content.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return content.Summary{}, fmt.Errorf("decode summary for %s: %w", item.ID, err)
	}
	return summary, nil
}

// NoOp is the summarizer used when no endpoint is configured. It returns
// empty summaries so the pipeline carries on unchanged.
type NoOp struct{}

// Summarize returns an empty summary.
func (NoOp) Summarize(context.Context, content.ContentItem) (content.Summary, error) {
	return content.Summary{}, nil
}
