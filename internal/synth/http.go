package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/okian/upready/pkg/logger"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Get performs a GET request and decodes a JSON body into out when non-nil.
func (c *HTTPClient) Get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// Post performs a POST request with an optional JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) (int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// batches splits items into consecutive slices of at most size items.
func batches(items []Item, size int) [][]Item {
	var out [][]Item
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:minInt(start+size, len(items))])
	}
	return out
}

// submitItems posts the items in batches using a worker pool.
func submitItems(ctx context.Context, config *Config, client *HTTPClient, items []Item, stats *Stats) error {
	chunks := batches(items, config.BatchSize)
	stats.Batches = len(chunks)
	logger.Get().Info(ctx, "submitting items",
		logger.Int("items", len(items)),
		logger.Int("batches", len(chunks)),
		logger.Int("workers", config.Workers))

	batchChan := make(chan []Item, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < minInt(config.Workers, len(chunks)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batchChan {
				if ctx.Err() != nil {
					stats.Failed.Add(int64(len(batch)))
					continue
				}
				submitBatch(ctx, client, batch, stats)
			}
		}()
	}

	go func() {
		defer close(batchChan)
		for _, batch := range chunks {
			select {
			case <-ctx.Done():
				return
			case batchChan <- batch:
			}
		}
	}()

	wg.Wait()

	logger.Get().Info(ctx, "submission completed",
		logger.Int64("accepted", stats.Accepted.Load()),
		logger.Int64("duplicates", stats.Duplicates.Load()),
		logger.Int64("failed", stats.Failed.Load()),
		logger.Int64("retries", stats.Retries.Load()))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	if n := stats.Failed.Load(); n > 0 {
		return fmt.Errorf("%w: %d items rejected", ErrSubmit, n)
	}
	return nil
}

// submitBatch posts one batch. A 429 retries the whole batch after a
// linear backoff; items already enqueued come back as duplicates.
func submitBatch(ctx context.Context, client *HTTPClient, batch []Item, stats *Stats) {
	for attempt := 0; ; attempt++ {
		var ack AckResponse
		status, err := client.Post(ctx, "/samples", batch, &ack)
		switch {
		case err != nil:
			logger.Get().Warn(ctx, "batch submission failed", logger.Error(err))
		case status == http.StatusAccepted || status == http.StatusOK:
			stats.Accepted.Add(int64(ack.Accepted))
			stats.Duplicates.Add(int64(ack.Duplicates))
			return
		case status == http.StatusTooManyRequests && attempt < maxBackpressureRetries:
			stats.Accepted.Add(int64(ack.Accepted))
			stats.Retries.Add(1)
			select {
			case <-ctx.Done():
				stats.Failed.Add(int64(len(batch) - ack.Accepted))
				return
			case <-time.After(time.Duration(attempt+1) * backpressureBackoff):
			}
			continue
		default:
			logger.Get().Warn(ctx, "batch rejected", logger.Int("status", status))
		}
		stats.Failed.Add(int64(len(batch)))
		return
	}
}
