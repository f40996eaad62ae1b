package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/upready/pkg/logger"
)

// Run generates the configured nights, submits them, waits until the
// server stored them and, when config.Refresh is set, forces a refresh
// and verifies the published readiness.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	defer func() {
		stats.EndTime = time.Now()
		stats.Duration = stats.EndTime.Sub(stats.StartTime)
	}()

	logger.Get().Info(ctx, "starting synthetic run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("days", config.Days),
		logger.Int("workers", config.Workers),
		logger.Int("batchSize", config.BatchSize),
		logger.Duration("timeout", config.Timeout),
		logger.Bool("refresh", config.Refresh))

	items, err := Generate(ctx, config)
	if err != nil {
		return stats, fmt.Errorf("generation failed: %w", err)
	}
	stats.ItemsGenerated = len(items)

	if config.OutputFile != "" {
		if err := SaveItems(ctx, config.OutputFile, items); err != nil {
			logger.Get().Warn(ctx, "failed to save items to file", logger.Error(err))
		}
	}

	client := newHTTPClient(config.BaseURL, config.Timeout)

	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, err
	}
	if err := submitItems(ctx, config, client, items, stats); err != nil {
		return stats, err
	}
	if err := waitStored(ctx, config, client, countStored(items)); err != nil {
		return stats, err
	}

	if config.Refresh {
		result, err := forceRefresh(ctx, client)
		if result != nil {
			stats.Outcome = result.Outcome
			stats.Score = result.Score
		}
		if err != nil {
			return stats, err
		}
		if err := verifyResults(ctx, client, result); err != nil {
			return stats, err
		}
	}

	displayFinalStats(ctx, stats)
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	status, err := client.Get(ctx, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

func countStored(items []Item) int {
	n := 0
	for _, it := range items {
		if it.Stored() {
			n++
		}
	}
	return n
}

// waitStored polls GET /stats until the store holds at least want records.
func waitStored(ctx context.Context, config *Config, client *HTTPClient, want int) error {
	deadline := time.Now().Add(config.SettleTimeout)
	for {
		var st statsResponse
		if _, err := client.Get(ctx, "/stats", &st); err != nil {
			logger.Get().Warn(ctx, "stats unavailable", logger.Error(err))
		} else if got := st.stored(); got >= want {
			logger.Get().Info(ctx, "items stored", logger.Int("stored", got))
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: waited %s", ErrNotSettled, config.SettleTimeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotSettled, ctx.Err())
		case <-time.After(settlePollInterval):
		}
	}
}

type statsResponse struct {
	Samples        map[string]int `json:"samples"`
	SleepIntervals int            `json:"sleep_intervals"`
	Workouts       int            `json:"workouts"`
}

func (s statsResponse) stored() int {
	n := s.SleepIntervals + s.Workouts
	for _, c := range s.Samples {
		n += c
	}
	return n
}

// forceRefresh runs a forced cycle. Non-2xx answers still carry a result.
func forceRefresh(ctx context.Context, client *HTTPClient) (*RefreshResponse, error) {
	var result RefreshResponse
	status, err := client.Post(ctx, "/refresh?force=true", nil, &result)
	if err != nil {
		return nil, fmt.Errorf("%w: refresh request: %w", ErrVerification, err)
	}
	logger.Get().Info(ctx, "refresh finished",
		logger.Int("status", status),
		logger.String("outcome", result.Outcome),
		logger.Any("missing", result.Missing))
	if status != http.StatusOK {
		return &result, fmt.Errorf("%w: refresh returned %d: %s", ErrVerification, status, result.Error)
	}
	return &result, nil
}

// SaveItems writes the items as a JSON array accepted by POST /samples
// and by the refresh command's --samples flag.
func SaveItems(ctx context.Context, filename string, items []Item) error {
	if len(items) == 0 {
		return fmt.Errorf("no items to save")
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "items saved to file", logger.String("filename", filename), logger.Int("count", len(items)))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var itemsPerSecond float64
	if d := time.Since(stats.StartTime); d > 0 {
		itemsPerSecond = float64(stats.Accepted.Load()+stats.Duplicates.Load()) / d.Seconds()
	}
	fields := []logger.Field{
		logger.Int("itemsGenerated", stats.ItemsGenerated),
		logger.Int("batches", stats.Batches),
		logger.Int64("accepted", stats.Accepted.Load()),
		logger.Int64("duplicates", stats.Duplicates.Load()),
		logger.Int64("failed", stats.Failed.Load()),
		logger.Int64("retries", stats.Retries.Load()),
		logger.Float64("itemsPerSecond", itemsPerSecond),
	}
	if stats.Outcome != "" {
		fields = append(fields, logger.String("outcome", stats.Outcome))
	}
	if stats.Score != nil {
		fields = append(fields, logger.Int("score", *stats.Score))
	}
	logger.Get().Info(ctx, "final statistics", fields...)
}
