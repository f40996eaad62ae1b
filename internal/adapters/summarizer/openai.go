// Package summarizer turns the keyword encoding of a refresh cycle into a
// free-text readiness summary using a chat completion model.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/okian/upready/internal/domain/summary"
	"github.com/okian/upready/pkg/logger"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 200
)

// Sentinel kinds for summarizer errors.
var (
	ErrMissingAPIKey = errors.New("openai: api key required")
	ErrNotConfigured = errors.New("summarizer not configured")
	ErrEmptyResponse = errors.New("summarizer returned no text")
)

type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI summarizes through the chat completions API.
type OpenAI struct {
	completions chatCompletions
	model       string
	maxTokens   int
	logger      logger.Logger
}

// NewOpenAI builds a summarizer. Retries are left to the refresh schedule.
func NewOpenAI(apiKey string, opts ...Option) (*OpenAI, error) {
	cfg := &config{model: defaultModel, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &OpenAI{
		completions: cfg.completions,
		model:       cfg.model,
		maxTokens:   cfg.maxTokens,
		logger:      cfg.logger,
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("summarizer")
	}
	if s.completions != nil {
		return s, nil
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	client := openai.NewClient(reqOpts...)
	s.completions = &client.Chat.Completions
	return s, nil
}

// Summarize sends the keywords with the readiness prompt and returns the
// model's reply.
func (s *OpenAI) Summarize(ctx context.Context, keywords []string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(s.model),
		MaxCompletionTokens: openai.Int(int64(s.maxTokens)),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summary.SystemPrompt),
			openai.UserMessage(summary.UserPrompt(keywords)),
		},
	}
	resp, err := s.completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	s.logger.Debug(ctx, "summary received",
		logger.String("model", s.model),
		logger.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	return text, nil
}

// Disabled is used when no API key is configured. Every cycle that reaches
// summarization fails with ErrNotConfigured.
type Disabled struct{}

// Summarize always fails.
func (Disabled) Summarize(context.Context, []string) (string, error) {
	return "", ErrNotConfigured
}

// config is filled by Option.
type config struct {
	model       string
	maxTokens   int
	baseURL     string
	httpClient  *http.Client
	completions chatCompletions
	logger      logger.Logger
}
