package summarizer

import (
	"net/http"

	"github.com/okian/upready/pkg/logger"
)

// Option configures the OpenAI summarizer.
type Option func(*config)

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxTokens bounds the completion length.
func WithMaxTokens(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithBaseURL points the client at a compatible endpoint or proxy.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func withCompletions(cc chatCompletions) Option {
	return func(c *config) {
		c.completions = cc
	}
}
