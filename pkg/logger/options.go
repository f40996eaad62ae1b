package logger

import "io"

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

type initConfig struct {
	format string
	output io.Writer
}

// Option configures Init.
type Option func(*initConfig)

// WithFormat selects the text or json handler.
func WithFormat(format string) Option {
	return func(c *initConfig) {
		if format != "" {
			c.format = format
		}
	}
}

// WithOutput redirects log output.
func WithOutput(w io.Writer) Option {
	return func(c *initConfig) {
		if w != nil {
			c.output = w
		}
	}
}
