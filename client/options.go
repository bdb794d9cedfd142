package client

import (
	"log/slog"

	"github.com/gaurav-seth/carenest-helper/backoff"
	"github.com/gaurav-seth/carenest-helper/dwp"
)

// Option configures a Client.
type Option func(*Client)

// WithToken sets the API key sent in the auth frame.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithFormat selects the wire format: "json" (default) or "msgpack".
func WithFormat(format string) Option {
	return func(c *Client) { c.codec = dwp.GetCodec(format) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithReconnect redials up to maxRetries times after the connection
// drops, waiting s.Delay(attempt) before each try. Subscriptions are
// restored on success. A nil s keeps the default jittered exponential.
func WithReconnect(maxRetries int, s backoff.Strategy) Option {
	return func(c *Client) {
		c.reconnect = true
		c.maxRetries = maxRetries
		if s != nil {
			c.backoff = s
		}
	}
}
