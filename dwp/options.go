package dwp

import (
	"log/slog"
	"time"
)

// Option configures a Server.
type Option func(*Server)

// WithAuth sets the authenticator. Without one every token is accepted.
func WithAuth(auth Authenticator) Option {
	return func(s *Server) { s.auth = auth }
}

// WithCodec sets the codec used when the auth frame names no format.
func WithCodec(codec Codec) Option {
	return func(s *Server) { s.defaultCodec = codec }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPath sets the base path. Default "/dwp".
func WithPath(path string) Option {
	return func(s *Server) { s.basePath = path }
}

func WithAuthTimeout(d time.Duration) Option {
	return func(s *Server) { s.authTimeout = d }
}
