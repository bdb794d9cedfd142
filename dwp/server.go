package dwp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

// DefaultAuthTimeout bounds how long a new connection may take to send
// its auth frame.
const DefaultAuthTimeout = 10 * time.Second

// Server accepts protocol connections over WebSocket and one-shot calls
// over HTTP.
type Server struct {
	handler      *Handler
	auth         Authenticator
	defaultCodec Codec
	sessions     *SessionManager
	logger       *slog.Logger
	basePath     string
	authTimeout  time.Duration
}

// NewServer creates a server dispatching to handler.
func NewServer(handler *Handler, opts ...Option) *Server {
	s := &Server{
		handler:      handler,
		defaultCodec: JSONCodec{},
		sessions:     NewSessionManager(),
		logger:       slog.Default(),
		basePath:     "/dwp",
		authTimeout:  DefaultAuthTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth == nil {
		s.auth = NoopAuthenticator{}
	}
	handler.sessions = s.sessions
	return s
}

// Sessions returns the live session set.
func (s *Server) Sessions() *SessionManager { return s.sessions }

// RegisterRoutes mounts the WebSocket endpoint at the base path and the
// RPC endpoint under it.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.GET(s.basePath, func(c *gin.Context) { s.ServeWS(c.Writer, c.Request) })
	r.POST(s.basePath+"/rpc", s.handleRPC)
}

// Close drops every session.
func (s *Server) Close() error {
	s.sessions.CloseAll()
	return nil
}

// ServeWS upgrades the request and serves the connection until it closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("dwp upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := s.serveConn(ctx, conn); err != nil {
		s.logger.Info("dwp connection ended", slog.String("error", err.Error()))
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) error {
	sess, err := s.authenticate(ctx, conn)
	if err != nil {
		return err
	}
	s.sessions.Add(sess)
	defer func() {
		sess.closeSubscriptions()
		s.sessions.Remove(sess.ID)
		s.logger.Info("dwp disconnected", slog.String("session_id", sess.ID))
	}()

	for {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			var closed wsutil.ClosedError
			if errors.As(err, &closed) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("dwp: read frame: %w", err)
		}
		sess.Touch()

		frame, err := sess.Codec.Decode(data)
		if err != nil {
			s.write(sess, NewErrorFrame("", ErrCodeBadRequest, "invalid frame: "+err.Error()))
			continue
		}

		switch frame.Type {
		case FramePing:
			s.write(sess, &Frame{
				ID:        NewFrameID(),
				Type:      FramePong,
				CorrelID:  frame.ID,
				Timestamp: time.Now().UTC(),
			})
			continue
		case FrameRequest:
		default:
			s.write(sess, NewErrorFrame(frame.ID, ErrCodeBadRequest, "unexpected frame type "+string(frame.Type)))
			continue
		}

		if scope := RequiredScope(frame.Method); scope != "" && !sess.Identity.HasScope(scope) {
			s.write(sess, ErrorFrame(frame.ID, fmt.Errorf("%w: %s needs %s", ErrForbidden, frame.Method, scope)))
			continue
		}

		if resp := s.handler.Handle(ctx, frame, sess); resp != nil {
			s.write(sess, resp)
		}
	}
}

// authenticate reads the auth frame, which is always JSON, and answers in
// JSON before switching to the negotiated codec.
func (s *Server) authenticate(ctx context.Context, conn net.Conn) (*Session, error) {
	_ = conn.SetReadDeadline(time.Now().Add(s.authTimeout))
	data, _, err := wsutil.ReadClientData(conn)
	if err != nil {
		return nil, fmt.Errorf("dwp: read auth frame: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var authFrame Frame
	if err := json.Unmarshal(data, &authFrame); err != nil {
		writeJSON(conn, NewErrorFrame("", ErrCodeBadRequest, "invalid auth frame"))
		return nil, fmt.Errorf("dwp: decode auth frame: %w", err)
	}
	if authFrame.Method != MethodAuth {
		writeJSON(conn, NewErrorFrame(authFrame.ID, ErrCodeBadRequest, "first frame must be auth"))
		return nil, fmt.Errorf("dwp: expected auth frame, got %q", authFrame.Method)
	}

	var req AuthRequest
	if len(authFrame.Data) > 0 {
		if err := json.Unmarshal(authFrame.Data, &req); err != nil {
			writeJSON(conn, NewErrorFrame(authFrame.ID, ErrCodeBadRequest, "invalid auth data"))
			return nil, fmt.Errorf("dwp: decode auth data: %w", err)
		}
	}
	token := req.Token
	if token == "" {
		token = authFrame.Token
	}

	identity, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		writeJSON(conn, ErrorFrame(authFrame.ID, ErrUnauthorized))
		return nil, fmt.Errorf("dwp: authenticate: %w", err)
	}

	codec := s.defaultCodec
	if req.Format != "" {
		codec = GetCodec(req.Format)
	}
	sess := NewSession(uuid.NewString(), identity, codec, conn)

	if err := writeJSON(conn, respond(authFrame.ID, AuthResponse{
		Format:    codec.Name(),
		SessionID: sess.ID,
		Subject:   identity.Subject,
	})); err != nil {
		return nil, fmt.Errorf("dwp: write auth response: %w", err)
	}

	s.logger.Info("dwp authenticated",
		slog.String("session_id", sess.ID),
		slog.String("subject", identity.Subject),
		slog.String("codec", codec.Name()),
	)
	return sess, nil
}

func (s *Server) write(sess *Session, f *Frame) {
	if err := sess.WriteFrame(f); err != nil {
		s.logger.Warn("dwp write failed",
			slog.String("session_id", sess.ID),
			slog.String("frame_type", string(f.Type)),
			slog.String("error", err.Error()),
		)
	}
}

func writeJSON(conn net.Conn, f *Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return wsutil.WriteServerText(conn, data)
}

// handleRPC serves a single request frame over HTTP. Subscription
// methods are rejected since there is no socket to deliver events on.
func (s *Server) handleRPC(c *gin.Context) {
	var frame Frame
	if err := c.ShouldBindJSON(&frame); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorFrame("", ErrCodeBadRequest, "invalid request body"))
		return
	}
	if frame.ID == "" {
		frame.ID = NewFrameID()
	}

	token := frame.Token
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	identity, err := s.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorFrame(frame.ID, ErrUnauthorized))
		return
	}
	if scope := RequiredScope(frame.Method); scope != "" && !identity.HasScope(scope) {
		c.JSON(http.StatusForbidden, ErrorFrame(frame.ID, ErrForbidden))
		return
	}

	resp := s.handler.Handle(c.Request.Context(), &frame, nil)
	status := http.StatusOK
	if resp.Type == FrameErr && resp.Error != nil {
		status = resp.Error.Code
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}
	}
	c.JSON(status, resp)
}
