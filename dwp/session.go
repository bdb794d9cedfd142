package dwp

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws/wsutil"

	"github.com/gaurav-seth/carenest-helper/broadcast"
)

// Session is one authenticated connection. Its writes are serialised so
// responses and forwarded events can share the socket.
type Session struct {
	ID          string
	Identity    *Identity
	Codec       Codec
	ConnectedAt time.Time

	lastActivity atomic.Int64

	conn    net.Conn
	writeMu sync.Mutex

	mu            sync.Mutex
	subscriptions map[string]broadcast.Subscription // channel → subscription
	deliveries    map[string]*broadcast.Delivery    // event frame ID → delivery
}

// NewSession creates a session over conn. conn may be nil for one-shot
// RPC calls, which never write frames themselves.
func NewSession(id string, identity *Identity, codec Codec, conn net.Conn) *Session {
	s := &Session{
		ID:            id,
		Identity:      identity,
		Codec:         codec,
		ConnectedAt:   time.Now().UTC(),
		conn:          conn,
		subscriptions: make(map[string]broadcast.Subscription),
		deliveries:    make(map[string]*broadcast.Delivery),
	}
	s.Touch()
	return s
}

// Touch records activity on the session.
func (s *Session) Touch() { s.lastActivity.Store(time.Now().UnixNano()) }

// LastActivity returns when the session last received a frame.
func (s *Session) LastActivity() time.Time { return time.Unix(0, s.lastActivity.Load()).UTC() }

// WriteFrame encodes frame with the session codec and sends it.
func (s *Session) WriteFrame(frame *Frame) error {
	if s.conn == nil {
		return errors.New("dwp: session has no connection")
	}
	data, err := s.Codec.Encode(frame)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wsutil.WriteServerMessage(s.conn, s.Codec.OpCode(), data)
}

// Channels returns the channels of the active subscriptions.
func (s *Session) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subscriptions))
	for ch := range s.subscriptions {
		out = append(out, ch)
	}
	return out
}

func (s *Session) addSubscription(channel string, sub broadcast.Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[channel]; ok {
		return false
	}
	s.subscriptions[channel] = sub
	return true
}

func (s *Session) removeSubscription(channel string) (broadcast.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[channel]
	delete(s.subscriptions, channel)
	return sub, ok
}

func (s *Session) trackDelivery(frameID string, d *broadcast.Delivery) {
	s.mu.Lock()
	s.deliveries[frameID] = d
	s.mu.Unlock()
}

func (s *Session) takeDelivery(frameID string) (*broadcast.Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[frameID]
	delete(s.deliveries, frameID)
	return d, ok
}

// closeSubscriptions ends every subscription. Unacked deliveries are
// left to the bus to redeliver.
func (s *Session) closeSubscriptions() {
	s.mu.Lock()
	subs := s.subscriptions
	s.subscriptions = make(map[string]broadcast.Subscription)
	s.deliveries = make(map[string]*broadcast.Delivery)
	s.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
}

// PendingDeliveries returns how many forwarded events await an ack.
func (s *Session) PendingDeliveries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deliveries)
}

// SessionManager tracks live sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

func (m *SessionManager) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
}

func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll ends the subscriptions of every session and closes their
// connections.
func (m *SessionManager) CloseAll() {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()
	for _, s := range all {
		s.closeSubscriptions()
		if s.conn != nil {
			_ = s.conn.Close()
		}
	}
}
