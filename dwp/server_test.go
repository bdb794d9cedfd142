package dwp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/engine"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/participant"
	"github.com/gaurav-seth/carenest-helper/store/memory"
)

// ── Test helpers ────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	eng *engine.Engine
	srv *Server
	ts  *httptest.Server
}

// setupTestServer runs a Server on an httptest listener with an admin
// key, a helper key, and a registered requester "+15550001".
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := testLogger()

	h, err := carenest.New(
		carenest.WithLogger(logger),
		carenest.WithStore(memory.New()),
		carenest.WithBus(broadcast.NewBroker(logger)),
	)
	if err != nil {
		t.Fatalf("carenest.New: %v", err)
	}
	eng, err := engine.Build(h, engine.WithoutActivityFeed())
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	if _, err := eng.Participants().RegisterPatient(context.Background(), participant.PatientRequest{
		Name: "Asha", PhoneNumber: "+15550001", Location: "loc-A",
	}); err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}

	srv := NewServer(NewHandler(eng, logger),
		WithAuth(NewAPIKeyAuthenticator(
			APIKeyEntry{Token: "admin-token", Identity: Identity{Subject: "admin", Scopes: []string{ScopeAll}}},
			APIKeyEntry{Token: "helper-token", Identity: Identity{Subject: "helper", Scopes: HelperScopes}},
		)),
		WithLogger(logger),
	)
	r := gin.New()
	srv.RegisterRoutes(r)
	ts := httptest.NewServer(r)

	t.Cleanup(func() {
		_ = srv.Close()
		ts.Close()
		_ = eng.Stop(context.Background())
	})
	return &testServer{eng: eng, srv: srv, ts: ts}
}

type wsConn struct {
	t    *testing.T
	conn net.Conn
}

func (s *testServer) dial(t *testing.T) *wsConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/dwp"
	conn, _, _, err := ws.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("ws.Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsConn{t: t, conn: conn}
}

func (c *wsConn) send(f *Frame) {
	c.t.Helper()
	data, err := json.Marshal(f)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	if err := wsutil.WriteClientText(c.conn, data); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *wsConn) read() *Frame {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	data, err := wsutil.ReadServerText(c.conn)
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.t.Fatalf("unmarshal: %v", err)
	}
	return &f
}

func (c *wsConn) call(method string, data any) *Frame {
	c.t.Helper()
	req, err := NewRequestFrame(method, data)
	if err != nil {
		c.t.Fatalf("NewRequestFrame: %v", err)
	}
	c.send(req)
	for {
		f := c.read()
		if f.CorrelID == req.ID {
			return f
		}
	}
}

func (c *wsConn) auth(token string) *Frame {
	c.t.Helper()
	return c.call(MethodAuth, AuthRequest{Token: token})
}

// ── Tests ───────────────────────────────────────────

func TestServer_AuthRejected(t *testing.T) {
	s := setupTestServer(t)
	c := s.dial(t)

	resp := c.auth("wrong")
	if resp.Type != FrameErr || resp.Error.Code != ErrCodeUnauthorized {
		t.Fatalf("auth response = %+v", resp)
	}
}

func TestServer_FirstFrameMustBeAuth(t *testing.T) {
	s := setupTestServer(t)
	c := s.dial(t)

	resp := c.call(MethodJobListOpen, nil)
	if resp.Type != FrameErr || resp.Error.Code != ErrCodeBadRequest {
		t.Fatalf("response = %+v", resp)
	}
}

func TestServer_CreateAndClaim(t *testing.T) {
	s := setupTestServer(t)
	c := s.dial(t)

	authResp := c.auth("admin-token")
	if authResp.Type != FrameResponse {
		t.Fatalf("auth: %+v", authResp.Error)
	}
	var ar AuthResponse
	if err := json.Unmarshal(authResp.Data, &ar); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	if ar.SessionID == "" || ar.Format != CodecNameJSON || ar.Subject != "admin" {
		t.Fatalf("auth response = %+v", ar)
	}
	if s.srv.Sessions().Count() != 1 {
		t.Errorf("sessions = %d, want 1", s.srv.Sessions().Count())
	}

	resp := c.call(MethodJobCreate, JobCreateRequest{RequesterRef: "+15550001", Location: "loc-A"})
	if resp.Type != FrameResponse {
		t.Fatalf("job.create: %+v", resp.Error)
	}
	var created JobCreateResponse
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		t.Fatalf("unmarshal create: %v", err)
	}
	jobID := created.Job.ID.String()

	claim := func(worker string) JobClaimResponse {
		t.Helper()
		resp := c.call(MethodJobClaim, JobClaimRequest{JobID: jobID, WorkerRef: worker})
		if resp.Type != FrameResponse {
			t.Fatalf("job.claim %s: %+v", worker, resp.Error)
		}
		var cr JobClaimResponse
		if err := json.Unmarshal(resp.Data, &cr); err != nil {
			t.Fatalf("unmarshal claim: %v", err)
		}
		return cr
	}
	if got := claim("W1"); got.Outcome != job.OutcomeWon {
		t.Errorf("W1 outcome = %s, want won", got.Outcome)
	}
	if got := claim("W2"); got.Outcome != job.OutcomeLost {
		t.Errorf("W2 outcome = %s, want lost", got.Outcome)
	}

	resp = c.call(MethodJobGet, JobGetRequest{JobID: "job_01h455vb4pex5vsknk084sn02q"})
	if resp.Type != FrameErr || resp.Error.Code != ErrCodeNotFound || resp.Error.Reason != "job_not_found" {
		t.Errorf("job.get unknown = %+v", resp.Error)
	}

	resp = c.call(MethodStats, nil)
	var st StatsResponse
	if err := json.Unmarshal(resp.Data, &st); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if st.AssignedJobs != 1 || st.Sessions != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestServer_ScopeEnforced(t *testing.T) {
	s := setupTestServer(t)
	c := s.dial(t)
	c.auth("helper-token")

	resp := c.call(MethodJobCreate, JobCreateRequest{RequesterRef: "+15550001", Location: "loc-A"})
	if resp.Type != FrameErr || resp.Error.Code != ErrCodeForbidden {
		t.Fatalf("job.create with helper scopes = %+v", resp)
	}
	resp = c.call(MethodJobListOpen, nil)
	if resp.Type != FrameResponse {
		t.Fatalf("job.list_open with helper scopes = %+v", resp.Error)
	}
}

func TestServer_PingPong(t *testing.T) {
	s := setupTestServer(t)
	c := s.dial(t)
	c.auth("admin-token")

	ping := &Frame{ID: NewFrameID(), Type: FramePing, Timestamp: time.Now().UTC()}
	c.send(ping)
	pong := c.read()
	if pong.Type != FramePong || pong.CorrelID != ping.ID {
		t.Fatalf("pong = %+v", pong)
	}
}

func TestServer_SubscribeAndAck(t *testing.T) {
	s := setupTestServer(t)
	c := s.dial(t)
	c.auth("admin-token")

	resp := c.call(MethodSubscribe, SubscribeRequest{SubscriberID: "helper-W1"})
	if resp.Type != FrameResponse {
		t.Fatalf("subscribe: %+v", resp.Error)
	}
	var sr SubscribeResponse
	if err := json.Unmarshal(resp.Data, &sr); err != nil {
		t.Fatalf("unmarshal subscribe: %v", err)
	}
	if sr.Channel != "helper-W1" || len(sr.Topics) != 1 || sr.Topics[0] != broadcast.TopicJobs {
		t.Fatalf("subscribe response = %+v", sr)
	}

	dup := c.call(MethodSubscribe, SubscribeRequest{SubscriberID: "helper-W1"})
	if dup.Type != FrameErr || dup.Error.Code != ErrCodeConflict {
		t.Fatalf("duplicate subscribe = %+v", dup)
	}
	if !errors.Is(dup.Error.Err(), carenest.ErrSubscriberExists) {
		t.Errorf("duplicate subscribe reason = %q", dup.Error.Reason)
	}

	j, err := s.eng.CreateJob(context.Background(), "+15550001", "loc-A")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	var evtFrame *Frame
	for evtFrame == nil {
		if f := c.read(); f.Type == FrameEvent {
			evtFrame = f
		}
	}
	if evtFrame.Channel != "helper-W1" {
		t.Errorf("event channel = %q", evtFrame.Channel)
	}
	var payload EventPayload
	if err := json.Unmarshal(evtFrame.Data, &payload); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	ce, err := payload.Event.JobCreatedData()
	if err != nil {
		t.Fatalf("JobCreatedData: %v", err)
	}
	if ce.JobID.String() != j.ID.String() || payload.Attempt != 1 {
		t.Errorf("event = %+v attempt %d", ce, payload.Attempt)
	}

	sess, ok := s.srv.Sessions().Get(sessionOf(t, s))
	if !ok {
		t.Fatal("session not tracked")
	}
	if sess.PendingDeliveries() != 1 {
		t.Errorf("pending = %d, want 1", sess.PendingDeliveries())
	}

	ack := c.call(MethodAck, AckRequest{DeliveryID: evtFrame.ID})
	if ack.Type != FrameResponse {
		t.Fatalf("ack: %+v", ack.Error)
	}
	if sess.PendingDeliveries() != 0 {
		t.Errorf("pending after ack = %d, want 0", sess.PendingDeliveries())
	}
	again := c.call(MethodAck, AckRequest{DeliveryID: evtFrame.ID})
	if again.Type != FrameErr || again.Error.Code != ErrCodeNotFound {
		t.Errorf("second ack = %+v", again)
	}

	unsub := c.call(MethodUnsubscribe, UnsubscribeRequest{Channel: "helper-W1"})
	if unsub.Type != FrameResponse {
		t.Fatalf("unsubscribe: %+v", unsub.Error)
	}
	if chans := sess.Channels(); len(chans) != 0 {
		t.Errorf("channels after unsubscribe = %v", chans)
	}
}

// sessionOf returns the ID of the only live session.
func sessionOf(t *testing.T, s *testServer) string {
	t.Helper()
	s.srv.sessions.mu.RLock()
	defer s.srv.sessions.mu.RUnlock()
	for id := range s.srv.sessions.sessions {
		return id
	}
	t.Fatal("no sessions")
	return ""
}

func TestServer_RPC(t *testing.T) {
	s := setupTestServer(t)

	post := func(token string, f *Frame) (*http.Response, *Frame) {
		t.Helper()
		body, err := json.Marshal(f)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		req, err := http.NewRequest(http.MethodPost, s.ts.URL+"/dwp/rpc", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		defer resp.Body.Close()
		var out Frame
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp, &out
	}

	create, _ := NewRequestFrame(MethodJobCreate, JobCreateRequest{RequesterRef: "+15550001", Location: "loc-A"})
	resp, f := post("admin-token", create)
	if resp.StatusCode != http.StatusOK || f.Type != FrameResponse || f.CorrelID != create.ID {
		t.Fatalf("rpc job.create = %d %+v", resp.StatusCode, f)
	}

	list, _ := NewRequestFrame(MethodJobListOpen, nil)
	if resp, _ := post("", list); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", resp.StatusCode)
	}

	claim, _ := NewRequestFrame(MethodJobClaim, JobClaimRequest{JobID: "bad", WorkerRef: "W1"})
	if resp, _ := post("helper-token", claim); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad job id = %d, want 400", resp.StatusCode)
	}

	sub, _ := NewRequestFrame(MethodSubscribe, SubscribeRequest{})
	if resp, _ := post("admin-token", sub); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("rpc subscribe = %d, want 405", resp.StatusCode)
	}
}
