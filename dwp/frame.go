// Package dwp implements the CareNest wire protocol: frame-based
// request/response and event delivery over WebSocket, with a one-shot
// HTTP RPC endpoint for callers that cannot hold a socket open.
package dwp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/job"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
	FramePing     FrameType = "ping"
	FramePong     FrameType = "pong"
)

// Frame is the envelope of every message on the wire.
type Frame struct {
	ID       string    `json:"id" msgpack:"id"`
	Type     FrameType `json:"type" msgpack:"type"`
	Method   string    `json:"method,omitempty" msgpack:"method,omitempty"`
	CorrelID string    `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Token carries credentials, normally only on the auth frame or an
	// HTTP RPC call.
	Token string `json:"token,omitempty" msgpack:"token,omitempty"`

	Data  json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`
	Error *ErrorDetail    `json:"error,omitempty" msgpack:"error,omitempty"`

	// Channel names the subscription an event frame belongs to.
	Channel string `json:"channel,omitempty" msgpack:"channel,omitempty"`

	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes a failed request. Reason names the sentinel the
// server saw so clients can rebuild it; see ErrorDetail.Err.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Reason  string `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// ── Methods ─────────────────────────────────────────

const (
	MethodAuth = "auth"

	MethodJobCreate   = "job.create"
	MethodJobGet      = "job.get"
	MethodJobListOpen = "job.list_open"
	MethodJobClaim    = "job.claim"

	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"
	MethodAck         = "ack"

	MethodStats = "stats"
)

// ── Error codes ─────────────────────────────────────

const (
	ErrCodeBadRequest     = 400
	ErrCodeUnauthorized   = 401
	ErrCodeForbidden      = 403
	ErrCodeNotFound       = 404
	ErrCodeMethodNotFound = 405
	ErrCodeConflict       = 409
	ErrCodeInternal       = 500
	ErrCodeUnavailable    = 503
)

// ── Payloads ────────────────────────────────────────

// AuthRequest is the data of the first frame on a connection. Format
// selects the codec for every later frame; the auth exchange itself is
// always JSON.
type AuthRequest struct {
	Token  string `json:"token" msgpack:"token"`
	Format string `json:"format,omitempty" msgpack:"format,omitempty"`
}

// AuthResponse confirms authentication.
type AuthResponse struct {
	Format    string `json:"format" msgpack:"format"`
	SessionID string `json:"session_id" msgpack:"session_id"`
	Subject   string `json:"subject" msgpack:"subject"`
}

type JobCreateRequest struct {
	RequesterRef string `json:"requester_ref"`
	Location     string `json:"location"`
}

// JobCreateResponse carries the stored job. Warning is set when the job
// was stored but could not be announced.
type JobCreateResponse struct {
	Job     *job.Job `json:"job"`
	Warning string   `json:"warning,omitempty"`
}

type JobGetRequest struct {
	JobID string `json:"job_id"`
}

type JobClaimRequest struct {
	JobID     string `json:"job_id"`
	WorkerRef string `json:"worker_ref"`
}

// JobClaimResponse reports a settled claim. A lost claim is a response,
// not an error.
type JobClaimResponse struct {
	JobID     string      `json:"job_id"`
	WorkerRef string      `json:"worker_ref"`
	Outcome   job.Outcome `json:"outcome"`
}

// SubscribeRequest binds a bus subscription to the session. SubscriberID
// is optional; a stable one lets a reconnecting helper resume a durable
// subscription on buses that keep per-subscriber state.
type SubscribeRequest struct {
	SubscriberID string   `json:"subscriber_id,omitempty"`
	Topics       []string `json:"topics,omitempty"`
}

// SubscribeResponse names the channel that event frames for the new
// subscription will carry.
type SubscribeResponse struct {
	Channel string   `json:"channel"`
	Topics  []string `json:"topics"`
}

type UnsubscribeRequest struct {
	Channel string `json:"channel"`
}

// AckRequest confirms the delivery carried by the event frame with
// DeliveryID as its frame ID.
type AckRequest struct {
	DeliveryID string `json:"delivery_id"`
}

// EventPayload is the data of an event frame.
type EventPayload struct {
	Event   *broadcast.Event `json:"event"`
	Attempt int              `json:"attempt"`
}

// ── Constructors ────────────────────────────────────

// NewRequestFrame creates a request frame with a fresh ID.
func NewRequestFrame(method string, data any) (*Frame, error) {
	f := &Frame{
		ID:        NewFrameID(),
		Type:      FrameRequest,
		Method:    method,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		f.Data = raw
	}
	return f, nil
}

// NewResponseFrame creates a response to the request with ID correlID.
func NewResponseFrame(correlID string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        NewFrameID(),
		Type:      FrameResponse,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to the request with ID correlID.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:        NewFrameID(),
		Type:      FrameErr,
		CorrelID:  correlID,
		Error:     &ErrorDetail{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	}
}

// NewEventFrame creates an event frame for channel.
func NewEventFrame(channel string, payload EventPayload) (*Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        NewFrameID(),
		Type:      FrameEvent,
		Channel:   channel,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewFrameID returns a new unique frame ID.
func NewFrameID() string { return uuid.NewString() }
