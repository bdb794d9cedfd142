package dwp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/engine"
	"github.com/gaurav-seth/carenest-helper/id"
)

// StatsResponse is the data of a stats response.
type StatsResponse struct {
	engine.Stats
	Sessions int `json:"sessions"`
}

// Handler dispatches request frames to the engine.
type Handler struct {
	eng      *engine.Engine
	sessions *SessionManager
	logger   *slog.Logger
}

// NewHandler creates a handler over eng.
func NewHandler(eng *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{eng: eng, logger: logger}
}

// Handle processes one request frame and returns its response. ctx bounds
// any subscription the request opens.
func (h *Handler) Handle(ctx context.Context, frame *Frame, sess *Session) *Frame {
	switch frame.Method {
	case MethodJobCreate:
		return h.handleJobCreate(ctx, frame)
	case MethodJobGet:
		return h.handleJobGet(ctx, frame)
	case MethodJobListOpen:
		return h.handleJobListOpen(ctx, frame)
	case MethodJobClaim:
		return h.handleJobClaim(ctx, frame)
	case MethodSubscribe:
		return h.handleSubscribe(ctx, frame, sess)
	case MethodUnsubscribe:
		return h.handleUnsubscribe(frame, sess)
	case MethodAck:
		return h.handleAck(ctx, frame, sess)
	case MethodStats:
		return h.handleStats(ctx, frame)
	default:
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "unknown method: "+frame.Method)
	}
}

// respond creates a response frame, or an error frame if data cannot be
// marshalled.
func respond(frameID string, data any) *Frame {
	resp, err := NewResponseFrame(frameID, data)
	if err != nil {
		return NewErrorFrame(frameID, ErrCodeInternal, "marshal response: "+err.Error())
	}
	return resp
}

func decode(frame *Frame, v any) *Frame {
	if len(frame.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}
	return nil
}

func parseJobID(frame *Frame, raw string) (id.JobID, *Frame) {
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		return id.JobID{}, ErrorFrame(frame.ID, fmt.Errorf("%w: job id %q", carenest.ErrInvalidInput, raw))
	}
	return jobID, nil
}

func (h *Handler) handleJobCreate(ctx context.Context, frame *Frame) *Frame {
	var req JobCreateRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}
	j, err := h.eng.CreateJob(ctx, req.RequesterRef, req.Location)
	switch {
	case err == nil:
		return respond(frame.ID, JobCreateResponse{Job: j})
	case errors.Is(err, carenest.ErrBroadcastFailed) && j != nil:
		return respond(frame.ID, JobCreateResponse{Job: j, Warning: err.Error()})
	default:
		return ErrorFrame(frame.ID, err)
	}
}

func (h *Handler) handleJobGet(ctx context.Context, frame *Frame) *Frame {
	var req JobGetRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}
	jobID, errFrame := parseJobID(frame, req.JobID)
	if errFrame != nil {
		return errFrame
	}
	j, err := h.eng.GetJob(ctx, jobID)
	if err != nil {
		return ErrorFrame(frame.ID, err)
	}
	return respond(frame.ID, j)
}

func (h *Handler) handleJobListOpen(ctx context.Context, frame *Frame) *Frame {
	jobs, err := h.eng.ListOpenJobs(ctx)
	if err != nil {
		return ErrorFrame(frame.ID, err)
	}
	return respond(frame.ID, jobs)
}

func (h *Handler) handleJobClaim(ctx context.Context, frame *Frame) *Frame {
	var req JobClaimRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}
	jobID, errFrame := parseJobID(frame, req.JobID)
	if errFrame != nil {
		return errFrame
	}
	outcome, err := h.eng.Claim(ctx, jobID, req.WorkerRef)
	if err != nil {
		return ErrorFrame(frame.ID, err)
	}
	return respond(frame.ID, JobClaimResponse{
		JobID:     jobID.String(),
		WorkerRef: req.WorkerRef,
		Outcome:   outcome,
	})
}

func (h *Handler) handleSubscribe(ctx context.Context, frame *Frame, sess *Session) *Frame {
	if sess == nil || sess.conn == nil {
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "subscribe needs a websocket session")
	}
	var req SubscribeRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}
	if len(req.Topics) == 0 {
		req.Topics = []string{broadcast.TopicJobs}
	}
	for _, topic := range req.Topics {
		if err := broadcast.ValidateTopic(topic); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error())
		}
	}
	channel := strings.TrimSpace(req.SubscriberID)
	if channel == "" {
		channel = "dwp-" + sess.ID + "-" + NewFrameID()
	}

	sub, err := h.eng.Subscribe(ctx, channel, req.Topics...)
	if err != nil {
		return ErrorFrame(frame.ID, err)
	}
	if !sess.addSubscription(channel, sub) {
		_ = sub.Close()
		return NewErrorFrame(frame.ID, ErrCodeConflict, "already subscribed as "+channel)
	}
	go h.forward(sess, channel, sub)

	h.logger.Debug("dwp subscribed",
		slog.String("session_id", sess.ID),
		slog.String("channel", channel),
		slog.Any("topics", req.Topics),
	)
	return respond(frame.ID, SubscribeResponse{Channel: channel, Topics: req.Topics})
}

// forward writes each delivery of sub to the session as an event frame
// and remembers it until the client acks.
func (h *Handler) forward(sess *Session, channel string, sub broadcast.Subscription) {
	for d := range sub.C() {
		f, err := NewEventFrame(channel, EventPayload{Event: d.Event, Attempt: d.Attempt})
		if err != nil {
			h.logger.Warn("dwp encode event failed",
				slog.String("event_id", d.Event.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		sess.trackDelivery(f.ID, d)
		if err := sess.WriteFrame(f); err != nil {
			sess.takeDelivery(f.ID)
			return
		}
	}
}

func (h *Handler) handleUnsubscribe(frame *Frame, sess *Session) *Frame {
	if sess == nil {
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "unsubscribe needs a websocket session")
	}
	var req UnsubscribeRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}
	sub, ok := sess.removeSubscription(req.Channel)
	if !ok {
		return NewErrorFrame(frame.ID, ErrCodeNotFound, "no subscription "+req.Channel)
	}
	if err := sub.Close(); err != nil {
		return ErrorFrame(frame.ID, err)
	}
	return respond(frame.ID, map[string]string{"channel": req.Channel, "status": "unsubscribed"})
}

func (h *Handler) handleAck(ctx context.Context, frame *Frame, sess *Session) *Frame {
	if sess == nil {
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "ack needs a websocket session")
	}
	var req AckRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}
	d, ok := sess.takeDelivery(req.DeliveryID)
	if !ok {
		return NewErrorFrame(frame.ID, ErrCodeNotFound, "unknown delivery "+req.DeliveryID)
	}
	if err := d.Ack(ctx); err != nil {
		return ErrorFrame(frame.ID, err)
	}
	return respond(frame.ID, map[string]string{"delivery_id": req.DeliveryID, "status": "acked"})
}

func (h *Handler) handleStats(ctx context.Context, frame *Frame) *Frame {
	st, err := h.eng.Stats(ctx)
	if err != nil {
		return ErrorFrame(frame.ID, err)
	}
	resp := StatsResponse{Stats: st}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Count()
	}
	return respond(frame.ID, resp)
}
