package dwp

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/gobwas/ws"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/job"
)

func TestNewRequestFrame(t *testing.T) {
	t.Parallel()

	frame, err := NewRequestFrame(MethodJobClaim, JobClaimRequest{JobID: "job_x", WorkerRef: "W1"})
	if err != nil {
		t.Fatalf("NewRequestFrame: %v", err)
	}
	if frame.ID == "" || frame.Type != FrameRequest || frame.Method != MethodJobClaim {
		t.Fatalf("frame = %+v", frame)
	}
	if frame.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
	var req JobClaimRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if req.WorkerRef != "W1" {
		t.Errorf("worker_ref = %q, want W1", req.WorkerRef)
	}

	empty, err := NewRequestFrame(MethodJobListOpen, nil)
	if err != nil {
		t.Fatalf("NewRequestFrame(nil): %v", err)
	}
	if empty.Data != nil {
		t.Errorf("Data = %s, want nil", empty.Data)
	}
}

func TestCodecs(t *testing.T) {
	t.Parallel()

	evt, err := broadcast.NewEvent(broadcast.EventJobCreated, broadcast.TopicJobs, job.CreatedEvent{Location: "loc-A"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	in, err := NewEventFrame("helper-W1", EventPayload{Event: evt, Attempt: 2})
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}

	for _, tc := range []struct {
		codec Codec
		op    ws.OpCode
	}{
		{JSONCodec{}, ws.OpText},
		{MsgpackCodec{}, ws.OpBinary},
	} {
		t.Run(tc.codec.Name(), func(t *testing.T) {
			if tc.codec.OpCode() != tc.op {
				t.Errorf("OpCode = %v, want %v", tc.codec.OpCode(), tc.op)
			}
			data, err := tc.codec.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := tc.codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if out.ID != in.ID || out.Channel != "helper-W1" || out.Type != FrameEvent {
				t.Fatalf("decoded frame = %+v", out)
			}
			var payload EventPayload
			if err := json.Unmarshal(out.Data, &payload); err != nil {
				t.Fatalf("unmarshal payload: %v", err)
			}
			if payload.Attempt != 2 || payload.Event.ID != evt.ID {
				t.Errorf("payload = %+v", payload)
			}
		})
	}
}

func TestGetCodec(t *testing.T) {
	t.Parallel()

	if GetCodec("msgpack").Name() != CodecNameMsgpack {
		t.Error("msgpack not selected")
	}
	if GetCodec("protobuf").Name() != CodecNameJSON {
		t.Error("unknown format should fall back to json")
	}
}

func TestErrorFrameRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		code int
	}{
		{carenest.ErrJobNotFound, ErrCodeNotFound},
		{carenest.ErrRequesterNotFound, ErrCodeNotFound},
		{carenest.ErrInvalidInput, ErrCodeBadRequest},
		{carenest.ErrStoreUnavailable, ErrCodeUnavailable},
		{carenest.ErrSubscriberExists, ErrCodeConflict},
		{ErrForbidden, ErrCodeForbidden},
	}
	for _, tt := range tests {
		f := ErrorFrame("req-1", fmt.Errorf("op: %w", tt.err))
		if f.Type != FrameErr || f.CorrelID != "req-1" {
			t.Fatalf("frame = %+v", f)
		}
		if f.Error.Code != tt.code {
			t.Errorf("%v: code = %d, want %d", tt.err, f.Error.Code, tt.code)
		}
		if got := f.Error.Err(); !errors.Is(got, tt.err) {
			t.Errorf("%v: Err() = %v, does not wrap the sentinel", tt.err, got)
		}
	}

	unknown := ErrorFrame("req-2", errors.New("boom"))
	if unknown.Error.Code != ErrCodeInternal || unknown.Error.Reason != "" {
		t.Errorf("unknown error detail = %+v", unknown.Error)
	}
}
