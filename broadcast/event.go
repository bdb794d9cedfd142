package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

// EventType identifies the kind of event.
type EventType string

const (
	EventJobCreated  EventType = "job.created"
	EventJobAssigned EventType = "job.assigned"
	EventClaimLost   EventType = "job.claim_lost"
)

// Event is the envelope carried by a Bus.
type Event struct {
	// ID uniquely identifies the event. Consumers may use it to drop
	// duplicate deliveries.
	ID string `json:"id" msgpack:"id"`

	// Type identifies the event.
	Type EventType `json:"type" msgpack:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts" msgpack:"ts"`

	// Topic is the channel this event is published on.
	Topic string `json:"topic" msgpack:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data" msgpack:"data"`
}

// NewEvent builds an event with a fresh ID and JSON-encoded payload.
func NewEvent(typ EventType, topic string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("broadcast: marshal %s payload: %w", typ, err)
	}
	return &Event{
		ID:        id.NewEventID().String(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Topic:     topic,
		Data:      raw,
	}, nil
}

// JobCreated wraps a job.CreatedEvent for the jobs topic.
func JobCreated(ev job.CreatedEvent) (*Event, error) {
	return NewEvent(EventJobCreated, TopicJobs, ev)
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("broadcast: decode %s payload: %w", e.Type, err)
	}
	return nil
}

// JobCreatedData decodes a job.created payload.
func (e *Event) JobCreatedData() (job.CreatedEvent, error) {
	var ev job.CreatedEvent
	if e.Type != EventJobCreated {
		return ev, fmt.Errorf("broadcast: event %s is %s, not %s", e.ID, e.Type, EventJobCreated)
	}
	err := e.Decode(&ev)
	return ev, err
}
