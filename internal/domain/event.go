package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Event is an inbound message from the upload queue.
// Implementations are FileUploaded and UnknownEvent.
type Event interface {
	Kind() string
	isEvent()
}

// FileUploaded announces a newly uploaded file that needs a job
type FileUploaded struct {
	FileID string
	// ScheduledAt is the raw timestamp from the payload, nil when absent
	ScheduledAt *string
}

// Kind returns the event kind
func (FileUploaded) Kind() string { return EventFileUploaded }

func (FileUploaded) isEvent() {}

// UnknownEvent is any event kind this service does not act on
type UnknownEvent struct {
	Name string
}

// Kind returns the event kind
func (e UnknownEvent) Kind() string { return e.Name }

func (UnknownEvent) isEvent() {}

// eventEnvelope is the wire format of queue messages
type eventEnvelope struct {
	Event       string          `json:"event"`
	FileID      string          `json:"fileId"`
	ScheduledAt json.RawMessage `json:"scheduledAt,omitempty"`
}

// ParseEvent decodes a queue message body into an Event
func ParseEvent(body []byte) (Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, NewInvalidEventError("malformed JSON payload", err)
	}

	kind := strings.TrimSpace(envelope.Event)
	if kind == "" {
		return nil, NewInvalidEventError("payload", ErrMissingEventKind)
	}

	if kind != EventFileUploaded {
		return UnknownEvent{Name: kind}, nil
	}

	event := FileUploaded{FileID: envelope.FileID}
	if raw := bytes.TrimSpace(envelope.ScheduledAt); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		// Non-string schedules are treated as absent
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			event.ScheduledAt = &s
		}
	}

	return event, nil
}
