package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is stamped on events built by NewEvent.
const EnvelopeVersion = 1

// ErrMalformedEvent is returned by UnmarshalEvent for envelopes that decode
// but lack the fields every handler relies on.
var ErrMalformedEvent = errors.New("malformed event envelope")

// Event is the envelope carried by every message on the bus. AggregateID is
// also the message key, so events for one aggregate stay on one partition.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent wraps payload in an envelope with a fresh UUID and the current UTC time.
func NewEvent(eventType, aggregateID, aggregateType, source string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       EnvelopeVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          raw,
	}, nil
}

func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string, 1)
	}
	e.Metadata[key] = value
	return e
}

func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent decodes an envelope. An envelope without an event type is
// rejected with ErrMalformedEvent.
func UnmarshalEvent(raw []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if e.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_type", ErrMalformedEvent)
	}
	return &e, nil
}

// UnmarshalData decodes the payload into target.
func (e *Event) UnmarshalData(target any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformedEvent, e.EventType)
	}
	return json.Unmarshal(e.Data, target)
}
