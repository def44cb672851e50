// Package marketevents defines the integration events written to the outbox.
package marketevents

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	pkgevents "github.com/floroz/bazaar/pkg/events"
)

// EventType represents the type of domain event; it doubles as the AMQP routing key
type EventType string

const (
	EventTypeOfferCreated         EventType = "offer.created"
	EventTypeOfferAccepted        EventType = "offer.accepted"
	EventTypeOfferRejected        EventType = "offer.rejected"
	EventTypeOfferWithdrawn       EventType = "offer.withdrawn"
	EventTypeTransactionCompleted EventType = "transaction.completed"
	EventTypeTransactionCanceled  EventType = "transaction.canceled"
	EventTypeItemDeleted          EventType = "item.deleted"
)

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}

// IsValid checks if the event type is valid
func (e EventType) IsValid() bool {
	switch e {
	case EventTypeOfferCreated, EventTypeOfferAccepted, EventTypeOfferRejected, EventTypeOfferWithdrawn,
		EventTypeTransactionCompleted, EventTypeTransactionCanceled, EventTypeItemDeleted:
		return true
	default:
		return false
	}
}

// Fields is the event body. Values must be structpb-compatible (numbers, strings, bools, lists, maps).
type Fields map[string]any

// New encodes fields as a protobuf Struct and wraps them in a pending outbox event.
// occurred_at and event_type are always set.
func New(eventType EventType, occurredAt time.Time, fields Fields) (*pkgevents.OutboxEvent, error) {
	if !eventType.IsValid() {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	body := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		body[k] = v
	}
	body["event_type"] = eventType.String()
	body["occurred_at"] = occurredAt.UTC().Format(time.RFC3339Nano)

	st, err := structpb.NewStruct(body)
	if err != nil {
		return nil, fmt.Errorf("failed to build event payload: %w", err)
	}

	payload, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return pkgevents.NewOutboxEvent(eventType.String(), payload), nil
}

// Decode unmarshals an outbox payload back into plain Go values
func Decode(payload []byte) (map[string]any, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return st.AsMap(), nil
}

// IDs converts ids to a structpb-compatible list
func IDs(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
