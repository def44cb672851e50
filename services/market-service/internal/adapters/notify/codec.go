// Package notify contains Notifier implementations and the per-user notification inbox.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
)

// Encode serializes a notification as a protobuf Struct. Output is deterministic.
func Encode(n notification.Notification) ([]byte, error) {
	data := n.Data
	if data == nil {
		data = map[string]any{}
	}

	st, err := structpb.NewStruct(map[string]any{
		"id":         n.ID.String(),
		"user_id":    n.UserID,
		"kind":       string(n.Kind),
		"title":      n.Title,
		"body":       n.Body,
		"data":       data,
		"created_at": n.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build notification payload: %w", err)
	}

	body, err := proto.MarshalOptions{Deterministic: true}.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return body, nil
}

// Decode parses a payload produced by Encode. Numbers inside Data come back as float64.
func Decode(body []byte) (notification.Notification, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(body, &st); err != nil {
		return notification.Notification{}, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	fields := st.GetFields()

	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return notification.Notification{}, fmt.Errorf("invalid notification id: %w", err)
	}

	userID := int64(fields["user_id"].GetNumberValue())
	if userID <= 0 {
		return notification.Notification{}, fmt.Errorf("invalid notification user_id %d", userID)
	}

	kind := notification.Kind(fields["kind"].GetStringValue())
	if kind == "" {
		return notification.Notification{}, fmt.Errorf("notification %s has no kind", id)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"].GetStringValue())
	if err != nil {
		return notification.Notification{}, fmt.Errorf("invalid notification created_at: %w", err)
	}

	return notification.Notification{
		ID:        id,
		UserID:    userID,
		Kind:      kind,
		Title:     fields["title"].GetStringValue(),
		Body:      fields["body"].GetStringValue(),
		Data:      fields["data"].GetStructValue().AsMap(),
		CreatedAt: createdAt,
	}, nil
}
