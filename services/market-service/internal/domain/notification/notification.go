// Package notification describes user-facing messages sent after a state change commits.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the template of a notification
type Kind string

const (
	KindOfferReceived        Kind = "offer_received"
	KindOfferAccepted        Kind = "offer_accepted"
	KindOfferRejected        Kind = "offer_rejected"
	KindOfferWithdrawn       Kind = "offer_withdrawn"
	KindTransactionCompleted Kind = "transaction_completed"
	KindTransactionCanceled  Kind = "transaction_canceled"
)

// Notification is a fire-and-forget message to one user
type Notification struct {
	ID        uuid.UUID
	UserID    int64
	Kind      Kind
	Title     string
	Body      string
	Data      map[string]any
	CreatedAt time.Time
}

// New stamps a notification with an id and creation time
func New(userID int64, kind Kind, title, body string, data map[string]any) Notification {
	return Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// Notifier delivers notifications on a best-effort basis.
// It is never called while a row lock is held, and its errors never undo a committed change.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
