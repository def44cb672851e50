package offers

import (
	"time"

	"github.com/floroz/bazaar/services/market-service/internal/domain/domainerr"
)

// OfferStatus is the negotiation state of an offer. Pending is the only non-terminal state.
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRejected  OfferStatus = "rejected"
	OfferStatusWithdrawn OfferStatus = "withdrawn"
	OfferStatusExpired   OfferStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed
func (s OfferStatus) IsTerminal() bool {
	return s != OfferStatusPending
}

// IsValid checks if the status is one of the known values
func (s OfferStatus) IsValid() bool {
	switch s {
	case OfferStatusPending, OfferStatusAccepted, OfferStatusRejected, OfferStatusWithdrawn, OfferStatusExpired:
		return true
	default:
		return false
	}
}

// MaxMessageLength bounds the optional note a buyer attaches to an offer
const MaxMessageLength = 1000

// Offer is a buyer's proposed price against one item
type Offer struct {
	ID          int64       `db:"id"`
	ItemID      int64       `db:"item_id"`
	BuyerID     int64       `db:"buyer_id"`
	SellerID    int64       `db:"seller_id"` // read from the parent item
	AmountCents int64       `db:"amount_cents"`
	Message     string      `db:"message"`
	Status      OfferStatus `db:"status"`
	DecidedAt   *time.Time  `db:"decided_at"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

// IsPending reports whether the offer can still be decided
func (o *Offer) IsPending() bool {
	return o.Status == OfferStatusPending
}

// ValidateAmount checks an offer amount in minor currency units
func ValidateAmount(amountCents int64) error {
	if amountCents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

var (
	ErrOfferNotFound     = domainerr.New(domainerr.KindNotFound, "offer not found")
	ErrInvalidAmount     = domainerr.New(domainerr.KindInvalidArgument, "offer amount must be a non-negative integer")
	ErrMessageTooLong    = domainerr.New(domainerr.KindInvalidArgument, "offer message is too long")
	ErrDuplicatePending  = domainerr.New(domainerr.KindConflict, "you already have a pending offer on this item")
	ErrOfferNotPending   = domainerr.New(domainerr.KindInvalidState, "offer is not in pending status")
	ErrInvalidTransition = domainerr.New(domainerr.KindInvalidState, "offer can only move from pending to a terminal status")
)
