package negotiation

import (
	"time"
	"unicode/utf8"

	"github.com/floroz/bazaar/services/market-service/internal/domain/items"
	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
	"github.com/floroz/bazaar/services/market-service/internal/domain/transactions"
)

// CreateOfferCommand represents a buyer's offer on an item
type CreateOfferCommand struct {
	BuyerID     int64
	ItemID      int64
	AmountCents int64
	Message     string
}

func (c CreateOfferCommand) validate() error {
	if c.BuyerID <= 0 || c.ItemID <= 0 {
		return ErrInvalidID
	}
	if err := offers.ValidateAmount(c.AmountCents); err != nil {
		return err
	}
	if utf8.RuneCountInString(c.Message) > offers.MaxMessageLength {
		return offers.ErrMessageTooLong
	}
	return nil
}

// AcceptOfferCommand represents the seller accepting one offer
type AcceptOfferCommand struct {
	SellerID int64
	OfferID  int64
}

// RejectOfferCommand represents the seller declining one offer
type RejectOfferCommand struct {
	SellerID int64
	OfferID  int64
}

// WithdrawOfferCommand represents the buyer retracting their offer
type WithdrawOfferCommand struct {
	BuyerID int64
	OfferID int64
}

// CompleteTransactionCommand represents either party confirming the hand-over
type CompleteTransactionCommand struct {
	UserID        int64
	TransactionID int64
	MetAt         *time.Time
	LocationNote  *string
}

func (c CompleteTransactionCommand) validate() error {
	if err := validateIDs(c.UserID, c.TransactionID); err != nil {
		return err
	}
	if c.LocationNote != nil && utf8.RuneCountInString(*c.LocationNote) > transactions.MaxLocationNoteLength {
		return transactions.ErrLocationNoteTooLong
	}
	return nil
}

// CancelTransactionCommand represents either party calling the deal off
type CancelTransactionCommand struct {
	UserID        int64
	TransactionID int64
}

// ListQuery is offset pagination for the read paths
type ListQuery struct {
	Limit  int
	Offset int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func (q ListQuery) normalize() (ListQuery, error) {
	if q.Offset < 0 || q.Limit < 0 {
		return q, ErrInvalidPage
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q, nil
}

// AcceptOfferResult is everything the accept unit of work changed
type AcceptOfferResult struct {
	Offer       *offers.Offer
	Transaction *transactions.Transaction
	Rejected    []*offers.Offer
	Revived     bool
}

// SettlementResult is the outcome of completing or canceling a transaction
type SettlementResult struct {
	Transaction *transactions.Transaction
	ItemStatus  items.ItemStatus
}

func validateIDs(ids ...int64) error {
	for _, id := range ids {
		if id <= 0 {
			return ErrInvalidID
		}
	}
	return nil
}
